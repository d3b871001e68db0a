package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tmahmood/finledger/internal/models"
)

// AlertNotifier delivers fraud alerts to an external channel. Delivery is
// best-effort; failures are logged and never block evaluation.
type AlertNotifier interface {
	NotifyFraudAlert(ctx context.Context, txn *models.Transaction, alert *models.FraudAlert) error
}

// EvaluatorConfig carries the rule thresholds.
type EvaluatorConfig struct {
	// LargeAmountThreshold flags any transfer strictly above this amount.
	LargeAmountThreshold decimal.Decimal
	// VelocityMaxCount is the number of recent transfers, inclusive of the
	// evaluated one, that is still acceptable within the window.
	VelocityMaxCount int
	// VelocityWindow is the trailing window for the velocity rule.
	VelocityWindow time.Duration
}

// Evaluator runs the stateless fraud rule set against committed transfers.
// It reads recent history from the store but never mutates accounts or a
// transaction's core fields; it only records alerts and the fraud flag.
type Evaluator struct {
	store    Store
	notifier AlertNotifier
	cfg      EvaluatorConfig
	log      *logrus.Logger
}

// NewEvaluator initializes a fraud evaluator. The notifier may be nil.
func NewEvaluator(store Store, notifier AlertNotifier, cfg EvaluatorConfig, log *logrus.Logger) *Evaluator {
	if cfg.LargeAmountThreshold.IsZero() {
		cfg.LargeAmountThreshold = decimal.NewFromInt(50000)
	}
	if cfg.VelocityMaxCount <= 0 {
		cfg.VelocityMaxCount = 3
	}
	if cfg.VelocityWindow <= 0 {
		cfg.VelocityWindow = 5 * time.Minute
	}
	return &Evaluator{store: store, notifier: notifier, cfg: cfg, log: log}
}

// Evaluate runs every rule independently against a committed transfer and
// returns the alerts raised. Store faults are logged and swallowed: fraud
// detection is observability and must never affect a funds movement that
// already committed. Unchecked transactions are retried by the sweep.
func (ev *Evaluator) Evaluate(ctx context.Context, txn *models.Transaction) []*models.FraudAlert {
	var alerts []*models.FraudAlert

	if txn.Amount.GreaterThan(ev.cfg.LargeAmountThreshold) {
		alerts = append(alerts, newAlert(txn.ID, models.ReasonLargeAmount))
	}

	if txn.FromAccountID != nil && txn.Kind == models.KindTransfer {
		since := time.Now().UTC().Add(-ev.cfg.VelocityWindow)
		count, err := ev.store.CountRecentTransfers(ctx, *txn.FromAccountID, since)
		if err != nil {
			ev.log.Warnf("Fraud detection failed for transaction %s: %v", txn.ID, err)
			return nil
		}
		if count > ev.cfg.VelocityMaxCount {
			alerts = append(alerts, newAlert(txn.ID, models.ReasonHighFrequency))
		}
	}

	for _, alert := range alerts {
		if err := ev.store.CreateFraudAlert(ctx, alert); err != nil {
			ev.log.Warnf("Failed to record fraud alert for transaction %s: %v", txn.ID, err)
			return nil
		}
	}
	if err := ev.store.MarkTransactionChecked(ctx, txn.ID, len(alerts) > 0); err != nil {
		ev.log.Warnf("Failed to record fraud verdict for transaction %s: %v", txn.ID, err)
		return alerts
	}

	if len(alerts) > 0 {
		ev.log.Infof("Transaction %s flagged by %d fraud rule(s)", txn.ID, len(alerts))
		ev.notify(ctx, txn, alerts)
	}
	return alerts
}

// Sweep re-evaluates completed transfers that never received a verdict, e.g.
// because the post-commit evaluation hit a transient store fault. Wired to a
// cron schedule in main.
func (ev *Evaluator) Sweep(ctx context.Context) {
	// Skip the newest transactions; their async evaluation may be in flight.
	cutoff := time.Now().UTC().Add(-time.Minute)
	txns, err := ev.store.ListUncheckedTransfers(ctx, cutoff, 100)
	if err != nil {
		ev.log.Warnf("Fraud sweep failed to list unchecked transfers: %v", err)
		return
	}
	for _, txn := range txns {
		ev.Evaluate(ctx, txn)
	}
	if len(txns) > 0 {
		ev.log.Infof("Fraud sweep re-evaluated %d transfer(s)", len(txns))
	}
}

func (ev *Evaluator) notify(ctx context.Context, txn *models.Transaction, alerts []*models.FraudAlert) {
	if ev.notifier == nil {
		return
	}
	for _, alert := range alerts {
		if err := ev.notifier.NotifyFraudAlert(ctx, txn, alert); err != nil {
			ev.log.Warnf("Failed to send fraud alert %s: %v", alert.ID, err)
		}
	}
}

func newAlert(txID uuid.UUID, reason string) *models.FraudAlert {
	return &models.FraudAlert{
		ID:            uuid.New(),
		TransactionID: txID,
		Reason:        reason,
		Action:        models.ActionFlagged,
		CreatedAt:     time.Now().UTC(),
	}
}

package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmahmood/finledger/internal/ledger"
	"github.com/tmahmood/finledger/internal/models"
)

func newEvaluator(f *fixture) *ledger.Evaluator {
	return ledger.NewEvaluator(f.store, nil, ledger.EvaluatorConfig{}, testLogger())
}

func alertReasons(t *testing.T, f *fixture, txID uuid.UUID) []string {
	t.Helper()
	alerts, err := f.store.ListFraudAlerts(context.Background(), txID)
	require.NoError(t, err)
	reasons := make([]string, 0, len(alerts))
	for _, alert := range alerts {
		reasons = append(reasons, alert.Reason)
	}
	return reasons
}

func TestLargeAmountRule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	evaluator := newEvaluator(f)
	source := f.seedAccount(t, "100000.00")
	dest := f.seedAccount(t, "0.00")

	txn, err := f.engine.Transfer(ctx, ledger.TransferRequest{
		ActorUserID:     source.UserID,
		SourceAccountID: source.ID,
		DestAccountID:   dest.ID,
		Amount:          "75000.00",
	})
	require.NoError(t, err)

	alerts := evaluator.Evaluate(ctx, txn)
	require.Len(t, alerts, 1, "exactly one alert for a large transfer")
	assert.Equal(t, models.ReasonLargeAmount, alerts[0].Reason)
	assert.Equal(t, models.ActionFlagged, alerts[0].Action)
	assert.Equal(t, []string{models.ReasonLargeAmount}, alertReasons(t, f, txn.ID))

	flagged, err := f.store.GetTransaction(ctx, source.UserID, txn.ID)
	require.NoError(t, err)
	assert.True(t, flagged.Fraudulent)
}

func TestLargeAmountBoundaryNotFlagged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	evaluator := newEvaluator(f)
	source := f.seedAccount(t, "100000.00")
	dest := f.seedAccount(t, "0.00")

	// Exactly at the threshold: the rule fires strictly above it.
	txn, err := f.engine.Transfer(ctx, ledger.TransferRequest{
		ActorUserID:     source.UserID,
		SourceAccountID: source.ID,
		DestAccountID:   dest.ID,
		Amount:          "50000.00",
	})
	require.NoError(t, err)

	alerts := evaluator.Evaluate(ctx, txn)
	assert.Empty(t, alerts)

	checked, err := f.store.GetTransaction(ctx, source.UserID, txn.ID)
	require.NoError(t, err)
	assert.False(t, checked.Fraudulent)
	assert.NotNil(t, checked.FraudCheckedAt, "clean transactions still get a verdict")
}

func TestVelocityRule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	evaluator := newEvaluator(f)
	source := f.seedAccount(t, "1000.00")
	dest := f.seedAccount(t, "0.00")

	for i := 1; i <= 5; i++ {
		txn, err := f.engine.Transfer(ctx, ledger.TransferRequest{
			ActorUserID:     source.UserID,
			SourceAccountID: source.ID,
			DestAccountID:   dest.ID,
			Amount:          "1.00",
		})
		require.NoError(t, err)

		evaluator.Evaluate(ctx, txn)
		reasons := alertReasons(t, f, txn.ID)
		if i <= 3 {
			assert.Empty(t, reasons, "transfer %d must not be flagged", i)
		} else {
			assert.Equal(t, []string{models.ReasonHighFrequency}, reasons, "transfer %d must be flagged", i)
		}
	}
}

func TestFraudEvaluationRunsAfterCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	engine := ledger.NewEngine(f.store, f.dir, newEvaluator(f), testLogger())
	source := f.seedAccount(t, "100000.00")
	dest := f.seedAccount(t, "0.00")

	txn, err := engine.Transfer(ctx, ledger.TransferRequest{
		ActorUserID:     source.UserID,
		SourceAccountID: source.ID,
		DestAccountID:   dest.ID,
		Amount:          "60000.00",
	})
	require.NoError(t, err, "transfer must not wait for or depend on fraud evaluation")

	require.Eventually(t, func() bool {
		return len(alertReasons(t, f, txn.ID)) == 1
	}, 2*time.Second, 10*time.Millisecond, "async evaluation must record the alert")
}

// failingStore simulates a store whose history reads are down while the
// commit path still works.
type failingStore struct {
	ledger.Store
}

func (s *failingStore) CountRecentTransfers(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	return 0, fmt.Errorf("%w: history replica down", ledger.ErrStoreUnavailable)
}

func TestFraudEvaluationFailureNeverFailsTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	broken := &failingStore{Store: f.store}
	evaluator := ledger.NewEvaluator(broken, nil, ledger.EvaluatorConfig{}, testLogger())
	engine := ledger.NewEngine(f.store, f.dir, evaluator, testLogger())
	source := f.seedAccount(t, "100.00")
	dest := f.seedAccount(t, "0.00")

	txn, err := engine.Transfer(ctx, ledger.TransferRequest{
		ActorUserID:     source.UserID,
		SourceAccountID: source.ID,
		DestAccountID:   dest.ID,
		Amount:          "10.00",
	})
	require.NoError(t, err)
	assert.True(t, f.balance(t, dest.ID).Equal(txn.Amount), "funds moved despite the fraud fault")

	alerts := evaluator.Evaluate(ctx, txn)
	assert.Nil(t, alerts, "evaluation fault is swallowed")

	unchecked, err := f.store.GetTransaction(ctx, source.UserID, txn.ID)
	require.NoError(t, err)
	assert.Nil(t, unchecked.FraudCheckedAt, "no verdict recorded, left for the sweep")
}

func TestSweepRetriesUncheckedTransfers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	evaluator := newEvaluator(f)
	source := f.seedAccount(t, "0.00")
	dest := f.seedAccount(t, "0.00")

	// A transfer whose post-commit evaluation was lost some time ago.
	sourceID := source.ID
	completed := time.Now().UTC().Add(-2 * time.Minute)
	stale := &models.Transaction{
		ID:            uuid.New(),
		FromAccountID: &sourceID,
		ToAccountID:   dest.ID,
		Amount:        decimal.RequireFromString("80000.00"),
		Kind:          models.KindTransfer,
		Status:        models.StatusCompleted,
		CreatedAt:     completed,
		CompletedAt:   &completed,
	}
	require.NoError(t, f.store.WithinTx(ctx, func(tx ledger.TxStore) error {
		return tx.CreateTransaction(ctx, stale)
	}))

	evaluator.Sweep(ctx)

	assert.Equal(t, []string{models.ReasonLargeAmount}, alertReasons(t, f, stale.ID))
	checked, err := f.store.GetTransaction(ctx, source.UserID, stale.ID)
	require.NoError(t, err)
	assert.True(t, checked.Fraudulent)
	assert.NotNil(t, checked.FraudCheckedAt)

	// A second sweep finds nothing left to do.
	evaluator.Sweep(ctx)
	assert.Len(t, alertReasons(t, f, stale.ID), 1)
}

func TestSweepSkipsFreshTransfers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	evaluator := newEvaluator(f)
	source := f.seedAccount(t, "100000.00")
	dest := f.seedAccount(t, "0.00")

	txn, err := f.engine.Transfer(ctx, ledger.TransferRequest{
		ActorUserID:     source.UserID,
		SourceAccountID: source.ID,
		DestAccountID:   dest.ID,
		Amount:          "75000.00",
	})
	require.NoError(t, err)

	// Fresh transfers are left to their in-flight async evaluation.
	evaluator.Sweep(ctx)
	assert.Empty(t, alertReasons(t, f, txn.ID))
}

package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/tmahmood/finledger/internal/config"
	"github.com/tmahmood/finledger/internal/models"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// NotifyFraudAlert sends a fraud alert to the ops mailbox. It implements
// ledger.AlertNotifier; delivery is best-effort.
func (s *Sender) NotifyFraudAlert(ctx context.Context, txn *models.Transaction, alert *models.FraudAlert) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.FraudAlertEmail}
	e.Subject = fmt.Sprintf("Fraud Alert: %s", alert.Reason)

	body := fmt.Sprintf(
		"A transaction has been flagged for review.\n\n"+
			"Transaction: %s\n"+
			"Kind:        %s\n"+
			"Amount:      %s\n"+
			"Reason:      %s\n"+
			"Action:      %s\n"+
			"Raised at:   %s\n",
		txn.ID, txn.Kind, txn.Amount, alert.Reason, alert.Action,
		alert.CreatedAt.Format("2006-01-02 15:04:05"),
	)
	if txn.FromAccountID != nil {
		body += fmt.Sprintf("Source account: %s\n", *txn.FromAccountID)
	}
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send fraud alert email for transaction %s: %v", txn.ID, err)
		return fmt.Errorf("failed to send fraud alert email: %w", err)
	}

	s.logger.Infof("Fraud alert email sent for transaction %s: %s", txn.ID, alert.Reason)
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction kinds.
const (
	KindTransfer   = "transfer"
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
)

// Transaction statuses. Completed and failed are terminal; pending only ever
// exists inside the commit that finishes it.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction is an immutable record of a funds movement. FromAccountID is
// nil for deposits; for withdrawals both sides reference the debited account.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	FromAccountID  *uuid.UUID      `json:"from_account_id,omitempty"`
	ToAccountID    uuid.UUID       `json:"to_account_id"`
	Amount         decimal.Decimal `json:"amount"`
	Kind           string          `json:"kind"`
	Reference      string          `json:"reference,omitempty"`
	Status         string          `json:"status"`
	Fraudulent     bool            `json:"fraudulent"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	FraudCheckedAt *time.Time      `json:"-"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account statuses. Only active accounts may move funds.
const (
	AccountActive = "active"
	AccountFrozen = "frozen"
	AccountClosed = "closed"
)

// Account represents a ledger account. The balance is owned by the ledger
// store and is only mutated through the transfer engine's locked update path.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Number    string          `json:"account_number"`
	Balance   decimal.Decimal `json:"balance"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

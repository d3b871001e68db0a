package models

import (
	"time"

	"github.com/google/uuid"
)

// Fraud alert reasons.
const (
	ReasonLargeAmount   = "large_amount"
	ReasonHighFrequency = "high_frequency"
)

// Fraud alert actions. Alerts are created flagged; resolution belongs to an
// external review process.
const (
	ActionFlagged  = "flagged"
	ActionBlocked  = "blocked"
	ActionResolved = "resolved"
)

// FraudAlert links a suspicious transaction to the rule that fired.
type FraudAlert struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	Reason        string     `json:"reason"`
	Action        string     `json:"action"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

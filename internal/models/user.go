package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account holder in the directory.
type User struct {
	ID           uuid.UUID `json:"id"`
	MobileNumber string    `json:"mobile_number"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PINHash      string    `json:"-"` // Not serialized
	CreatedAt    time.Time `json:"created_at"`
}

// Package ledger implements the funds transfer engine: validation, ordered
// account locking, atomic balance mutation, transaction recording and
// post-commit fraud evaluation.
package ledger

import (
	"errors"

	"github.com/tmahmood/finledger/internal/money"
)

// Domain errors surfaced verbatim to callers. The HTTP adapter maps them to
// status codes; none are swallowed except fraud-evaluation faults.
var (
	// ErrInvalidAmount is the amount validator's rejection.
	ErrInvalidAmount = money.ErrInvalidAmount

	// ErrSelfTransfer means source and destination are the same account.
	ErrSelfTransfer = errors.New("cannot transfer to same account")

	// ErrAccountNotFound means the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound means the transaction does not exist or is not
	// visible to the caller.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrUserNotFound means the directory has no such user.
	ErrUserNotFound = errors.New("user not found")

	// ErrUnauthorized means the account exists but belongs to another user.
	ErrUnauthorized = errors.New("unauthorized access to account")

	// ErrForbidden means the record exists but is unrelated to the caller.
	ErrForbidden = errors.New("access to record denied")

	// ErrAccountFrozen means the source account status is not active.
	ErrAccountFrozen = errors.New("account is not active")

	// ErrInsufficientFunds means the source balance cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrStoreUnavailable is a transient store fault. No partial commit
	// occurred; the whole call is safe to retry.
	ErrStoreUnavailable = errors.New("ledger store unavailable")

	// ErrStoreConflict means a lock or commit race was lost. Safe to retry.
	ErrStoreConflict = errors.New("ledger store conflict")
)

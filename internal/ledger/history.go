package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tmahmood/finledger/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// GetTransactionHistory returns the caller's visible transactions, newest
// first. When accountID is set the caller must own that account.
func (e *Engine) GetTransactionHistory(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	if accountID != nil {
		if err := e.authorizeOwner(ctx, userID, *accountID); err != nil {
			return nil, err
		}
	}
	return e.store.ListTransactions(ctx, userID, accountID, limit, offset)
}

// GetTransactionDetails returns one transaction if the caller owns at least
// one side of it. A transaction that exists but is entirely unrelated to the
// caller yields ErrForbidden; a missing one yields ErrTransactionNotFound.
func (e *Engine) GetTransactionDetails(ctx context.Context, userID, txID uuid.UUID) (*models.Transaction, error) {
	txn, err := e.store.GetTransaction(ctx, userID, txID)
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	exists, existsErr := e.store.TransactionExists(ctx, txID)
	if existsErr != nil {
		return nil, existsErr
	}
	if exists {
		return nil, ErrForbidden
	}
	return nil, ErrTransactionNotFound
}

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmahmood/finledger/internal/ledger"
	"github.com/tmahmood/finledger/internal/models"
)

func seedAccount(t *testing.T, s *MemoryStore, balance string) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Number:  "5100000000",
		Balance: decimal.RequireFromString(balance),
		Status:  models.AccountActive,
	}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func TestWithinTxCommitPublishesState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	account := seedAccount(t, s, "100.00")

	err := s.WithinTx(ctx, func(tx ledger.TxStore) error {
		acct, err := tx.GetAccountForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}
		acct.Balance = acct.Balance.Sub(decimal.RequireFromString("40.00"))
		return tx.SaveAccount(ctx, acct)
	})
	require.NoError(t, err)

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("60.00")))
}

func TestWithinTxErrorDiscardsStagedState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	account := seedAccount(t, s, "100.00")

	err := s.WithinTx(ctx, func(tx ledger.TxStore) error {
		acct, err := tx.GetAccountForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}
		acct.Balance = decimal.Zero
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, &models.Transaction{ID: uuid.New(), ToAccountID: acct.ID}); err != nil {
			return err
		}
		return ledger.ErrInsufficientFunds
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("100.00")), "rollback must restore balance")

	txns, err := s.ListTransactions(ctx, account.UserID, nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, txns, "staged transaction must not be visible")
}

func TestWithinTxMissingAccount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.WithinTx(ctx, func(tx ledger.TxStore) error {
		_, err := tx.GetAccountForUpdate(ctx, uuid.New())
		return err
	})
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestDuplicateIdempotencyKeyAbortsCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	account := seedAccount(t, s, "10.00")

	record := func(txID uuid.UUID) error {
		return s.WithinTx(ctx, func(tx ledger.TxStore) error {
			if err := tx.CreateTransaction(ctx, &models.Transaction{ID: txID, ToAccountID: account.ID}); err != nil {
				return err
			}
			return tx.SaveIdempotencyKey(ctx, "retry-123", txID)
		})
	}

	first := uuid.New()
	require.NoError(t, record(first))
	require.ErrorIs(t, record(uuid.New()), ledger.ErrStoreConflict)

	txn, err := s.FindTransactionByKey(ctx, "retry-123")
	require.NoError(t, err)
	assert.Equal(t, first, txn.ID)
}

func TestAccountLocksSerializeOverlappingWork(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	account := seedAccount(t, s, "0.00")

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(tx ledger.TxStore) error {
				acct, err := tx.GetAccountForUpdate(ctx, account.ID)
				if err != nil {
					return err
				}
				acct.Balance = acct.Balance.Add(decimal.NewFromInt(1))
				return tx.SaveAccount(ctx, acct)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(workers)), "no increment may be lost, got %s", got.Balance)
}

func TestCountRecentTransfersWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	account := seedAccount(t, s, "0.00")
	other := seedAccount(t, s, "0.00")

	add := func(createdAt time.Time) {
		from := account.ID
		err := s.WithinTx(ctx, func(tx ledger.TxStore) error {
			return tx.CreateTransaction(ctx, &models.Transaction{
				ID:            uuid.New(),
				FromAccountID: &from,
				ToAccountID:   other.ID,
				Kind:          models.KindTransfer,
				Status:        models.StatusCompleted,
				CreatedAt:     createdAt,
			})
		})
		require.NoError(t, err)
	}

	now := time.Now().UTC()
	add(now.Add(-10 * time.Minute))
	add(now.Add(-2 * time.Minute))
	add(now.Add(-time.Minute))

	count, err := s.CountRecentTransfers(ctx, account.ID, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

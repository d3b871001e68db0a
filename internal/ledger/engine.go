package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tmahmood/finledger/internal/models"
	"github.com/tmahmood/finledger/internal/money"
)

// Engine orchestrates validation, locking, balance mutation, transaction
// recording and post-commit fraud evaluation as one logical operation.
type Engine struct {
	store     Store
	directory Directory
	fraud     *Evaluator
	log       *logrus.Logger
}

// NewEngine initializes a new transfer engine. The evaluator may be nil, in
// which case committed transfers are left for the out-of-band sweep.
func NewEngine(store Store, directory Directory, fraud *Evaluator, log *logrus.Logger) *Engine {
	return &Engine{store: store, directory: directory, fraud: fraud, log: log}
}

// TransferRequest carries one transfer call. Amount accepts numeric or
// numeric-string input and is normalized by the engine. IdempotencyKey is
// optional; replaying a key after a successful commit returns the original
// transaction instead of moving funds again.
type TransferRequest struct {
	ActorUserID     uuid.UUID
	SourceAccountID uuid.UUID
	DestAccountID   uuid.UUID
	Amount          any
	Reference       string
	IdempotencyKey  string
}

// DepositRequest carries one deposit call.
type DepositRequest struct {
	ActorUserID    uuid.UUID
	DestAccountID  uuid.UUID
	Amount         any
	Reference      string
	IdempotencyKey string
}

// WithdrawRequest carries one withdrawal call.
type WithdrawRequest struct {
	ActorUserID     uuid.UUID
	SourceAccountID uuid.UUID
	Amount          any
	Reference       string
	IdempotencyKey  string
}

// Transfer moves funds between two accounts atomically. Preconditions are
// checked in order and the first failure wins: amount, self-transfer, source
// ownership, destination existence, source status. The critical section
// acquires both account locks in ascending id order, re-reads balances,
// verifies coverage and commits debit, credit and the transaction record as
// one unit. Fraud evaluation runs after commit and never affects the result.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*models.Transaction, error) {
	amount, err := money.Normalize(req.Amount)
	if err != nil {
		return nil, err
	}
	if req.SourceAccountID == req.DestAccountID {
		return nil, ErrSelfTransfer
	}
	if err := e.authorizeOwner(ctx, req.ActorUserID, req.SourceAccountID); err != nil {
		return nil, err
	}
	if _, err := e.directory.OwnerOf(ctx, req.DestAccountID); err != nil {
		return nil, fmt.Errorf("destination account: %w", err)
	}
	if err := e.requireActive(ctx, req.SourceAccountID); err != nil {
		return nil, err
	}

	if txn, err := e.replay(ctx, req.IdempotencyKey); txn != nil || err != nil {
		return txn, err
	}

	sourceID := req.SourceAccountID
	txn := newTransaction(&sourceID, req.DestAccountID, amount, models.KindTransfer, req.Reference)

	err = e.store.WithinTx(ctx, func(tx TxStore) error {
		source, dest, err := lockPair(ctx, tx, req.SourceAccountID, req.DestAccountID)
		if err != nil {
			return err
		}
		if source.Status != models.AccountActive {
			return ErrAccountFrozen
		}
		if source.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		source.Balance = source.Balance.Sub(amount)
		dest.Balance = dest.Balance.Add(amount)
		if err := tx.SaveAccount(ctx, source); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, dest); err != nil {
			return err
		}

		complete(txn)
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			return tx.SaveIdempotencyKey(ctx, req.IdempotencyKey, txn.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Infof("Transfer of %s from %s to %s by user %s",
		amount, req.SourceAccountID, req.DestAccountID, req.ActorUserID)
	e.dispatchFraudCheck(txn)
	return txn, nil
}

// Deposit credits a single account the caller owns. No second party is
// debited, so the transaction completes immediately.
func (e *Engine) Deposit(ctx context.Context, req DepositRequest) (*models.Transaction, error) {
	amount, err := money.Normalize(req.Amount)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeOwner(ctx, req.ActorUserID, req.DestAccountID); err != nil {
		return nil, err
	}
	if err := e.requireActive(ctx, req.DestAccountID); err != nil {
		return nil, err
	}

	if txn, err := e.replay(ctx, req.IdempotencyKey); txn != nil || err != nil {
		return txn, err
	}

	txn := newTransaction(nil, req.DestAccountID, amount, models.KindDeposit, req.Reference)

	err = e.store.WithinTx(ctx, func(tx TxStore) error {
		dest, err := tx.GetAccountForUpdate(ctx, req.DestAccountID)
		if err != nil {
			return err
		}
		dest.Balance = dest.Balance.Add(amount)
		if err := tx.SaveAccount(ctx, dest); err != nil {
			return err
		}

		complete(txn)
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			return tx.SaveIdempotencyKey(ctx, req.IdempotencyKey, txn.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Infof("Deposit of %s to account %s", amount, req.DestAccountID)
	return txn, nil
}

// Withdraw debits a single account the caller owns.
func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) (*models.Transaction, error) {
	amount, err := money.Normalize(req.Amount)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeOwner(ctx, req.ActorUserID, req.SourceAccountID); err != nil {
		return nil, err
	}
	if err := e.requireActive(ctx, req.SourceAccountID); err != nil {
		return nil, err
	}

	if txn, err := e.replay(ctx, req.IdempotencyKey); txn != nil || err != nil {
		return txn, err
	}

	sourceID := req.SourceAccountID
	txn := newTransaction(&sourceID, req.SourceAccountID, amount, models.KindWithdrawal, req.Reference)

	err = e.store.WithinTx(ctx, func(tx TxStore) error {
		source, err := tx.GetAccountForUpdate(ctx, req.SourceAccountID)
		if err != nil {
			return err
		}
		if source.Status != models.AccountActive {
			return ErrAccountFrozen
		}
		if source.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		source.Balance = source.Balance.Sub(amount)
		if err := tx.SaveAccount(ctx, source); err != nil {
			return err
		}

		complete(txn)
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			return tx.SaveIdempotencyKey(ctx, req.IdempotencyKey, txn.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Infof("Withdrawal of %s from account %s", amount, req.SourceAccountID)
	return txn, nil
}

// authorizeOwner verifies the account exists and belongs to the actor.
func (e *Engine) authorizeOwner(ctx context.Context, actorUserID, accountID uuid.UUID) error {
	owner, err := e.directory.OwnerOf(ctx, accountID)
	if err != nil {
		return err
	}
	if owner != actorUserID {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) requireActive(ctx context.Context, accountID uuid.UUID) error {
	active, err := e.directory.IsActive(ctx, accountID)
	if err != nil {
		return err
	}
	if !active {
		return ErrAccountFrozen
	}
	return nil
}

// replay resolves an idempotency key to the transaction a previous attempt
// committed, so a blind retry is answered instead of applied twice.
func (e *Engine) replay(ctx context.Context, key string) (*models.Transaction, error) {
	if key == "" {
		return nil, nil
	}
	txn, err := e.store.FindTransactionByKey(ctx, key)
	if err == nil {
		e.log.Infof("Idempotent replay of key %q returned transaction %s", key, txn.ID)
		return txn, nil
	}
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, nil
	}
	return nil, err
}

// dispatchFraudCheck hands the committed transaction to the evaluator without
// blocking the caller. Evaluation faults are logged inside the evaluator and
// never roll back the transfer.
func (e *Engine) dispatchFraudCheck(txn *models.Transaction) {
	if e.fraud == nil {
		return
	}
	snapshot := *txn
	go e.fraud.Evaluate(context.Background(), &snapshot)
}

// lockPair acquires both account locks in ascending id order so that two
// concurrent opposite-direction transfers can never deadlock, then returns
// the accounts keyed back to the requested source/dest roles.
func lockPair(ctx context.Context, tx TxStore, sourceID, destID uuid.UUID) (source, dest *models.Account, err error) {
	firstID, secondID := sourceID, destID
	if bytes.Compare(secondID[:], firstID[:]) < 0 {
		firstID, secondID = secondID, firstID
	}

	first, err := tx.GetAccountForUpdate(ctx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := tx.GetAccountForUpdate(ctx, secondID)
	if err != nil {
		return nil, nil, err
	}

	if first.ID == sourceID {
		return first, second, nil
	}
	return second, first, nil
}

func newTransaction(from *uuid.UUID, to uuid.UUID, amount decimal.Decimal, kind, reference string) *models.Transaction {
	return &models.Transaction{
		ID:            uuid.New(),
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        amount,
		Kind:          kind,
		Reference:     reference,
		Status:        models.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// complete marks the pending record completed inside the same commit; pending
// exists for audit replay, not as an observable intermediate state.
func complete(txn *models.Transaction) {
	now := time.Now().UTC()
	txn.Status = models.StatusCompleted
	txn.CompletedAt = &now
}

// Package repository provides the durable ledger stores: Postgres for
// production and an in-memory implementation for tests and single-node use.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tmahmood/finledger/internal/ledger"
	"github.com/tmahmood/finledger/internal/models"
)

// PostgresStore implements ledger.Store on top of database/sql. Row locks
// come from SELECT ... FOR UPDATE; the engine requests them in ascending
// account-id order, which this store preserves.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore initializes a Postgres-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type postgresTx struct {
	tx *sql.Tx
}

// WithinTx wraps fn in one database transaction. Domain errors returned by
// fn pass through untouched; begin/commit faults are translated to the store
// error taxonomy.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx ledger.TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateErr(err)
	}
	defer tx.Rollback()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translateErr(err)
	}
	return nil
}

func (t *postgresTx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `
		SELECT id, user_id, account_number, balance, status, created_at
		FROM ledger.accounts
		WHERE id = $1
		FOR UPDATE`
	account := &models.Account{}
	err := t.tx.QueryRowContext(ctx, query, id).
		Scan(&account.ID, &account.UserID, &account.Number, &account.Balance, &account.Status, &account.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, translateErr(err)
	}
	return account, nil
}

func (t *postgresTx) SaveAccount(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE ledger.accounts
		SET balance = $2, status = $3
		WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, account.ID, account.Balance, account.Status); err != nil {
		return translateErr(err)
	}
	return nil
}

func (t *postgresTx) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO ledger.transactions
			(id, from_account_id, to_account_id, amount, kind, reference, status, is_fraudulent, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := t.tx.ExecContext(ctx, query,
		txn.ID, nullableID(txn.FromAccountID), txn.ToAccountID, txn.Amount, txn.Kind,
		txn.Reference, txn.Status, txn.Fraudulent, txn.CreatedAt, txn.CompletedAt)
	if err != nil {
		return translateErr(err)
	}
	return nil
}

func (t *postgresTx) SaveIdempotencyKey(ctx context.Context, key string, txID uuid.UUID) error {
	query := `
		INSERT INTO ledger.idempotency_keys (key, transaction_id, created_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)`
	if _, err := t.tx.ExecContext(ctx, query, key, txID); err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `
		SELECT id, user_id, account_number, balance, status, created_at
		FROM ledger.accounts
		WHERE id = $1`
	account := &models.Account{}
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&account.ID, &account.UserID, &account.Number, &account.Balance, &account.Status, &account.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, translateErr(err)
	}
	return account, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO ledger.accounts (id, user_id, account_number, balance, status, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query,
		account.ID, account.UserID, account.Number, account.Balance, account.Status).
		Scan(&account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	query := `
		SELECT id, user_id, account_number, balance, status, created_at
		FROM ledger.accounts
		WHERE user_id = $1
		ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		account := &models.Account{}
		if err := rows.Scan(&account.ID, &account.UserID, &account.Number, &account.Balance, &account.Status, &account.CreatedAt); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindTransactionByKey(ctx context.Context, key string) (*models.Transaction, error) {
	query := transactionColumns + `
		FROM ledger.transactions t
		JOIN ledger.idempotency_keys k ON k.transaction_id = t.id
		WHERE k.key = $1`
	return s.queryTransaction(ctx, query, key)
}

// GetTransaction encodes visibility via the ownership join: the row only
// comes back when the user owns at least one side.
func (s *PostgresStore) GetTransaction(ctx context.Context, userID, txID uuid.UUID) (*models.Transaction, error) {
	query := transactionColumns + `
		FROM ledger.transactions t
		JOIN ledger.accounts a ON a.id = t.from_account_id OR a.id = t.to_account_id
		WHERE a.user_id = $1 AND t.id = $2
		LIMIT 1`
	return s.queryTransaction(ctx, query, userID, txID)
}

func (s *PostgresStore) TransactionExists(ctx context.Context, txID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger.transactions WHERE id = $1)`, txID).Scan(&exists)
	if err != nil {
		return false, translateErr(err)
	}
	return exists, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	query := `SELECT DISTINCT ` + transactionFields + `
		FROM ledger.transactions t
		JOIN ledger.accounts a ON a.id = t.from_account_id OR a.id = t.to_account_id
		WHERE a.user_id = $1`
	args := []any{userID}
	if accountID != nil {
		query += ` AND (t.from_account_id = $2 OR t.to_account_id = $2)`
		args = append(args, *accountID)
	}
	query += fmt.Sprintf(` ORDER BY t.created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, translateErr(err)
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountRecentTransfers(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM ledger.transactions
		WHERE from_account_id = $1 AND kind = $2 AND status = $3 AND created_at > $4`
	var count int
	err := s.db.QueryRowContext(ctx, query, accountID, models.KindTransfer, models.StatusCompleted, since).Scan(&count)
	if err != nil {
		return 0, translateErr(err)
	}
	return count, nil
}

func (s *PostgresStore) ListUncheckedTransfers(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	query := transactionColumns + `
		FROM ledger.transactions t
		WHERE t.kind = $1 AND t.status = $2 AND t.fraud_checked_at IS NULL AND t.created_at < $3
		ORDER BY t.created_at
		LIMIT $4`
	rows, err := s.db.QueryContext(ctx, query, models.KindTransfer, models.StatusCompleted, olderThan, limit)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, translateErr(err)
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateFraudAlert(ctx context.Context, alert *models.FraudAlert) error {
	query := `
		INSERT INTO ledger.fraud_alerts (id, transaction_id, reason, action_taken, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, query, alert.ID, alert.TransactionID, alert.Reason, alert.Action, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create fraud alert: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) ListFraudAlerts(ctx context.Context, txID uuid.UUID) ([]*models.FraudAlert, error) {
	query := `
		SELECT id, transaction_id, reason, action_taken, created_at, resolved_at
		FROM ledger.fraud_alerts
		WHERE transaction_id = $1
		ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, txID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []*models.FraudAlert
	for rows.Next() {
		alert := &models.FraudAlert{}
		var resolvedAt sql.NullTime
		if err := rows.Scan(&alert.ID, &alert.TransactionID, &alert.Reason, &alert.Action, &alert.CreatedAt, &resolvedAt); err != nil {
			return nil, translateErr(err)
		}
		if resolvedAt.Valid {
			alert.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkTransactionChecked(ctx context.Context, txID uuid.UUID, fraudulent bool) error {
	query := `
		UPDATE ledger.transactions
		SET is_fraudulent = $2, fraud_checked_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, txID, fraudulent); err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO ledger.users (id, mobile_number, email, full_name, pin_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query,
		user.ID, user.MobileNumber, user.Email, user.FullName, user.PINHash).
		Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) FindUserByMobile(ctx context.Context, mobile string) (*models.User, error) {
	query := `
		SELECT id, mobile_number, email, full_name, pin_hash, created_at
		FROM ledger.users
		WHERE mobile_number = $1`
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, mobile).
		Scan(&user.ID, &user.MobileNumber, &user.Email, &user.FullName, &user.PINHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrUserNotFound
	}
	if err != nil {
		return nil, translateErr(err)
	}
	return user, nil
}

const transactionFields = `t.id, t.from_account_id, t.to_account_id, t.amount, t.kind, t.reference, t.status, t.is_fraudulent, t.created_at, t.completed_at, t.fraud_checked_at`

const transactionColumns = `SELECT ` + transactionFields

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	txn := &models.Transaction{}
	var from uuid.NullUUID
	var completedAt, checkedAt sql.NullTime
	err := row.Scan(&txn.ID, &from, &txn.ToAccountID, &txn.Amount, &txn.Kind,
		&txn.Reference, &txn.Status, &txn.Fraudulent, &txn.CreatedAt, &completedAt, &checkedAt)
	if err != nil {
		return nil, err
	}
	if from.Valid {
		id := from.UUID
		txn.FromAccountID = &id
	}
	if completedAt.Valid {
		txn.CompletedAt = &completedAt.Time
	}
	if checkedAt.Valid {
		txn.FraudCheckedAt = &checkedAt.Time
	}
	return txn, nil
}

func (s *PostgresStore) queryTransaction(ctx context.Context, query string, args ...any) (*models.Transaction, error) {
	txn, err := scanTransaction(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, translateErr(err)
	}
	return txn, nil
}

func nullableID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// translateErr maps driver faults onto the store error taxonomy: races lost
// to another committer become ErrStoreConflict (safe to retry), everything
// else transient becomes ErrStoreUnavailable (no partial commit occurred).
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03", "23505":
			return fmt.Errorf("%w: %s", ledger.ErrStoreConflict, pqErr.Code)
		}
		if pqErr.Code.Class() == "08" {
			return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
}

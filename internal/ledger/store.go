package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tmahmood/finledger/internal/models"
)

// Store is the durable-state contract the engine consumes. Implementations
// must guarantee that everything done inside WithinTx commits atomically or
// not at all, and that concurrent callers locking overlapping accounts
// serialize rather than corrupt state.
type Store interface {
	// WithinTx runs fn inside one atomic unit of work. Locks taken through
	// the TxStore are held until commit or rollback.
	WithinTx(ctx context.Context, fn func(tx TxStore) error) error

	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Account, error)

	// FindTransactionByKey resolves a caller-supplied idempotency key to the
	// transaction it originally produced, or ErrTransactionNotFound.
	FindTransactionByKey(ctx context.Context, key string) (*models.Transaction, error)

	// GetTransaction returns the transaction only if the user owns at least
	// one side of it; the ownership join encodes visibility.
	GetTransaction(ctx context.Context, userID, txID uuid.UUID) (*models.Transaction, error)

	// TransactionExists reports bare existence, ignoring visibility.
	TransactionExists(ctx context.Context, txID uuid.UUID) (bool, error)

	// ListTransactions returns the user's visible transactions, newest
	// first, optionally filtered to one account.
	ListTransactions(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID, limit, offset int) ([]*models.Transaction, error)

	// CountRecentTransfers counts completed transfer-kind transactions from
	// the account created after since, inclusive of any triggering one.
	CountRecentTransfers(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error)

	// ListUncheckedTransfers returns completed transfers that never got a
	// fraud verdict, oldest first, for the out-of-band sweep.
	ListUncheckedTransfers(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error)

	CreateFraudAlert(ctx context.Context, alert *models.FraudAlert) error
	ListFraudAlerts(ctx context.Context, txID uuid.UUID) ([]*models.FraudAlert, error)

	// MarkTransactionChecked records the fraud verdict. It may only set the
	// fraud flag; core transaction fields stay immutable.
	MarkTransactionChecked(ctx context.Context, txID uuid.UUID, fraudulent bool) error

	CreateUser(ctx context.Context, user *models.User) error
	FindUserByMobile(ctx context.Context, mobile string) (*models.User, error)
}

// TxStore is the locked view handed to WithinTx callbacks.
type TxStore interface {
	// GetAccountForUpdate re-reads the account under a lock held until the
	// enclosing transaction ends. Callers needing several locks must request
	// them in ascending account-id order.
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)

	SaveAccount(ctx context.Context, account *models.Account) error
	CreateTransaction(ctx context.Context, txn *models.Transaction) error

	// SaveIdempotencyKey binds key to the transaction being committed. A
	// duplicate key aborts the commit with ErrStoreConflict.
	SaveIdempotencyKey(ctx context.Context, key string, txID uuid.UUID) error
}

// Directory provides ownership and status lookups for authorization. It is
// backed by the external user/account registry.
type Directory interface {
	OwnerOf(ctx context.Context, accountID uuid.UUID) (uuid.UUID, error)
	IsActive(ctx context.Context, accountID uuid.UUID) (bool, error)
}

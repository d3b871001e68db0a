package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tmahmood/finledger/internal/ledger"
	"github.com/tmahmood/finledger/internal/models"
)

// MemoryStore is an in-memory ledger.Store. It backs tests and single-node
// deployments without Postgres. Atomicity comes from staging every mutation
// in the unit of work and publishing it in one step; serialization of
// overlapping lockers comes from per-account mutexes that WithinTx holds
// until the unit of work ends.
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[uuid.UUID]*models.Account
	accountLocks  map[uuid.UUID]*sync.Mutex
	transactions  []*models.Transaction
	txIndex       map[uuid.UUID]*models.Transaction
	alerts        []*models.FraudAlert
	users         map[uuid.UUID]*models.User
	usersByMobile map[string]*models.User
	idemKeys      map[string]uuid.UUID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[uuid.UUID]*models.Account),
		accountLocks:  make(map[uuid.UUID]*sync.Mutex),
		txIndex:       make(map[uuid.UUID]*models.Transaction),
		users:         make(map[uuid.UUID]*models.User),
		usersByMobile: make(map[string]*models.User),
		idemKeys:      make(map[string]uuid.UUID),
	}
}

type memoryTx struct {
	store  *MemoryStore
	locked []uuid.UUID
	staged map[uuid.UUID]*models.Account
	txns   []*models.Transaction
	keys   map[string]uuid.UUID
}

// WithinTx runs fn against a staged view. On success the staged state is
// published atomically under the store mutex; on failure nothing is visible.
// Account locks acquired by fn are released in reverse order afterwards.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx ledger.TxStore) error) error {
	tx := &memoryTx{
		store:  s,
		staged: make(map[uuid.UUID]*models.Account),
		keys:   make(map[string]uuid.UUID),
	}
	defer tx.unlock()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (tx *memoryTx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if acct, ok := tx.staged[id]; ok {
		return acct, nil
	}

	tx.store.mu.RLock()
	lock, ok := tx.store.accountLocks[id]
	tx.store.mu.RUnlock()
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}

	// Blocks until any in-flight unit of work touching this account ends.
	lock.Lock()
	tx.locked = append(tx.locked, id)

	tx.store.mu.RLock()
	current := tx.store.accounts[id]
	cp := *current
	tx.store.mu.RUnlock()

	tx.staged[id] = &cp
	return &cp, nil
}

func (tx *memoryTx) SaveAccount(ctx context.Context, account *models.Account) error {
	tx.staged[account.ID] = account
	return nil
}

func (tx *memoryTx) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	cp := *txn
	tx.txns = append(tx.txns, &cp)
	return nil
}

func (tx *memoryTx) SaveIdempotencyKey(ctx context.Context, key string, txID uuid.UUID) error {
	tx.keys[key] = txID
	return nil
}

func (tx *memoryTx) commit() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for key := range tx.keys {
		if _, exists := tx.store.idemKeys[key]; exists {
			return ledger.ErrStoreConflict
		}
	}

	for id, acct := range tx.staged {
		cp := *acct
		tx.store.accounts[id] = &cp
	}
	for _, txn := range tx.txns {
		tx.store.transactions = append(tx.store.transactions, txn)
		tx.store.txIndex[txn.ID] = txn
	}
	for key, txID := range tx.keys {
		tx.store.idemKeys[key] = txID
	}
	return nil
}

func (tx *memoryTx) unlock() {
	for i := len(tx.locked) - 1; i >= 0; i-- {
		tx.store.mu.RLock()
		lock := tx.store.accountLocks[tx.locked[i]]
		tx.store.mu.RUnlock()
		lock.Unlock()
	}
	tx.locked = nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *account
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.accounts[cp.ID] = &cp
	s.accountLocks[cp.ID] = &sync.Mutex{}
	return nil
}

func (s *MemoryStore) ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Account
	for _, acct := range s.accounts {
		if acct.UserID == userID {
			cp := *acct
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FindTransactionByKey(ctx context.Context, key string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txID, ok := s.idemKeys[key]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	cp := *s.txIndex[txID]
	return &cp, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, userID, txID uuid.UUID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txn, ok := s.txIndex[txID]
	if !ok || !s.visibleTo(txn, userID) {
		return nil, ledger.ErrTransactionNotFound
	}
	cp := *txn
	return &cp, nil
}

func (s *MemoryStore) TransactionExists(ctx context.Context, txID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.txIndex[txID]
	return ok, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Transaction
	for _, txn := range s.transactions {
		if !s.visibleTo(txn, userID) {
			continue
		}
		if accountID != nil && !touches(txn, *accountID) {
			continue
		}
		matched = append(matched, txn)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	out := make([]*models.Transaction, 0, len(matched))
	for _, txn := range matched {
		cp := *txn
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) CountRecentTransfers(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, txn := range s.transactions {
		if txn.Kind != models.KindTransfer || txn.Status != models.StatusCompleted {
			continue
		}
		if txn.FromAccountID == nil || *txn.FromAccountID != accountID {
			continue
		}
		if txn.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListUncheckedTransfers(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Transaction
	for _, txn := range s.transactions {
		if txn.Kind != models.KindTransfer || txn.Status != models.StatusCompleted {
			continue
		}
		if txn.FraudCheckedAt != nil || !txn.CreatedAt.Before(olderThan) {
			continue
		}
		cp := *txn
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateFraudAlert(ctx context.Context, alert *models.FraudAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alert
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *MemoryStore) ListFraudAlerts(ctx context.Context, txID uuid.UUID) ([]*models.FraudAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.FraudAlert
	for _, alert := range s.alerts {
		if alert.TransactionID == txID {
			cp := *alert
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkTransactionChecked(ctx context.Context, txID uuid.UUID, fraudulent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txIndex[txID]
	if !ok {
		return ledger.ErrTransactionNotFound
	}
	now := time.Now().UTC()
	txn.Fraudulent = fraudulent
	txn.FraudCheckedAt = &now
	return nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByMobile[user.MobileNumber]; exists {
		return ledger.ErrStoreConflict
	}
	cp := *user
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.users[cp.ID] = &cp
	s.usersByMobile[cp.MobileNumber] = &cp
	return nil
}

func (s *MemoryStore) FindUserByMobile(ctx context.Context, mobile string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByMobile[mobile]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// visibleTo reports whether the user owns at least one side of the
// transaction; this is the join the lookup queries encode.
func (s *MemoryStore) visibleTo(txn *models.Transaction, userID uuid.UUID) bool {
	if txn.FromAccountID != nil {
		if acct, ok := s.accounts[*txn.FromAccountID]; ok && acct.UserID == userID {
			return true
		}
	}
	if acct, ok := s.accounts[txn.ToAccountID]; ok && acct.UserID == userID {
		return true
	}
	return false
}

func touches(txn *models.Transaction, accountID uuid.UUID) bool {
	if txn.FromAccountID != nil && *txn.FromAccountID == accountID {
		return true
	}
	return txn.ToAccountID == accountID
}

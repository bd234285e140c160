package repository

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
)

// MemoryStore keeps every entity in process memory. A unit of work holds the
// write lock from start to finish, so no reader observes half a transfer.
type MemoryStore struct {
	mu     sync.RWMutex
	logger *slog.Logger

	accounts        map[string]*domain.Account
	accountOrder    []string
	accountByNumber map[string]string

	transactions map[string]*memoryTransaction
	seq          int64

	users     map[string]*domain.User
	userOrder []string
}

type memoryTransaction struct {
	tx  domain.Transaction
	seq int64
}

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		logger:          logger,
		accounts:        make(map[string]*domain.Account),
		accountByNumber: make(map[string]string),
		transactions:    make(map[string]*memoryTransaction),
		users:           make(map[string]*domain.User),
	}
}

func (s *MemoryStore) Accounts() domain.AccountRepository {
	return &memoryAccounts{memoryView{s: s}}
}

func (s *MemoryStore) Transactions() domain.TransactionRepository {
	return &memoryTransactions{memoryView{s: s}}
}

func (s *MemoryStore) Users() domain.UserRepository {
	return &memoryUsers{memoryView{s: s}}
}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return runCompensated(ctx, &memoryTxStore{s: s}, s.logger, fn)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// memoryTxStore is the view used while the write lock is already held.
type memoryTxStore struct {
	s *MemoryStore
}

func (t *memoryTxStore) Accounts() domain.AccountRepository {
	return &memoryAccounts{memoryView{s: t.s, locked: true}}
}

func (t *memoryTxStore) Transactions() domain.TransactionRepository {
	return &memoryTransactions{memoryView{s: t.s, locked: true}}
}

func (t *memoryTxStore) Users() domain.UserRepository {
	return &memoryUsers{memoryView{s: t.s, locked: true}}
}

func (t *memoryTxStore) WithTransaction(_ context.Context, fn func(Store) error) error {
	return fn(t)
}

func (t *memoryTxStore) Ping(context.Context) error { return nil }

func (t *memoryTxStore) Close() error { return nil }

type memoryView struct {
	s      *MemoryStore
	locked bool
}

func (v memoryView) read() func() {
	if v.locked {
		return func() {}
	}
	v.s.mu.RLock()
	return v.s.mu.RUnlock
}

func (v memoryView) write() func() {
	if v.locked {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

// accounts

type memoryAccounts struct {
	memoryView
}

func (r *memoryAccounts) CreateAccount(_ context.Context, account *domain.Account) error {
	defer r.write()()

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if _, ok := r.s.accounts[account.ID]; ok {
		return errors.ErrDuplicateAccount
	}
	if _, ok := r.s.accountByNumber[account.AccountNumber]; ok {
		return errors.ErrDuplicateAccount
	}

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	stored := *account
	r.s.accounts[stored.ID] = &stored
	r.s.accountByNumber[stored.AccountNumber] = stored.ID
	r.s.accountOrder = append(r.s.accountOrder, stored.ID)

	r.s.logger.Debug("Account created", "account_id", stored.ID, "account_number", stored.AccountNumber)
	return nil
}

func (r *memoryAccounts) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	defer r.read()()

	account, ok := r.s.accounts[id]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (r *memoryAccounts) GetAccountByNumber(_ context.Context, accountNumber string) (*domain.Account, error) {
	defer r.read()()

	account, ok := r.byNumber(accountNumber)
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (r *memoryAccounts) ListAccounts(_ context.Context) ([]*domain.Account, error) {
	defer r.read()()
	return r.collect(func(*domain.Account) bool { return true }), nil
}

func (r *memoryAccounts) ListAccountsByOwner(_ context.Context, userID string) ([]*domain.Account, error) {
	defer r.read()()
	return r.collect(func(a *domain.Account) bool { return a.OwnerUserID == userID }), nil
}

func (r *memoryAccounts) ApplyDelta(_ context.Context, accountNumber string, delta decimal.Decimal) (*domain.Account, error) {
	defer r.write()()

	account, ok := r.byNumber(accountNumber)
	if !ok {
		return nil, errors.ErrAccountNotFound
	}

	balance := account.Balance.Add(delta)
	if balance.IsNegative() {
		return nil, errors.ErrInsufficientFunds
	}

	account.Balance = balance
	account.UpdatedAt = time.Now().UTC()

	cp := *account
	return &cp, nil
}

func (r *memoryAccounts) byNumber(accountNumber string) (*domain.Account, bool) {
	id, ok := r.s.accountByNumber[accountNumber]
	if !ok {
		return nil, false
	}
	account, ok := r.s.accounts[id]
	return account, ok
}

func (r *memoryAccounts) collect(keep func(*domain.Account) bool) []*domain.Account {
	out := make([]*domain.Account, 0, len(r.s.accountOrder))
	for _, id := range r.s.accountOrder {
		account := r.s.accounts[id]
		if keep(account) {
			cp := *account
			out = append(out, &cp)
		}
	}
	return out
}

// transactions

type memoryTransactions struct {
	memoryView
}

func (r *memoryTransactions) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	defer r.write()()

	prepareTransaction(tx)
	if _, ok := r.s.transactions[tx.ID]; ok {
		return errors.NewAppErrorf(errors.InvalidInput, "transaction %s already exists", tx.ID)
	}

	r.s.seq++
	r.s.transactions[tx.ID] = &memoryTransaction{tx: *tx, seq: r.s.seq}
	return nil
}

func (r *memoryTransactions) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	defer r.read()()

	record, ok := r.s.transactions[id]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	cp := record.tx
	return &cp, nil
}

func (r *memoryTransactions) ListTransactions(_ context.Context) ([]*domain.Transaction, error) {
	defer r.read()()
	return r.collect(func(*domain.Transaction) bool { return true }), nil
}

func (r *memoryTransactions) ListTransactionsByAccountNumber(_ context.Context, accountNumber string) ([]*domain.Transaction, error) {
	defer r.read()()
	return r.collect(func(tx *domain.Transaction) bool { return tx.Involves(accountNumber) }), nil
}

func (r *memoryTransactions) DeleteTransaction(_ context.Context, id string) (bool, error) {
	defer r.write()()

	if _, ok := r.s.transactions[id]; !ok {
		return false, nil
	}
	delete(r.s.transactions, id)
	return true, nil
}

// collect returns matching records most-recent-first: date descending, then
// later insertion first.
func (r *memoryTransactions) collect(keep func(*domain.Transaction) bool) []*domain.Transaction {
	records := make([]*memoryTransaction, 0, len(r.s.transactions))
	for _, record := range r.s.transactions {
		if keep(&record.tx) {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].tx.Date.Equal(records[j].tx.Date) {
			return records[i].tx.Date.After(records[j].tx.Date)
		}
		return records[i].seq > records[j].seq
	})

	out := make([]*domain.Transaction, len(records))
	for i, record := range records {
		cp := record.tx
		out[i] = &cp
	}
	return out
}

// users

type memoryUsers struct {
	memoryView
}

func (r *memoryUsers) CreateUser(_ context.Context, user *domain.User) error {
	defer r.write()()

	if err := r.conflict(user); err != nil {
		return err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, ok := r.s.users[user.ID]; ok {
		return errors.NewAppErrorf(errors.InvalidInput, "user %s already exists", user.ID)
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	r.s.users[stored.ID] = &stored
	r.s.userOrder = append(r.s.userOrder, stored.ID)
	return nil
}

func (r *memoryUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	defer r.read()()

	user, ok := r.s.users[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *memoryUsers) GetUserByUserName(_ context.Context, userName string) (*domain.User, error) {
	defer r.read()()

	for _, id := range r.s.userOrder {
		if user := r.s.users[id]; strings.EqualFold(user.UserName, userName) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, errors.ErrUserNotFound
}

func (r *memoryUsers) ListUsers(_ context.Context) ([]*domain.User, error) {
	defer r.read()()

	out := make([]*domain.User, 0, len(r.s.userOrder))
	for _, id := range r.s.userOrder {
		cp := *r.s.users[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memoryUsers) UpdateUser(_ context.Context, user *domain.User) error {
	defer r.write()()

	existing, ok := r.s.users[user.ID]
	if !ok {
		return errors.ErrUserNotFound
	}
	if err := r.conflict(user); err != nil {
		return err
	}

	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	stored := *user
	r.s.users[user.ID] = &stored
	return nil
}

func (r *memoryUsers) DeleteUser(_ context.Context, id string) (bool, error) {
	defer r.write()()

	if _, ok := r.s.users[id]; !ok {
		return false, nil
	}
	delete(r.s.users, id)
	for i, existing := range r.s.userOrder {
		if existing == id {
			r.s.userOrder = append(r.s.userOrder[:i], r.s.userOrder[i+1:]...)
			break
		}
	}
	return true, nil
}

// conflict mirrors the case-insensitive unique indexes of the SQL schema.
func (r *memoryUsers) conflict(user *domain.User) error {
	for _, other := range r.s.users {
		if other.ID == user.ID {
			continue
		}
		if strings.EqualFold(other.UserName, user.UserName) {
			return errors.ErrDuplicateUsername
		}
		if strings.EqualFold(other.Email, user.Email) {
			return errors.ErrDuplicateEmail
		}
	}
	return nil
}

package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
)

const (
	accountResource     = "Account"
	transactionResource = "Transaction"
)

// RemoteStore talks to a REST data service exposing Account and Transaction
// resources. Users live in process memory because the service has no user
// resource.
type RemoteStore struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	users   *MemoryStore

	// Serializes units of work issued by this process.
	mu sync.Mutex
}

func NewRemoteStore(baseURL string, client *http.Client, logger *slog.Logger) *RemoteStore {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
		users:   NewMemoryStore(logger),
	}
}

func (s *RemoteStore) Accounts() domain.AccountRepository {
	return &remoteAccounts{s}
}

func (s *RemoteStore) Transactions() domain.TransactionRepository {
	return &remoteTransactions{s}
}

func (s *RemoteStore) Users() domain.UserRepository {
	return s.users.Users()
}

func (s *RemoteStore) WithTransaction(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return runCompensated(ctx, s, s.logger, fn)
}

func (s *RemoteStore) Ping(ctx context.Context) error {
	var accounts []remoteAccount
	return s.do(ctx, http.MethodGet, s.resourceURL(accountResource, ""), nil, &accounts)
}

func (s *RemoteStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *RemoteStore) resourceURL(resource, id string) string {
	if id == "" {
		return s.baseURL + "/" + resource
	}
	return s.baseURL + "/" + resource + "/" + url.PathEscape(id)
}

// errRemoteNotFound is translated by each caller into its own not-found error.
var errRemoteNotFound = errors.NewAppError(errors.InternalError, "remote resource not found")

func (s *RemoteStore) do(ctx context.Context, method, target string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(errors.InternalError, "failed to encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.Wrap(errors.InternalError, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("Remote store request failed", "method", method, "url", target, "error", err)
		return errors.Wrap(errors.StoreUnavailable, "remote store unreachable", err)
	}
	defer resp.Body.Close()

	s.logger.Debug("Remote store request", "method", method, "url", target, "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errRemoteNotFound
	case resp.StatusCode >= 500:
		return errors.NewAppError(errors.StoreUnavailable, "remote store error").
			WithDetails(fmt.Sprintf("%s %s: %s", method, target, resp.Status))
	case resp.StatusCode >= 400:
		return errors.NewAppError(errors.InternalError, "remote store rejected request").
			WithDetails(fmt.Sprintf("%s %s: %s", method, target, resp.Status))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.StoreUnavailable, "failed to decode remote response", err)
	}
	return nil
}

// uncertain reports whether a failed write may still have been applied: the
// request left this process but no usable reply came back.
func uncertain(err error) bool {
	return errors.As(err).Code == errors.StoreUnavailable
}

func notFoundAs(err error, replacement *errors.AppError) error {
	if err == errRemoteNotFound {
		return replacement
	}
	return err
}

// wire format

// flexString accepts both JSON strings and numbers; the data service is not
// consistent about id types.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

// number is a decimal written as a bare JSON number.
type number struct {
	decimal.Decimal
}

func (n number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

func (n *number) UnmarshalJSON(b []byte) error {
	return n.Decimal.UnmarshalJSON(b)
}

type remoteAccount struct {
	ID          flexString `json:"id,omitempty"`
	AccountNo   string     `json:"accountNo"`
	AccountType string     `json:"accountType"`
	Balance     number     `json:"balance"`
	UserID      flexString `json:"userId"`
}

func (a remoteAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:            string(a.ID),
		AccountNumber: a.AccountNo,
		AccountType:   domain.AccountType(a.AccountType),
		Balance:       a.Balance.Decimal,
		OwnerUserID:   string(a.UserID),
	}
}

func accountToRemote(account *domain.Account) remoteAccount {
	return remoteAccount{
		ID:          flexString(account.ID),
		AccountNo:   account.AccountNumber,
		AccountType: string(account.AccountType),
		Balance:     number{account.Balance},
		UserID:      flexString(account.OwnerUserID),
	}
}

type remoteTransaction struct {
	ID            flexString `json:"id,omitempty"`
	TransferID    string     `json:"transferId,omitempty"`
	FromAccountNo string     `json:"fromAccountNo"`
	ToAccountNo   string     `json:"ToAccountNo"`
	Date          time.Time  `json:"date"`
	Amount        number     `json:"amount"`
	Type          string     `json:"type"`
	Description   string     `json:"description"`
}

func (t remoteTransaction) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:                string(t.ID),
		TransferID:        t.TransferID,
		FromAccountNumber: t.FromAccountNo,
		ToAccountNumber:   t.ToAccountNo,
		Amount:            t.Amount.Decimal,
		Type:              domain.TransactionType(t.Type),
		Date:              t.Date,
		Description:       t.Description,
	}
}

func transactionToRemote(tx *domain.Transaction) remoteTransaction {
	return remoteTransaction{
		ID:            flexString(tx.ID),
		TransferID:    tx.TransferID,
		FromAccountNo: tx.FromAccountNumber,
		ToAccountNo:   tx.ToAccountNumber,
		Date:          tx.Date,
		Amount:        number{tx.Amount},
		Type:          string(tx.Type),
		Description:   tx.Description,
	}
}

// accounts

type remoteAccounts struct {
	s *RemoteStore
}

func (r *remoteAccounts) CreateAccount(ctx context.Context, account *domain.Account) error {
	if _, err := r.GetAccountByNumber(ctx, account.AccountNumber); err == nil {
		return errors.ErrDuplicateAccount
	}

	var created remoteAccount
	if err := r.s.do(ctx, http.MethodPost, r.s.resourceURL(accountResource, ""), accountToRemote(account), &created); err != nil {
		return err
	}

	account.ID = string(created.ID)
	r.s.logger.Info("Account created", "account_id", account.ID, "account_number", account.AccountNumber)
	return nil
}

func (r *remoteAccounts) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var account remoteAccount
	if err := r.s.do(ctx, http.MethodGet, r.s.resourceURL(accountResource, id), nil, &account); err != nil {
		return nil, notFoundAs(err, errors.ErrAccountNotFound)
	}
	return account.toDomain(), nil
}

func (r *remoteAccounts) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	accounts, err := r.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if account.AccountNumber == accountNumber {
			return account, nil
		}
	}
	return nil, errors.ErrAccountNotFound
}

func (r *remoteAccounts) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	var accounts []remoteAccount
	if err := r.s.do(ctx, http.MethodGet, r.s.resourceURL(accountResource, ""), nil, &accounts); err != nil {
		// An empty collection is reported as 404 by some mock services
		if err == errRemoteNotFound {
			return []*domain.Account{}, nil
		}
		return nil, err
	}

	out := make([]*domain.Account, len(accounts))
	for i, account := range accounts {
		out[i] = account.toDomain()
	}
	return out, nil
}

func (r *remoteAccounts) ListAccountsByOwner(ctx context.Context, userID string) ([]*domain.Account, error) {
	accounts, err := r.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	owned := make([]*domain.Account, 0)
	for _, account := range accounts {
		if account.OwnerUserID == userID {
			owned = append(owned, account)
		}
	}
	return owned, nil
}

func (r *remoteAccounts) ApplyDelta(ctx context.Context, accountNumber string, delta decimal.Decimal) (*domain.Account, error) {
	account, err := r.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}

	balance := account.Balance.Add(delta)
	if balance.IsNegative() {
		return nil, errors.ErrInsufficientFunds
	}
	account.Balance = balance

	var updated remoteAccount
	target := r.s.resourceURL(accountResource, account.ID)
	if err := r.s.do(ctx, http.MethodPut, target, accountToRemote(account), &updated); err != nil {
		landed, ok := r.confirmBalance(ctx, account.ID, balance, err)
		if !ok {
			return nil, notFoundAs(err, errors.ErrAccountNotFound)
		}
		r.s.logger.Warn("Account update applied despite failed reply", "account_number", accountNumber, "error", err)
		return landed, nil
	}

	r.s.logger.Info("Account balance updated", "account_number", accountNumber, "delta", delta, "new_balance", balance)
	return updated.toDomain(), nil
}

// confirmBalance re-reads an account after an uncertain update and reports
// whether it already holds the intended balance.
func (r *remoteAccounts) confirmBalance(ctx context.Context, id string, want decimal.Decimal, cause error) (*domain.Account, bool) {
	if !uncertain(cause) {
		return nil, false
	}
	current, err := r.GetAccount(context.WithoutCancel(ctx), id)
	if err != nil || !current.Balance.Equal(want) {
		return nil, false
	}
	return current, true
}

// transactions

type remoteTransactions struct {
	s *RemoteStore
}

func (r *remoteTransactions) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.Date.IsZero() {
		tx.Date = time.Now().UTC()
	}

	var created remoteTransaction
	if err := r.s.do(ctx, http.MethodPost, r.s.resourceURL(transactionResource, ""), transactionToRemote(tx), &created); err != nil {
		landed, ok := r.confirmCreated(ctx, tx, err)
		if !ok {
			return err
		}
		r.s.logger.Warn("Transaction create applied despite failed reply", "transfer_id", tx.TransferID, "type", tx.Type, "error", err)
		tx.ID = landed.ID
		return nil
	}

	// The service assigns ids when none was sent
	if tx.ID == "" {
		tx.ID = string(created.ID)
	}
	r.s.logger.Info("Transaction created", "transaction_id", tx.ID, "type", tx.Type)
	return nil
}

// confirmCreated looks for a record written by an uncertain create. Only legs
// carrying a transfer id can be recognized; the service may assign its own
// record ids, so the pair (transfer id, type) is the match key.
func (r *remoteTransactions) confirmCreated(ctx context.Context, tx *domain.Transaction, cause error) (*domain.Transaction, bool) {
	if !uncertain(cause) || tx.TransferID == "" {
		return nil, false
	}
	records, err := r.ListTransactions(context.WithoutCancel(ctx))
	if err != nil {
		return nil, false
	}
	for _, record := range records {
		if record.TransferID == tx.TransferID && record.Type == tx.Type {
			return record, true
		}
	}
	return nil, false
}

func (r *remoteTransactions) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var tx remoteTransaction
	if err := r.s.do(ctx, http.MethodGet, r.s.resourceURL(transactionResource, id), nil, &tx); err != nil {
		return nil, notFoundAs(err, errors.ErrTransactionNotFound)
	}
	return tx.toDomain(), nil
}

func (r *remoteTransactions) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	return r.list(ctx, func(*domain.Transaction) bool { return true })
}

func (r *remoteTransactions) ListTransactionsByAccountNumber(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	return r.list(ctx, func(tx *domain.Transaction) bool { return tx.Involves(accountNumber) })
}

func (r *remoteTransactions) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	err := r.s.do(ctx, http.MethodDelete, r.s.resourceURL(transactionResource, id), nil, nil)
	if err == errRemoteNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// list returns records most-recent-first. The service returns them in
// creation order, so reversing first keeps later insertions ahead on equal dates.
func (r *remoteTransactions) list(ctx context.Context, keep func(*domain.Transaction) bool) ([]*domain.Transaction, error) {
	var records []remoteTransaction
	if err := r.s.do(ctx, http.MethodGet, r.s.resourceURL(transactionResource, ""), nil, &records); err != nil {
		if err == errRemoteNotFound {
			return []*domain.Transaction{}, nil
		}
		return nil, err
	}

	out := make([]*domain.Transaction, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		if tx := records[i].toDomain(); keep(tx) {
			out = append(out, tx)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

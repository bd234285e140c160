package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
)

const accountColumns = `id, account_number, account_type, balance, owner_user_id, created_at, updated_at`

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, account_number, account_type, balance, owner_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		query,
		account.ID,
		account.AccountNumber,
		string(account.AccountType),
		account.Balance.String(),
		account.OwnerUserID,
		now,
		now,
	)

	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			r.logger.Warn("Duplicate account creation attempt", "account_id", account.ID, "account_number", account.AccountNumber)
			return errors.ErrDuplicateAccount
		}
		r.logger.Error("Failed to create account", "account_id", account.ID, "error", err)
		return storeError("create account", err)
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "account_id", account.ID, "account_number", account.AccountNumber)
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id), id)
}

func (r *accountRepository) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, accountNumber), accountNumber)
}

func (r *accountRepository) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY seq`
	return r.queryAccounts(ctx, query)
}

func (r *accountRepository) ListAccountsByOwner(ctx context.Context, userID string) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_user_id = $1 ORDER BY seq`
	return r.queryAccounts(ctx, query, userID)
}

func (r *accountRepository) ApplyDelta(ctx context.Context, accountNumber string, delta decimal.Decimal) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1::numeric, updated_at = $2
		WHERE account_number = $3 AND balance + $1::numeric >= 0
		RETURNING ` + accountColumns

	row := r.db.QueryRowContext(ctx, query, delta.String(), time.Now().UTC(), accountNumber)
	account, err := r.scanAccount(row, accountNumber)
	if err == nil {
		r.logger.Info("Account balance updated", "account_number", accountNumber, "delta", delta, "new_balance", account.Balance)
		return account, nil
	}

	if !errors.ErrAccountNotFound.Is(err) {
		return nil, err
	}

	// No row updated: either the account is absent or the guard rejected it
	if _, getErr := r.GetAccountByNumber(ctx, accountNumber); getErr != nil {
		return nil, getErr
	}
	r.logger.Warn("Balance update rejected", "account_number", accountNumber, "delta", delta)
	return nil, errors.ErrInsufficientFunds
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *accountRepository) scanAccount(row rowScanner, key string) (*domain.Account, error) {
	var account domain.Account
	var accountType string
	var balanceStr string

	err := row.Scan(
		&account.ID,
		&account.AccountNumber,
		&accountType,
		&balanceStr,
		&account.OwnerUserID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Debug("Account not found", "account", key)
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "account", key, "error", err)
		return nil, storeError("get account", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		r.logger.Error("Failed to parse balance", "account", key, "balance_str", balanceStr, "error", err)
		return nil, errors.Wrap(errors.InternalError, "failed to parse balance", err)
	}

	account.AccountType = domain.AccountType(accountType)
	account.Balance = balance
	return &account, nil
}

func (r *accountRepository) queryAccounts(ctx context.Context, query string, args ...interface{}) ([]*domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list accounts", "error", err)
		return nil, storeError("list accounts", err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := r.scanAccount(rows, "")
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list accounts", err)
	}
	return accounts, nil
}

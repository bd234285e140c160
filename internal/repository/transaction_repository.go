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

const transactionColumns = `id, transfer_id, from_account_number, to_account_number, amount, type, date, description`

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, transfer_id, from_account_number, to_account_number, amount, type, date, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	prepareTransaction(tx)

	_, err := r.db.ExecContext(ctx,
		query,
		tx.ID,
		tx.TransferID,
		tx.FromAccountNumber,
		tx.ToAccountNumber,
		tx.Amount.String(),
		string(tx.Type),
		tx.Date,
		tx.Description,
	)

	if err != nil {
		r.logger.Error("Failed to create transaction",
			"from_account_number", tx.FromAccountNumber,
			"to_account_number", tx.ToAccountNumber,
			"amount", tx.Amount,
			"error", err)
		return storeError("create transaction", err)
	}

	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID, "type", tx.Type)
	return nil
}

func (r *transactionRepository) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	transaction, err := r.scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get transaction", "transaction_id", id, "error", err)
		return nil, storeError("get transaction", err)
	}
	return transaction, nil
}

func (r *transactionRepository) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY date DESC, seq DESC`
	return r.queryTransactions(ctx, query)
}

func (r *transactionRepository) ListTransactionsByAccountNumber(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + ` FROM transactions
		WHERE from_account_number = $1 OR to_account_number = $1
		ORDER BY date DESC, seq DESC`
	return r.queryTransactions(ctx, query, accountNumber)
}

func (r *transactionRepository) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete transaction", "transaction_id", id, "error", err)
		return false, storeError("delete transaction", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, storeError("get rows affected", err)
	}

	if rowsAffected > 0 {
		r.logger.Info("Transaction deleted", "transaction_id", id)
	}
	return rowsAffected > 0, nil
}

func (r *transactionRepository) scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var transaction domain.Transaction
	var amountStr string
	var txType string

	err := row.Scan(
		&transaction.ID,
		&transaction.TransferID,
		&transaction.FromAccountNumber,
		&transaction.ToAccountNumber,
		&amountStr,
		&txType,
		&transaction.Date,
		&transaction.Description,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "failed to parse amount", err)
	}
	transaction.Amount = amount
	transaction.Type = domain.TransactionType(txType)

	return &transaction, nil
}

func (r *transactionRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list transactions", "error", err)
		return nil, storeError("list transactions", err)
	}
	defer rows.Close()

	transactions := make([]*domain.Transaction, 0)
	for rows.Next() {
		transaction, err := r.scanTransaction(rows)
		if err != nil {
			return nil, storeError("scan transaction", err)
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list transactions", err)
	}
	return transactions, nil
}

// prepareTransaction assigns the id and timestamp of a new record when the
// caller left them empty.
func prepareTransaction(tx *domain.Transaction) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Date.IsZero() {
		tx.Date = time.Now().UTC()
	}
}

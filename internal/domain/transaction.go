package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "Debit"
	TransactionTypeCredit TransactionType = "Credit"
)

func (t TransactionType) Valid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

type Transaction struct {
	ID                string          `json:"id"`
	TransferID        string          `json:"transfer_id,omitempty"`
	FromAccountNumber string          `json:"from_account_number"`
	ToAccountNumber   string          `json:"to_account_number"`
	Amount            decimal.Decimal `json:"amount"`
	Type              TransactionType `json:"type"`
	Date              time.Time       `json:"date"`
	Description       string          `json:"description"`
}

// Involves reports whether accountNumber is either side of the record.
func (t *Transaction) Involves(accountNumber string) bool {
	return t.FromAccountNumber == accountNumber || t.ToAccountNumber == accountNumber
}

// TransactionRepository is the Transaction Log. List methods return records
// most-recent-first.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	ListTransactions(ctx context.Context) ([]*Transaction, error)
	ListTransactionsByAccountNumber(ctx context.Context, accountNumber string) ([]*Transaction, error)
	DeleteTransaction(ctx context.Context, id string) (bool, error)
}

// TransferResult is everything a caller needs to refresh its view after a
// committed transfer.
type TransferResult struct {
	TransferID string       `json:"transfer_id"`
	Debit      *Transaction `json:"debit"`
	Credit     *Transaction `json:"credit"`
	Sender     *Account     `json:"sender"`
	Receiver   *Account     `json:"receiver"`
}

package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeSavings AccountType = "Savings"
	AccountTypeCurrent AccountType = "Current"
)

func (t AccountType) Valid() bool {
	return t == AccountTypeSavings || t == AccountTypeCurrent
}

type Account struct {
	ID            string          `json:"id"`
	AccountNumber string          `json:"account_number"`
	AccountType   AccountType     `json:"account_type"`
	Balance       decimal.Decimal `json:"balance"`
	OwnerUserID   string          `json:"owner_user_id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

//go:generate mockgen -destination=mocks/mock_repository.go -package=mocks bank-ledger/internal/domain AccountRepository,TransactionRepository,UserRepository

// AccountRepository is the Account Store. ApplyDelta is the only method that
// changes a balance.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
	ListAccountsByOwner(ctx context.Context, userID string) ([]*Account, error)
	ApplyDelta(ctx context.Context, accountNumber string, delta decimal.Decimal) (*Account, error)
}

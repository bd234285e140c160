package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedAccount writes an account straight into the store.
func seedAccount(t *testing.T, store repository.Store, id, number, owner, balance string) *domain.Account {
	t.Helper()
	account := &domain.Account{
		ID:            id,
		AccountNumber: number,
		AccountType:   domain.AccountTypeSavings,
		Balance:       decimal.RequireFromString(balance),
		OwnerUserID:   owner,
	}
	require.NoError(t, store.Accounts().CreateAccount(context.Background(), account))
	return account
}

func balanceOf(t *testing.T, store repository.Store, id string) decimal.Decimal {
	t.Helper()
	account, err := store.Accounts().GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

package service

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
	"bank-ledger/internal/repository"
)

func TestAccountServiceCreateAccount(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(discardLogger())
	svc := NewAccountService(store, discardLogger())

	account, err := svc.CreateAccount(ctx, &CreateAccountRequest{
		AccountNumber:  " 1001 ",
		AccountType:    domain.AccountTypeSavings,
		InitialBalance: decimal.RequireFromString("2500.75"),
		OwnerUserID:    "1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "1001", account.AccountNumber)

	fetched, err := svc.GetAccountByNumber(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, account.ID, fetched.ID)

	_, err = svc.CreateAccount(ctx, &CreateAccountRequest{
		AccountNumber: "1001", AccountType: domain.AccountTypeCurrent, OwnerUserID: "2",
	})
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateAccount))

	owned, err := svc.ListAccountsByOwner(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestAccountServiceValidation(t *testing.T) {
	svc := NewAccountService(repository.NewMemoryStore(discardLogger()), discardLogger())

	tests := []struct {
		name string
		req  CreateAccountRequest
		code errors.ErrorCode
	}{
		{"missing number", CreateAccountRequest{AccountType: domain.AccountTypeSavings, OwnerUserID: "1"}, errors.InvalidInput},
		{"bad type", CreateAccountRequest{AccountNumber: "1", AccountType: "Checking", OwnerUserID: "1"}, errors.InvalidInput},
		{"missing owner", CreateAccountRequest{AccountNumber: "1", AccountType: domain.AccountTypeSavings}, errors.InvalidInput},
		{"negative balance", CreateAccountRequest{AccountNumber: "1", AccountType: domain.AccountTypeSavings, OwnerUserID: "1", InitialBalance: decimal.NewFromInt(-1)}, errors.InvalidAmount},
		{"too large", CreateAccountRequest{AccountNumber: "1", AccountType: domain.AccountTypeSavings, OwnerUserID: "1", InitialBalance: decimal.NewFromInt(20_000_000_000)}, errors.InvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := svc.CreateAccount(context.Background(), &req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.As(err).Code)
		})
	}
}

func TestAccountServiceGetAccount(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(discardLogger())
	svc := NewAccountService(store, discardLogger())
	seedAccount(t, store, "acc-1", "1001", "1", "10")

	account, err := svc.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "1001", account.AccountNumber)

	_, err = svc.GetAccount(ctx, "missing")
	assert.True(t, stderrors.Is(err, errors.ErrAccountNotFound))

	_, err = svc.GetAccount(ctx, " ")
	assert.Equal(t, errors.InvalidInput, errors.As(err).Code)

	all, err := svc.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

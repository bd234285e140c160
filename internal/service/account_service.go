package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
	"bank-ledger/internal/repository"
)

var maxInitialBalance = decimal.NewFromInt(10_000_000_000) // 10 billion

type AccountService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewAccountService(store repository.Store, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		logger: logger,
	}
}

type CreateAccountRequest struct {
	// ID is optional; the store assigns one when empty.
	ID             string
	AccountNumber  string
	AccountType    domain.AccountType
	InitialBalance decimal.Decimal
	OwnerUserID    string
}

func (s *AccountService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*domain.Account, error) {
	s.logger.Info("Creating account",
		"account_number", req.AccountNumber,
		"account_type", req.AccountType,
		"initial_balance", req.InitialBalance)

	accountNumber := strings.TrimSpace(req.AccountNumber)
	if accountNumber == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "account number is required")
	}
	if !req.AccountType.Valid() {
		return nil, errors.NewAppErrorf(errors.InvalidInput, "account type must be %s or %s",
			domain.AccountTypeSavings, domain.AccountTypeCurrent)
	}
	if strings.TrimSpace(req.OwnerUserID) == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "owner user id is required")
	}

	if req.InitialBalance.IsNegative() {
		return nil, errors.NewAppError(errors.InvalidAmount, "initial balance cannot be negative")
	}
	if req.InitialBalance.GreaterThan(maxInitialBalance) {
		return nil, errors.NewAppError(errors.InvalidAmount, "initial balance exceeds maximum limit")
	}

	account := &domain.Account{
		ID:            req.ID,
		AccountNumber: accountNumber,
		AccountType:   req.AccountType,
		Balance:       req.InitialBalance,
		OwnerUserID:   req.OwnerUserID,
	}

	if err := s.store.Accounts().CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("Account created successfully", "account_id", account.ID, "account_number", account.AccountNumber)
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "account id is required")
	}
	return s.store.Accounts().GetAccount(ctx, accountID)
}

func (s *AccountService) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	if strings.TrimSpace(accountNumber) == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "account number is required")
	}
	return s.store.Accounts().GetAccountByNumber(ctx, accountNumber)
}

func (s *AccountService) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return s.store.Accounts().ListAccounts(ctx)
}

func (s *AccountService) ListAccountsByOwner(ctx context.Context, userID string) ([]*domain.Account, error) {
	return s.store.Accounts().ListAccountsByOwner(ctx, userID)
}

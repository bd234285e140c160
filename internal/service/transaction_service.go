package service

import (
	"context"
	"log/slog"
	"strings"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
	"bank-ledger/internal/query"
	"bank-ledger/internal/repository"
)

type TransactionService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewTransactionService(store repository.Store, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		store:  store,
		logger: logger,
	}
}

// TransactionQuery selects a view of the log. With OwnerUserID set the view is
// that user's: their accounts only, one leg per transfer. AccountNumber
// narrows further, or on its own gives a single account's view.
type TransactionQuery struct {
	OwnerUserID   string
	AccountNumber string
	Filter        query.Filter
	Page          int
	PageSize      int
}

func (s *TransactionService) Query(ctx context.Context, q TransactionQuery) (query.Page[*domain.Transaction], error) {
	switch {
	case q.OwnerUserID != "":
		return s.ListForOwner(ctx, q.OwnerUserID, q.AccountNumber, q.Filter, q.Page, q.PageSize)
	case q.AccountNumber != "":
		records, err := s.ListByAccountNumber(ctx, q.AccountNumber)
		if err != nil {
			return query.Page[*domain.Transaction]{}, err
		}
		numbers := []string{q.AccountNumber}
		view := query.ViewerLegs(query.FilterTransactions(records, numbers, q.Filter), numbers)
		return query.Paginate(view, q.Page, q.PageSize), nil
	default:
		records, err := s.List(ctx)
		if err != nil {
			return query.Page[*domain.Transaction]{}, err
		}
		return query.Paginate(q.Filter.Apply(records), q.Page, q.PageSize), nil
	}
}

// ListForOwner resolves the owner's account numbers, filters the log to them
// and pages through the legs the owner should see. A non-empty accountNumber
// must be one of the owner's accounts.
func (s *TransactionService) ListForOwner(ctx context.Context, ownerUserID, accountNumber string, filter query.Filter, page, pageSize int) (query.Page[*domain.Transaction], error) {
	numbers, err := s.ownedNumbers(ctx, ownerUserID)
	if err != nil {
		return query.Page[*domain.Transaction]{}, err
	}

	if accountNumber != "" {
		if !contains(numbers, accountNumber) {
			return query.Page[*domain.Transaction]{}, errors.NewAppErrorf(errors.AccountNotFound,
				"account %s does not belong to user %s", accountNumber, ownerUserID)
		}
		numbers = []string{accountNumber}
	}

	records, err := s.store.Transactions().ListTransactions(ctx)
	if err != nil {
		return query.Page[*domain.Transaction]{}, err
	}

	view := query.ViewerLegs(query.FilterTransactions(records, numbers, filter), numbers)
	s.logger.Debug("Listed owner transactions",
		"owner_user_id", ownerUserID,
		"accounts", len(numbers),
		"matches", len(view))
	return query.Paginate(view, page, pageSize), nil
}

// Recent is the "load more" view: the first limit records of an owner's
// view, or of the whole log when ownerUserID is empty.
func (s *TransactionService) Recent(ctx context.Context, ownerUserID string, limit int) ([]*domain.Transaction, error) {
	records, err := s.store.Transactions().ListTransactions(ctx)
	if err != nil {
		return nil, err
	}

	if ownerUserID != "" {
		numbers, err := s.ownedNumbers(ctx, ownerUserID)
		if err != nil {
			return nil, err
		}
		records = query.ViewerLegs(query.FilterTransactions(records, numbers, query.Filter{}), numbers)
	}
	return query.Window(records, limit), nil
}

func (s *TransactionService) List(ctx context.Context) ([]*domain.Transaction, error) {
	return s.store.Transactions().ListTransactions(ctx)
}

func (s *TransactionService) ListByAccountNumber(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	if strings.TrimSpace(accountNumber) == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "account number is required")
	}
	return s.store.Transactions().ListTransactionsByAccountNumber(ctx, accountNumber)
}

func (s *TransactionService) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.store.Transactions().GetTransaction(ctx, id)
}

// Delete removes a single record. Deleting an unknown id is not an error; the
// result reports whether anything was removed.
func (s *TransactionService) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := s.store.Transactions().DeleteTransaction(ctx, id)
	if err != nil {
		return false, err
	}
	s.logger.Info("Transaction delete requested", "transaction_id", id, "removed", removed)
	return removed, nil
}

// Append writes a record as-is. Balances are not touched; it exists for
// seeding history and for administrative corrections.
func (s *TransactionService) Append(ctx context.Context, tx *domain.Transaction) error {
	if !tx.Amount.IsPositive() {
		return errors.ErrInvalidAmount
	}
	if !tx.Type.Valid() {
		return errors.NewAppErrorf(errors.InvalidInput, "transaction type must be %s or %s",
			domain.TransactionTypeDebit, domain.TransactionTypeCredit)
	}
	if tx.FromAccountNumber == "" || tx.ToAccountNumber == "" {
		return errors.NewAppError(errors.InvalidInput, "both account numbers are required")
	}
	return s.store.Transactions().CreateTransaction(ctx, tx)
}

func (s *TransactionService) ownedNumbers(ctx context.Context, ownerUserID string) ([]string, error) {
	accounts, err := s.store.Accounts().ListAccountsByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}

	numbers := make([]string, len(accounts))
	for i, account := range accounts {
		numbers[i] = account.AccountNumber
	}
	return numbers, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

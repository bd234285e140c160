package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
)

// Backends without native transactions (memory, remote) run a unit of work
// through a journal: every write made inside it records its inverse, and a
// failed unit of work replays the inverses newest first.

type compensation struct {
	op   string
	undo func(ctx context.Context) error
}

type journal struct {
	entries []compensation
}

func (j *journal) record(op string, undo func(ctx context.Context) error) {
	j.entries = append(j.entries, compensation{op: op, undo: undo})
}

func (j *journal) rollback(ctx context.Context, logger *slog.Logger) error {
	// Undo must run even when the caller gave up on the request.
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(j.entries) - 1; i >= 0; i-- {
		entry := j.entries[i]
		if err := entry.undo(ctx); err != nil {
			logger.Error("Compensation failed", "op", entry.op, "error", err)
			errs = append(errs, fmt.Errorf("undo %s: %w", entry.op, err))
			continue
		}
		logger.Debug("Compensation applied", "op", entry.op)
	}
	j.entries = nil
	return errors.Join(errs...)
}

func runCompensated(ctx context.Context, base Store, logger *slog.Logger, fn func(Store) error) error {
	j := &journal{}
	txStore := &journaledStore{base: base, journal: j}

	defer func() {
		if p := recover(); p != nil {
			j.rollback(ctx, logger)
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		logger.Warn("Unit of work failed, rolling back", "effects", len(j.entries), "error", err)
		if rbErr := j.rollback(ctx, logger); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return nil
}

type journaledStore struct {
	base    Store
	journal *journal
}

func (s *journaledStore) Accounts() domain.AccountRepository {
	return &journaledAccounts{AccountRepository: s.base.Accounts(), journal: s.journal}
}

func (s *journaledStore) Transactions() domain.TransactionRepository {
	return &journaledTransactions{TransactionRepository: s.base.Transactions(), journal: s.journal}
}

// Users are not part of any unit of work.
func (s *journaledStore) Users() domain.UserRepository {
	return s.base.Users()
}

// WithTransaction joins the enclosing unit of work.
func (s *journaledStore) WithTransaction(_ context.Context, fn func(Store) error) error {
	return fn(s)
}

func (s *journaledStore) Ping(ctx context.Context) error {
	return s.base.Ping(ctx)
}

func (s *journaledStore) Close() error {
	return nil
}

type journaledAccounts struct {
	domain.AccountRepository
	journal *journal
}

func (a *journaledAccounts) ApplyDelta(ctx context.Context, accountNumber string, delta decimal.Decimal) (*domain.Account, error) {
	account, err := a.AccountRepository.ApplyDelta(ctx, accountNumber, delta)
	if err != nil {
		return nil, err
	}

	inner := a.AccountRepository
	a.journal.record("apply delta to "+accountNumber, func(ctx context.Context) error {
		_, err := inner.ApplyDelta(ctx, accountNumber, delta.Neg())
		return err
	})
	return account, nil
}

type journaledTransactions struct {
	domain.TransactionRepository
	journal *journal
}

func (t *journaledTransactions) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := t.TransactionRepository.CreateTransaction(ctx, tx); err != nil {
		return err
	}

	inner := t.TransactionRepository
	id := tx.ID
	t.journal.record("create transaction "+id, func(ctx context.Context) error {
		_, err := inner.DeleteTransaction(ctx, id)
		return err
	})
	return nil
}

func (t *journaledTransactions) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	existing, err := t.TransactionRepository.GetTransaction(ctx, id)
	if err != nil {
		// Nothing to restore; let the backend answer
		return t.TransactionRepository.DeleteTransaction(ctx, id)
	}

	removed, err := t.TransactionRepository.DeleteTransaction(ctx, id)
	if err != nil || !removed {
		return removed, err
	}

	inner := t.TransactionRepository
	t.journal.record("delete transaction "+id, func(ctx context.Context) error {
		restored := *existing
		return inner.CreateTransaction(ctx, &restored)
	})
	return true, nil
}

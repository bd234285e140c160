package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks bank-ledger/internal/repository Store

// Store provides a unified interface for all repository operations with
// unit-of-work support. Every backend implements it.
type Store interface {
	Accounts() domain.AccountRepository
	Transactions() domain.TransactionRepository
	Users() domain.UserRepository

	// WithTransaction runs fn against a Store whose writes either all take
	// effect or, when fn returns an error, are all undone.
	WithTransaction(ctx context.Context, fn func(Store) error) error

	Ping(ctx context.Context) error
	Close() error
}

// SQLStore is the postgres backend.
type SQLStore struct {
	db       *sql.DB
	executor SQLExecutor
	logger   *slog.Logger
}

// NewSQLStore creates a new SQLStore instance
func NewSQLStore(db *sql.DB, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:       db,
		executor: db,
		logger:   logger,
	}
}

// Accounts returns an AccountRepository using the current executor
func (s *SQLStore) Accounts() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

// Transactions returns a TransactionRepository using the current executor
func (s *SQLStore) Transactions() domain.TransactionRepository {
	return NewTransactionRepository(s.executor, s.logger)
}

// Users returns a UserRepository using the current executor
func (s *SQLStore) Users() domain.UserRepository {
	return NewUserRepository(s.executor, s.logger)
}

// WithTransaction executes a function within a database transaction
func (s *SQLStore) WithTransaction(ctx context.Context, fn func(Store) error) error {
	// Already inside a transaction: join it
	if _, ok := s.executor.(*sql.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.StoreUnavailable, "failed to begin transaction", err)
	}

	txStore := &SQLStore{
		db:       s.db,
		executor: tx,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.StoreUnavailable, "failed to commit transaction", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

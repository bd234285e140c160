package repository

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StoreSuite holds the behaviour every backend must share. Each backend test
// embeds it and supplies open, which returns an empty store.
type StoreSuite struct {
	suite.Suite
	open  func() Store
	store Store
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.open()
}

func (s *StoreSuite) createAccount(id, number, owner, balance string) *domain.Account {
	account := &domain.Account{
		ID:            id,
		AccountNumber: number,
		AccountType:   domain.AccountTypeSavings,
		Balance:       decimal.RequireFromString(balance),
		OwnerUserID:   owner,
	}
	s.Require().NoError(s.store.Accounts().CreateAccount(s.ctx, account))
	s.Require().NotEmpty(account.ID)
	return account
}

func (s *StoreSuite) balanceOf(number string) decimal.Decimal {
	account, err := s.store.Accounts().GetAccountByNumber(s.ctx, number)
	s.Require().NoError(err)
	return account.Balance
}

func (s *StoreSuite) assertBalance(number, expected string) {
	actual := s.balanceOf(number)
	s.True(decimal.RequireFromString(expected).Equal(actual),
		"balance of %s: expected %s, got %s", number, expected, actual)
}

func (s *StoreSuite) TestAccountLookups() {
	created := s.createAccount("", "1001", "1", "2500.75")
	s.createAccount("", "1002", "2", "100")
	s.createAccount("", "1003", "1", "0")

	byID, err := s.store.Accounts().GetAccount(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("1001", byID.AccountNumber)
	s.Equal(domain.AccountTypeSavings, byID.AccountType)
	s.True(decimal.RequireFromString("2500.75").Equal(byID.Balance))

	byNumber, err := s.store.Accounts().GetAccountByNumber(s.ctx, "1001")
	s.Require().NoError(err)
	s.Equal(created.ID, byNumber.ID)

	_, err = s.store.Accounts().GetAccountByNumber(s.ctx, "9999")
	s.True(stderrors.Is(err, errors.ErrAccountNotFound))

	all, err := s.store.Accounts().ListAccounts(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 3)

	owned, err := s.store.Accounts().ListAccountsByOwner(s.ctx, "1")
	s.Require().NoError(err)
	s.Require().Len(owned, 2)
	s.ElementsMatch([]string{"1001", "1003"}, []string{owned[0].AccountNumber, owned[1].AccountNumber})

	none, err := s.store.Accounts().ListAccountsByOwner(s.ctx, "42")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *StoreSuite) TestDuplicateAccountNumber() {
	s.createAccount("", "1001", "1", "10")

	err := s.store.Accounts().CreateAccount(s.ctx, &domain.Account{
		AccountNumber: "1001",
		AccountType:   domain.AccountTypeCurrent,
		Balance:       decimal.Zero,
		OwnerUserID:   "2",
	})
	s.True(stderrors.Is(err, errors.ErrDuplicateAccount))
}

func (s *StoreSuite) TestApplyDelta() {
	s.createAccount("", "1001", "1", "100.50")

	updated, err := s.store.Accounts().ApplyDelta(s.ctx, "1001", decimal.RequireFromString("-50.25"))
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("50.25").Equal(updated.Balance))
	s.assertBalance("1001", "50.25")

	_, err = s.store.Accounts().ApplyDelta(s.ctx, "1001", decimal.RequireFromString("-50.26"))
	s.True(stderrors.Is(err, errors.ErrInsufficientFunds))
	s.assertBalance("1001", "50.25")

	_, err = s.store.Accounts().ApplyDelta(s.ctx, "1001", decimal.RequireFromString("-50.25"))
	s.Require().NoError(err)
	s.assertBalance("1001", "0")

	_, err = s.store.Accounts().ApplyDelta(s.ctx, "nope", decimal.NewFromInt(1))
	s.True(stderrors.Is(err, errors.ErrAccountNotFound))
}

func (s *StoreSuite) appendTransaction(from, to, amount string, txType domain.TransactionType, date time.Time) *domain.Transaction {
	tx := &domain.Transaction{
		FromAccountNumber: from,
		ToAccountNumber:   to,
		Amount:            decimal.RequireFromString(amount),
		Type:              txType,
		Date:              date,
		Description:       "Transfer to " + to,
	}
	s.Require().NoError(s.store.Transactions().CreateTransaction(s.ctx, tx))
	s.Require().NotEmpty(tx.ID)
	return tx
}

func (s *StoreSuite) TestTransactionsMostRecentFirst() {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	oldest := s.appendTransaction("1001", "1002", "10", domain.TransactionTypeDebit, base)
	sameA := s.appendTransaction("1001", "1003", "20", domain.TransactionTypeDebit, base.Add(time.Hour))
	sameB := s.appendTransaction("1002", "1003", "30", domain.TransactionTypeDebit, base.Add(time.Hour))

	all, err := s.store.Transactions().ListTransactions(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]string{sameB.ID, sameA.ID, oldest.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	forAccount, err := s.store.Transactions().ListTransactionsByAccountNumber(s.ctx, "1001")
	s.Require().NoError(err)
	s.Require().Len(forAccount, 2)
	s.Equal(sameA.ID, forAccount[0].ID)
	s.Equal(oldest.ID, forAccount[1].ID)

	fetched, err := s.store.Transactions().GetTransaction(s.ctx, sameA.ID)
	s.Require().NoError(err)
	s.Equal("1003", fetched.ToAccountNumber)
	s.True(decimal.NewFromInt(20).Equal(fetched.Amount))
	s.True(base.Add(time.Hour).Equal(fetched.Date))
}

func (s *StoreSuite) TestDeleteTransactionIsIdempotent() {
	tx := s.appendTransaction("1001", "1002", "10", domain.TransactionTypeCredit, time.Now().UTC())

	removed, err := s.store.Transactions().DeleteTransaction(s.ctx, tx.ID)
	s.Require().NoError(err)
	s.True(removed)

	removed, err = s.store.Transactions().DeleteTransaction(s.ctx, tx.ID)
	s.Require().NoError(err)
	s.False(removed)

	_, err = s.store.Transactions().GetTransaction(s.ctx, tx.ID)
	s.True(stderrors.Is(err, errors.ErrTransactionNotFound))
}

func (s *StoreSuite) TestWithTransactionCommits() {
	s.createAccount("", "1001", "1", "100")
	s.createAccount("", "1002", "2", "0")

	err := s.store.WithTransaction(s.ctx, func(tx Store) error {
		if _, err := tx.Accounts().ApplyDelta(s.ctx, "1001", decimal.NewFromInt(-40)); err != nil {
			return err
		}
		if _, err := tx.Accounts().ApplyDelta(s.ctx, "1002", decimal.NewFromInt(40)); err != nil {
			return err
		}
		return tx.Transactions().CreateTransaction(s.ctx, &domain.Transaction{
			FromAccountNumber: "1001",
			ToAccountNumber:   "1002",
			Amount:            decimal.NewFromInt(40),
			Type:              domain.TransactionTypeDebit,
		})
	})
	s.Require().NoError(err)

	s.assertBalance("1001", "60")
	s.assertBalance("1002", "40")

	all, err := s.store.Transactions().ListTransactions(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *StoreSuite) TestWithTransactionRollsBack() {
	s.createAccount("", "1001", "1", "100")
	s.createAccount("", "1002", "2", "0")
	kept := s.appendTransaction("1002", "1001", "5", domain.TransactionTypeCredit, time.Now().UTC())

	boom := stderrors.New("boom")
	err := s.store.WithTransaction(s.ctx, func(tx Store) error {
		if _, err := tx.Accounts().ApplyDelta(s.ctx, "1001", decimal.NewFromInt(-40)); err != nil {
			return err
		}
		if _, err := tx.Accounts().ApplyDelta(s.ctx, "1002", decimal.NewFromInt(40)); err != nil {
			return err
		}
		if err := tx.Transactions().CreateTransaction(s.ctx, &domain.Transaction{
			FromAccountNumber: "1001",
			ToAccountNumber:   "1002",
			Amount:            decimal.NewFromInt(40),
			Type:              domain.TransactionTypeDebit,
		}); err != nil {
			return err
		}
		if _, err := tx.Transactions().DeleteTransaction(s.ctx, kept.ID); err != nil {
			return err
		}
		return boom
	})
	s.True(stderrors.Is(err, boom))

	s.assertBalance("1001", "100")
	s.assertBalance("1002", "0")

	all, err := s.store.Transactions().ListTransactions(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("1002", all[0].FromAccountNumber)
}

func (s *StoreSuite) TestNestedWithTransactionJoinsOuter() {
	s.createAccount("", "1001", "1", "100")

	boom := stderrors.New("boom")
	err := s.store.WithTransaction(s.ctx, func(outer Store) error {
		if err := outer.WithTransaction(s.ctx, func(inner Store) error {
			_, err := inner.Accounts().ApplyDelta(s.ctx, "1001", decimal.NewFromInt(-30))
			return err
		}); err != nil {
			return err
		}
		return boom
	})
	s.True(stderrors.Is(err, boom))
	s.assertBalance("1001", "100")
}

func (s *StoreSuite) newUser(name, email string) *domain.User {
	return &domain.User{
		UserName:     name,
		PasswordHash: "hash",
		Role:         domain.RoleUser,
		IsActive:     true,
		Email:        email,
		Phone:        "555-0100",
	}
}

func (s *StoreSuite) TestUsers() {
	users := s.store.Users()

	john := s.newUser("john_doe", "john@example.com")
	s.Require().NoError(users.CreateUser(s.ctx, john))
	s.NotEmpty(john.ID)

	err := users.CreateUser(s.ctx, s.newUser("JOHN_DOE", "other@example.com"))
	s.True(stderrors.Is(err, errors.ErrDuplicateUsername))

	err = users.CreateUser(s.ctx, s.newUser("jane", "John@Example.com"))
	s.True(stderrors.Is(err, errors.ErrDuplicateEmail))

	found, err := users.GetUserByUserName(s.ctx, "John_Doe")
	s.Require().NoError(err)
	s.Equal(john.ID, found.ID)
	s.Equal("hash", found.PasswordHash)

	jane := s.newUser("jane", "jane@example.com")
	s.Require().NoError(users.CreateUser(s.ctx, jane))

	listed, err := users.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal(john.ID, listed[0].ID)

	jane.Email = "JOHN@example.com"
	s.True(stderrors.Is(users.UpdateUser(s.ctx, jane), errors.ErrDuplicateEmail))

	jane.Email = "jane.doe@example.com"
	jane.IsActive = false
	s.Require().NoError(users.UpdateUser(s.ctx, jane))

	fetched, err := users.GetUser(s.ctx, jane.ID)
	s.Require().NoError(err)
	s.Equal("jane.doe@example.com", fetched.Email)
	s.False(fetched.IsActive)

	missing := s.newUser("ghost", "ghost@example.com")
	missing.ID = "does-not-exist"
	s.True(stderrors.Is(users.UpdateUser(s.ctx, missing), errors.ErrUserNotFound))

	removed, err := users.DeleteUser(s.ctx, jane.ID)
	s.Require().NoError(err)
	s.True(removed)

	removed, err = users.DeleteUser(s.ctx, jane.ID)
	s.Require().NoError(err)
	s.False(removed)

	_, err = users.GetUser(s.ctx, jane.ID)
	s.True(stderrors.Is(err, errors.ErrUserNotFound))
}

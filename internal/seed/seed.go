// Package seed loads starting users, accounts and history from YAML.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
	"bank-ledger/internal/service"
)

type File struct {
	Users        []User        `yaml:"users"`
	Accounts     []Account     `yaml:"accounts"`
	Transactions []Transaction `yaml:"transactions"`
}

// User carries a plaintext password; it is hashed on the way in.
type User struct {
	ID       string `yaml:"id"`
	UserName string `yaml:"user_name"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	IsActive *bool  `yaml:"is_active"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
}

type Account struct {
	ID            string `yaml:"id"`
	AccountNumber string `yaml:"account_number"`
	AccountType   string `yaml:"account_type"`
	Balance       string `yaml:"balance"`
	OwnerUserID   string `yaml:"owner_user_id"`
}

type Transaction struct {
	ID                string    `yaml:"id"`
	TransferID        string    `yaml:"transfer_id"`
	FromAccountNumber string    `yaml:"from_account_number"`
	ToAccountNumber   string    `yaml:"to_account_number"`
	Amount            string    `yaml:"amount"`
	Type              string    `yaml:"type"`
	Date              time.Time `yaml:"date"`
	Description       string    `yaml:"description"`
}

// Services are the write paths seeding goes through, so seeded data passes
// the same validation as API input.
type Services struct {
	Users        *service.UserService
	Accounts     *service.AccountService
	Transactions *service.TransactionService
}

func Parse(r io.Reader) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	return &f, nil
}

func LoadFile(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Apply writes f through svc. Entries that already exist are skipped, so
// applying the same file to a persistent backend twice is harmless.
func Apply(ctx context.Context, f *File, svc Services, logger *slog.Logger) error {
	var created, skipped int

	for _, u := range f.Users {
		_, err := svc.Users.CreateUser(ctx, &service.CreateUserRequest{
			ID:       u.ID,
			UserName: u.UserName,
			Password: u.Password,
			Role:     domain.Role(u.Role),
			Email:    u.Email,
			Phone:    u.Phone,
			IsActive: u.IsActive,
		})
		if ok, err := tally(err, &created, &skipped); !ok {
			return fmt.Errorf("seed user %s: %w", u.UserName, err)
		}
	}

	for _, a := range f.Accounts {
		balance, err := decimal.NewFromString(a.Balance)
		if err != nil {
			return fmt.Errorf("seed account %s: invalid balance %q", a.AccountNumber, a.Balance)
		}
		_, err = svc.Accounts.CreateAccount(ctx, &service.CreateAccountRequest{
			ID:             a.ID,
			AccountNumber:  a.AccountNumber,
			AccountType:    domain.AccountType(a.AccountType),
			InitialBalance: balance,
			OwnerUserID:    a.OwnerUserID,
		})
		if ok, err := tally(err, &created, &skipped); !ok {
			return fmt.Errorf("seed account %s: %w", a.AccountNumber, err)
		}
	}

	for _, t := range f.Transactions {
		if t.ID != "" {
			if _, err := svc.Transactions.Get(ctx, t.ID); err == nil {
				skipped++
				continue
			}
		}

		amount, err := decimal.NewFromString(t.Amount)
		if err != nil {
			return fmt.Errorf("seed transaction %s: invalid amount %q", t.ID, t.Amount)
		}
		err = svc.Transactions.Append(ctx, &domain.Transaction{
			ID:                t.ID,
			TransferID:        t.TransferID,
			FromAccountNumber: t.FromAccountNumber,
			ToAccountNumber:   t.ToAccountNumber,
			Amount:            amount,
			Type:              domain.TransactionType(t.Type),
			Date:              t.Date.UTC(),
			Description:       t.Description,
		})
		if err != nil {
			return fmt.Errorf("seed transaction %s: %w", t.ID, err)
		}
		created++
	}

	logger.Info("Seed data applied", "created", created, "skipped", skipped)
	return nil
}

// tally counts err as created, skipped (already present) or fatal.
func tally(err error, created, skipped *int) (bool, error) {
	if err == nil {
		*created++
		return true, nil
	}
	switch errors.As(err).Code {
	case errors.DuplicateAccount, errors.DuplicateUsername, errors.DuplicateEmail:
		*skipped++
		return true, nil
	}
	return false, err
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
	"bank-ledger/internal/events"
	"bank-ledger/internal/lock"
	"bank-ledger/internal/repository"
)

// TransferService moves money between two accounts. It is the only caller of
// ApplyDelta.
type TransferService struct {
	store     repository.Store
	locker    lock.Locker
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewTransferService(store repository.Store, locker lock.Locker, publisher events.Publisher, logger *slog.Logger) *TransferService {
	return &TransferService{
		store:     store,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

type TransferRequest struct {
	SenderAccountID   string
	ReceiverAccountID string
	Amount            decimal.Decimal
	Description       string
}

// Transfer debits the sender, credits the receiver and appends one Debit and
// one Credit record sharing a transfer id. Either all four effects are
// visible afterwards or none are.
func (s *TransferService) Transfer(ctx context.Context, req *TransferRequest) (*domain.TransferResult, error) {
	s.logger.Info("Processing transfer",
		"sender_account_id", req.SenderAccountID,
		"receiver_account_id", req.ReceiverAccountID,
		"amount", req.Amount)

	if req.SenderAccountID == req.ReceiverAccountID {
		return nil, errors.ErrSameAccountTransfer
	}
	if !req.Amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}

	release, err := s.locker.Acquire(ctx, req.SenderAccountID, req.ReceiverAccountID)
	if err != nil {
		s.logger.Error("Failed to lock accounts", "error", err)
		return nil, errors.Wrap(errors.StoreUnavailable, "accounts are busy, try again", err)
	}
	defer release()

	var result *domain.TransferResult
	err = s.store.WithTransaction(ctx, func(tx repository.Store) error {
		sender, receiver, err := s.resolve(ctx, tx, req)
		if err != nil {
			return err
		}

		if sender.Balance.LessThan(req.Amount) {
			return errors.ErrInsufficientFunds.WithDetails(
				fmt.Sprintf("balance %s is less than %s", sender.Balance, req.Amount))
		}

		result, err = s.apply(ctx, tx, sender, receiver, req)
		return err
	})
	if err != nil {
		s.logger.Warn("Transfer failed", "error", err)
		return nil, err
	}

	if err := s.publisher.PublishTransfer(ctx, result); err != nil {
		s.logger.Error("Failed to publish transfer event", "transfer_id", result.TransferID, "error", err)
	}

	s.logger.Info("Transfer completed successfully",
		"transfer_id", result.TransferID,
		"debit_id", result.Debit.ID,
		"credit_id", result.Credit.ID)
	return result, nil
}

func (s *TransferService) resolve(ctx context.Context, tx repository.Store, req *TransferRequest) (*domain.Account, *domain.Account, error) {
	sender, err := tx.Accounts().GetAccount(ctx, req.SenderAccountID)
	if err != nil {
		return nil, nil, missingAccount(err, "sender", req.SenderAccountID)
	}

	receiver, err := tx.Accounts().GetAccount(ctx, req.ReceiverAccountID)
	if err != nil {
		return nil, nil, missingAccount(err, "receiver", req.ReceiverAccountID)
	}

	return sender, receiver, nil
}

func missingAccount(err error, side, id string) error {
	if errors.As(err).Code != errors.AccountNotFound {
		return err
	}
	return errors.NewAppErrorf(errors.AccountNotFound, "%s account %s not found", side, id).WithDetails(side)
}

func (s *TransferService) apply(ctx context.Context, tx repository.Store, sender, receiver *domain.Account, req *TransferRequest) (*domain.TransferResult, error) {
	updatedSender, err := tx.Accounts().ApplyDelta(ctx, sender.AccountNumber, req.Amount.Neg())
	if err != nil {
		return nil, err
	}
	updatedReceiver, err := tx.Accounts().ApplyDelta(ctx, receiver.AccountNumber, req.Amount)
	if err != nil {
		return nil, err
	}

	transferID := uuid.NewString()
	date := s.now().UTC()

	debitDescription, creditDescription := req.Description, req.Description
	if debitDescription == "" {
		debitDescription = "Transfer to " + receiver.AccountNumber
		creditDescription = "Transfer from " + sender.AccountNumber
	}

	debit := &domain.Transaction{
		TransferID:        transferID,
		FromAccountNumber: sender.AccountNumber,
		ToAccountNumber:   receiver.AccountNumber,
		Amount:            req.Amount,
		Type:              domain.TransactionTypeDebit,
		Date:              date,
		Description:       debitDescription,
	}
	if err := tx.Transactions().CreateTransaction(ctx, debit); err != nil {
		return nil, err
	}

	credit := &domain.Transaction{
		TransferID:        transferID,
		FromAccountNumber: sender.AccountNumber,
		ToAccountNumber:   receiver.AccountNumber,
		Amount:            req.Amount,
		Type:              domain.TransactionTypeCredit,
		Date:              date,
		Description:       creditDescription,
	}
	if err := tx.Transactions().CreateTransaction(ctx, credit); err != nil {
		return nil, err
	}

	return &domain.TransferResult{
		TransferID: transferID,
		Debit:      debit,
		Credit:     credit,
		Sender:     updatedSender,
		Receiver:   updatedReceiver,
	}, nil
}

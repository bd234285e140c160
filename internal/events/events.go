// Package events announces completed transfers to downstream consumers.
package events

import (
	"context"
	"time"

	"bank-ledger/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_publisher.go -package=mocks bank-ledger/internal/events Publisher

const TransferCompleted = "transfer.completed"

// TransferEvent is the message body published once a transfer has committed.
type TransferEvent struct {
	Type                  string    `json:"type"`
	TransferID            string    `json:"transfer_id"`
	SenderAccountNumber   string    `json:"sender_account_number"`
	ReceiverAccountNumber string    `json:"receiver_account_number"`
	Amount                string    `json:"amount"`
	Description           string    `json:"description"`
	DebitTransactionID    string    `json:"debit_transaction_id"`
	CreditTransactionID   string    `json:"credit_transaction_id"`
	OccurredAt            time.Time `json:"occurred_at"`
}

func NewTransferEvent(result *domain.TransferResult) TransferEvent {
	return TransferEvent{
		Type:                  TransferCompleted,
		TransferID:            result.TransferID,
		SenderAccountNumber:   result.Debit.FromAccountNumber,
		ReceiverAccountNumber: result.Debit.ToAccountNumber,
		Amount:                result.Debit.Amount.String(),
		Description:           result.Debit.Description,
		DebitTransactionID:    result.Debit.ID,
		CreditTransactionID:   result.Credit.ID,
		OccurredAt:            result.Debit.Date,
	}
}

type Publisher interface {
	PublishTransfer(ctx context.Context, result *domain.TransferResult) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishTransfer(context.Context, *domain.TransferResult) error { return nil }

func (NopPublisher) Close() error { return nil }

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"bank-ledger/internal/service"
)

type TransferHandler struct {
	transferService *service.TransferService
}

func NewTransferHandler(transferService *service.TransferService) *TransferHandler {
	return &TransferHandler{
		transferService: transferService,
	}
}

type TransferRequest struct {
	SenderAccountID   string      `json:"sender_account_id"`
	ReceiverAccountID string      `json:"receiver_account_id"`
	Amount            json.Number `json:"amount"`
	Description       string      `json:"description,omitempty"`
}

func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	// An unparsable amount is sent through as zero so the engine reports
	// failures in its usual order (same account before invalid amount).
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		amount = decimal.Zero
	}

	result, err := h.transferService.Transfer(r.Context(), &service.TransferRequest{
		SenderAccountID:   req.SenderAccountID,
		ReceiverAccountID: req.ReceiverAccountID,
		Amount:            amount,
		Description:       req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

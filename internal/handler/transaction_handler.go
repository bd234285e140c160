package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"bank-ledger/internal/query"
	"bank-ledger/internal/service"
)

type TransactionHandler struct {
	transactionService *service.TransactionService
}

func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

// ListTransactions serves
// GET /transactions?owner_id=&account=&q=&type=&page=&page_size=
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	txType, err := query.ParseType(params.Get("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", query.DefaultPageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.transactionService.Query(r.Context(), service.TransactionQuery{
		OwnerUserID:   params.Get("owner_id"),
		AccountNumber: params.Get("account"),
		Filter:        query.Filter{Text: params.Get("q"), Type: txType},
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RecentTransactions serves GET /transactions/recent?owner_id=&limit=
func (h *TransactionHandler) RecentTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", query.DefaultPageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.transactionService.Recent(r.Context(), r.URL.Query().Get("owner_id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.transactionService.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	removed, err := h.transactionService.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
	"bank-ledger/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type CreateAccountRequest struct {
	ID             string `json:"id,omitempty"`
	AccountNumber  string `json:"account_number"`
	AccountType    string `json:"account_type"`
	InitialBalance string `json:"initial_balance"`
	OwnerUserID    string `json:"owner_user_id"`
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	initialBalance := decimal.Zero
	if req.InitialBalance != "" {
		var err error
		initialBalance, err = decimal.NewFromString(req.InitialBalance)
		if err != nil {
			writeError(w, errors.NewAppError(errors.InvalidAmount, "invalid initial_balance format"))
			return
		}
	}

	account, err := h.accountService.CreateAccount(r.Context(), &service.CreateAccountRequest{
		ID:             req.ID,
		AccountNumber:  req.AccountNumber,
		AccountType:    domain.AccountType(req.AccountType),
		InitialBalance: initialBalance,
		OwnerUserID:    req.OwnerUserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountService.GetAccount(r.Context(), mux.Vars(r)["account_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) GetAccountByNumber(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountService.GetAccountByNumber(r.Context(), mux.Vars(r)["account_number"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// ListAccounts returns every account, or only those of ?owner_id=.
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	var (
		accounts []*domain.Account
		err      error
	)
	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		accounts, err = h.accountService.ListAccountsByOwner(r.Context(), owner)
	} else {
		accounts, err = h.accountService.ListAccounts(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

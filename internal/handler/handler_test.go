package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
	"bank-ledger/internal/events"
	"bank-ledger/internal/lock"
	"bank-ledger/internal/repository"
	"bank-ledger/internal/service"
)

func newStore(t *testing.T) (repository.Store, *slog.Logger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore(logger)

	ctx := context.Background()
	for _, account := range []*domain.Account{
		{ID: "a1", AccountNumber: "1001", AccountType: domain.AccountTypeSavings, Balance: decimal.NewFromInt(100), OwnerUserID: "u1"},
		{ID: "a2", AccountNumber: "2001", AccountType: domain.AccountTypeCurrent, Balance: decimal.NewFromInt(5), OwnerUserID: "u2"},
	} {
		require.NoError(t, store.Accounts().CreateAccount(ctx, account))
	}
	return store, logger
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWriteErrorEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", errors.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
		{"details kept", errors.ErrInsufficientFunds.WithDetails("balance 5"), http.StatusUnprocessableEntity, "insufficient_funds"},
		{"store", errors.Wrap(errors.StoreUnavailable, "down", io.EOF), http.StatusServiceUnavailable, "store_unavailable"},
		{"plain error", io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Nil(t, resp.Data)
		})
	}

	rec := httptest.NewRecorder()
	writeError(rec, errors.ErrInsufficientFunds.WithDetails("balance 5"))
	assert.Equal(t, "balance 5", decode(t, rec).Error.Details)
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&bad=x", nil)

	v, err := queryInt(req, "page", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = queryInt(req, "page_size", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = queryInt(req, "bad", 1)
	assert.Equal(t, errors.InvalidInput, errors.As(err).Code)
}

func TestTransferHandler(t *testing.T) {
	store, logger := newStore(t)
	h := NewTransferHandler(service.NewTransferService(store, lock.NewLocalLocker(), events.NopPublisher{}, logger))

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"success", `{"sender_account_id":"a1","receiver_account_id":"a2","amount":"40.5"}`, http.StatusCreated, ""},
		{"numeric amount", `{"sender_account_id":"a1","receiver_account_id":"a2","amount":9.5}`, http.StatusCreated, ""},
		{"malformed json", `{"sender_account_id":`, http.StatusBadRequest, "invalid_input"},
		{"missing amount", `{"sender_account_id":"a1","receiver_account_id":"a2"}`, http.StatusBadRequest, "invalid_amount"},
		{"same account without amount", `{"sender_account_id":"a1","receiver_account_id":"a1"}`, http.StatusBadRequest, "same_account_transfer"},
		{"insufficient", `{"sender_account_id":"a2","receiver_account_id":"a1","amount":"1000"}`, http.StatusUnprocessableEntity, "insufficient_funds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/transfers", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Transfer(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			if tt.code != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.code, resp.Error.Code)
			} else {
				assert.Nil(t, resp.Error)
				assert.NotNil(t, resp.Data)
			}
		})
	}

	sender, err := store.Accounts().GetAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, sender.Balance.Equal(decimal.NewFromInt(50)), sender.Balance.String())
}

func TestAccountHandlerRoutes(t *testing.T) {
	store, logger := newStore(t)
	h := NewAccountHandler(service.NewAccountService(store, logger))

	req := httptest.NewRequest(http.MethodGet, "/accounts/a1", nil)
	req = mux.SetURLVars(req, map[string]string{"account_id": "a1"})
	rec := httptest.NewRecorder()
	h.GetAccount(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/accounts/by-number/9999", nil)
	req = mux.SetURLVars(req, map[string]string{"account_number": "9999"})
	rec = httptest.NewRecorder()
	h.GetAccountByNumber(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/accounts",
		strings.NewReader(`{"account_number":"3001","account_type":"Savings","initial_balance":"abc","owner_user_id":"u1"}`))
	rec = httptest.NewRecorder()
	h.CreateAccount(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_amount", decode(t, rec).Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/accounts",
		strings.NewReader(`{"account_number":"3001","account_type":"Checking","owner_user_id":"u1"}`))
	rec = httptest.NewRecorder()
	h.CreateAccount(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode(t, rec).Error.Code)

	req = httptest.NewRequest(http.MethodGet, "/accounts?owner_id=u2", nil)
	rec = httptest.NewRecorder()
	h.ListAccounts(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec).Data, 1)
}

func TestTransactionHandlerQueryParams(t *testing.T) {
	store, logger := newStore(t)
	h := NewTransactionHandler(service.NewTransactionService(store, logger))

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"defaults", "/transactions", http.StatusOK},
		{"bad page", "/transactions?page=first", http.StatusBadRequest},
		{"bad type", "/transactions?type=refund", http.StatusBadRequest},
		{"foreign account", "/transactions?owner_id=u1&account=2001", http.StatusNotFound},
		{"bad limit", "/transactions/recent?limit=ten", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			rec := httptest.NewRecorder()
			if strings.HasPrefix(tt.target, "/transactions/recent") {
				h.RecentTransactions(rec, req)
			} else {
				h.ListTransactions(rec, req)
			}
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodDelete, "/transactions/nope", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "nope"})
	rec := httptest.NewRecorder()
	h.DeleteTransaction(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"removed": false}, decode(t, rec).Data)
}

func TestUserHandlerCheckAvailability(t *testing.T) {
	store, logger := newStore(t)
	userService := service.NewUserService(store, logger)
	h := NewUserHandler(userService)

	req := httptest.NewRequest(http.MethodPost, "/users",
		strings.NewReader(`{"user_name":"carol","password":"carol-secret","email":"carol@example.com"}`))
	rec := httptest.NewRecorder()
	h.CreateUser(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	req = httptest.NewRequest(http.MethodGet, "/users/exists?username=CAROL&email=other@example.com", nil)
	rec = httptest.NewRecorder()
	h.CheckAvailability(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"username_exists": true, "email_exists": false}, decode(t, rec).Data)
}

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := ErrAccountNotFound.WithDetails("sender")

	assert.True(t, stderrors.Is(err, ErrAccountNotFound))
	assert.False(t, stderrors.Is(err, ErrInsufficientFunds))
	assert.Empty(t, ErrAccountNotFound.Details, "predefined error must not be mutated")
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("commit: %w", ErrStoreUnavailable)
	assert.True(t, stderrors.Is(err, ErrStoreUnavailable))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(StoreUnavailable, "failed to reach store", cause)

	assert.Equal(t, "connection refused", err.Details)
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(err, ErrStoreUnavailable))
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrInvalidAmount)
	assert.Equal(t, InvalidAmount, As(wrapped).Code)
	assert.Equal(t, InternalError, As(stderrors.New("boom")).Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{ErrSameAccountTransfer, http.StatusBadRequest},
		{ErrInvalidAmount, http.StatusBadRequest},
		{ErrAccountNotFound, http.StatusNotFound},
		{ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{ErrStoreUnavailable, http.StatusServiceUnavailable},
		{ErrDuplicateUsername, http.StatusConflict},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{NewAppError(InternalError, "x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

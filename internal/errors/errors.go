package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	SameAccountTransfer ErrorCode = "same_account_transfer"
	InvalidAmount       ErrorCode = "invalid_amount"
	AccountNotFound     ErrorCode = "account_not_found"
	InsufficientFunds   ErrorCode = "insufficient_funds"
	StoreUnavailable    ErrorCode = "store_unavailable"

	TransactionNotFound ErrorCode = "transaction_not_found"
	UserNotFound        ErrorCode = "user_not_found"
	DuplicateAccount    ErrorCode = "duplicate_account"
	DuplicateUsername   ErrorCode = "duplicate_username"
	DuplicateEmail      ErrorCode = "duplicate_email"
	InvalidInput        ErrorCode = "invalid_input"
	InvalidCredentials  ErrorCode = "invalid_credentials"
	InternalError       ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	cause error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches any AppError carrying the same code, so the predefined values
// below work as sentinels with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap builds an AppError that keeps err as its cause and its text as details.
func Wrap(code ErrorCode, message string, err error) *AppError {
	appErr := &AppError{Code: code, Message: message, cause: err}
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

// WithDetails returns a copy so that shared predefined errors are never mutated.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case SameAccountTransfer, InvalidAmount, InvalidInput:
		return http.StatusBadRequest
	case InvalidCredentials:
		return http.StatusUnauthorized
	case AccountNotFound, TransactionNotFound, UserNotFound:
		return http.StatusNotFound
	case DuplicateAccount, DuplicateUsername, DuplicateEmail:
		return http.StatusConflict
	case InsufficientFunds:
		return http.StatusUnprocessableEntity
	case StoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an AppError from err, falling back to an internal error.
func As(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(InternalError, "an unexpected error occurred", err)
}

// Predefined errors for common cases
var (
	ErrSameAccountTransfer = NewAppError(SameAccountTransfer, "sender and receiver must be different accounts")
	ErrInvalidAmount       = NewAppError(InvalidAmount, "amount must be a positive number")
	ErrAccountNotFound     = NewAppError(AccountNotFound, "account not found")
	ErrInsufficientFunds   = NewAppError(InsufficientFunds, "insufficient funds")
	ErrStoreUnavailable    = NewAppError(StoreUnavailable, "backing store unavailable")

	ErrTransactionNotFound = NewAppError(TransactionNotFound, "transaction not found")
	ErrUserNotFound        = NewAppError(UserNotFound, "user not found")
	ErrDuplicateAccount    = NewAppError(DuplicateAccount, "account already exists")
	ErrDuplicateUsername   = NewAppError(DuplicateUsername, "username already exists")
	ErrDuplicateEmail      = NewAppError(DuplicateEmail, "email already exists")
	ErrInvalidInput        = NewAppError(InvalidInput, "invalid input")
	ErrInvalidCredentials  = NewAppError(InvalidCredentials, "invalid username or password")
)

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trivia-pay/internal/types"
)

func TestCategorizeServiceError(t *testing.T) {
	tests := []struct {
		code     string
		category ErrorCategory
		status   int
	}{
		{"INVALID_ADDRESS", CategoryValidation, http.StatusBadRequest},
		{"INVALID_INPUT", CategoryValidation, http.StatusBadRequest},
		{"WALLET_NOT_CONNECTED", CategoryConflict, http.StatusConflict},
		{"BILL_NOT_FOUND", CategoryNotFound, http.StatusNotFound},
		{"SIGNING_CANCELLED", CategoryCancelled, http.StatusConflict},
		{"LEDGER_ERROR", CategoryConnectivity, http.StatusBadGateway},
		{"SOMETHING_ELSE", CategorySystem, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", types.NewServiceError(tt.code, "msg", nil))
			cat := Categorize(err)
			assert.Equal(t, tt.category, cat.Category)
			assert.Equal(t, tt.status, cat.StatusCode)
			assert.Equal(t, tt.status, GetHTTPStatusCode(err))
		})
	}
}

func TestCategorizePassesThrough(t *testing.T) {
	orig := NewLedgerError("indexer", stderrors.New("boom"))
	assert.Same(t, orig, Categorize(fmt.Errorf("ctx: %w", orig)))
	assert.Nil(t, Categorize(nil))

	unknown := Categorize(stderrors.New("boom"))
	assert.Equal(t, CategorySystem, unknown.Category)
}

func TestIsUserCancellation(t *testing.T) {
	assert.True(t, IsUserCancellation(ErrSigningCancelled))
	assert.True(t, IsUserCancellation(fmt.Errorf("sign: %w", ErrSigningCancelled)))
	assert.True(t, IsUserCancellation(NewCancelledError("payment")))
	assert.True(t, IsUserCancellation(stderrors.New("Modal closed by user")))
	assert.True(t, IsUserCancellation(stderrors.New("Request Rejected")))
	assert.False(t, IsUserCancellation(stderrors.New("network timeout")))
	assert.False(t, IsUserCancellation(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewLedgerError("algod", stderrors.New("503"))))
	assert.True(t, IsRetryable(NewStorageError("set", stderrors.New("conn"))))
	assert.True(t, IsRetryable(NewServiceUnavailableError("redis")))
	assert.True(t, IsRetryable(NewRateLimitError(1)))
	assert.False(t, IsRetryable(NewNotFoundError("account", "abc")))
	assert.False(t, IsRetryable(NewInvalidAddressError("abc")))
	assert.False(t, IsRetryable(NewCancelledError("sign")))
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(NewInvalidParameterError("amount", "must be positive")))
	assert.True(t, IsUserError(NewNotFoundError("bill", "b1")))
	assert.False(t, IsUserError(NewInternalError("x", nil)))
}

func TestErrorMessages(t *testing.T) {
	err := NewLedgerError("indexer", stderrors.New("timeout"))
	assert.Contains(t, err.Error(), "LEDGER_ERROR")
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, "LEDGER_ERROR", err.ToServiceError().Code)
	assert.ErrorIs(t, NewCancelledError("sign"), ErrSigningCancelled)
}

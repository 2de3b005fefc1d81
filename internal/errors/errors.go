package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/trivia-pay/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents rejected user input (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryConnectivity represents wallet or ledger connectivity failures
	CategoryConnectivity ErrorCategory = "connectivity"
	// CategoryPartialData represents one failed reconciliation lookup
	CategoryPartialData ErrorCategory = "partial_data"
	// CategoryMalformedPayload represents an undecodable on-chain note
	CategoryMalformedPayload ErrorCategory = "malformed_payload"
	// CategoryCancelled represents a user closing the signing prompt
	CategoryCancelled ErrorCategory = "cancelled"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryStorage represents key-value or archive storage errors
	CategoryStorage ErrorCategory = "storage"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// ErrSigningCancelled is returned by wallet providers when the user dismisses
// the signing prompt.
var ErrSigningCancelled = stderrors.New("signing request cancelled by user")

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid Algorand address (must be 58 characters): %q", address),
		Details: map[string]interface{}{
			"address": address,
			"length":  len(address),
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewLedgerError creates an error for a failed algod or indexer call
func NewLedgerError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConnectivity,
		StatusCode: http.StatusBadGateway,
		Code:       "LEDGER_ERROR",
		Message:    fmt.Sprintf("ledger request failed: %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewLedgerTimeoutError creates a ledger timeout error
func NewLedgerTimeoutError(source string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConnectivity,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "LEDGER_TIMEOUT",
		Message:    fmt.Sprintf("ledger request timed out: %s", source),
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewWalletError creates an error for a failed wallet provider call
func NewWalletError(op string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConnectivity,
		StatusCode: http.StatusBadGateway,
		Code:       "WALLET_ERROR",
		Message:    fmt.Sprintf("wallet %s failed", op),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": op,
		},
	}
}

// NewCancelledError wraps a dismissed signing prompt
func NewCancelledError(op string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCancelled,
		StatusCode: http.StatusConflict,
		Code:       "SIGNING_CANCELLED",
		Message:    fmt.Sprintf("%s was cancelled in the wallet", op),
		Cause:      ErrSigningCancelled,
	}
}

// NewPartialDataError records that one reconciliation lookup failed
func NewPartialDataError(lookup string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPartialData,
		StatusCode: http.StatusOK,
		Code:       "PARTIAL_DATA",
		Message:    fmt.Sprintf("%s lookup failed", lookup),
		Cause:      cause,
		Details: map[string]interface{}{
			"lookup": lookup,
		},
	}
}

// NewMalformedPayloadError records an undecodable note; never returned to callers
func NewMalformedPayloadError(txID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMalformedPayload,
		StatusCode: http.StatusOK,
		Code:       "MALFORMED_PAYLOAD",
		Message:    fmt.Sprintf("note of transaction %s is not a valid bill request", txID),
		Details: map[string]interface{}{
			"txId": txID,
		},
	}
}

// NewStorageError creates a storage error
func NewStorageError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStorage,
		StatusCode: http.StatusInternalServerError,
		Code:       "STORAGE_ERROR",
		Message:    fmt.Sprintf("storage error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	if IsUserCancellation(err) {
		return NewCancelledError("request")
	}

	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category, status := CategorySystem, http.StatusInternalServerError
	switch err.Code {
	case "INVALID_INPUT", "INVALID_ADDRESS", "INVALID_AMOUNT", "INVALID_PAYMENT_REQUEST":
		category, status = CategoryValidation, http.StatusBadRequest
	case "WALLET_NOT_CONNECTED", "ESCROW_NOT_SET", "INSUFFICIENT_BALANCE":
		category, status = CategoryConflict, http.StatusConflict
	case "BILL_NOT_FOUND", "PAYEE_NOT_FOUND", "GOAL_NOT_FOUND", "NOTIFICATION_NOT_FOUND":
		category, status = CategoryNotFound, http.StatusNotFound
	case "SIGNING_CANCELLED":
		category, status = CategoryCancelled, http.StatusConflict
	case "LEDGER_ERROR", "WALLET_ERROR":
		category, status = CategoryConnectivity, http.StatusBadGateway
	}
	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserCancellation reports whether err means the user dismissed a wallet
// prompt. Wallet SDKs report this inconsistently, so messages mentioning a
// closed, cancelled or rejected request also count.
func IsUserCancellation(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, ErrSigningCancelled) {
		return true
	}
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) && catErr.Category == CategoryCancelled {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "closed") ||
		strings.Contains(msg, "cancel") ||
		strings.Contains(msg, "rejected")
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryConnectivity, CategoryStorage, CategoryRateLimit:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

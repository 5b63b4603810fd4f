package dto

import (
	"errors"
	"net/http"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a dependency is down
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeValidation is used when input fails validation
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeRequestTooLarge is used when the body exceeds the limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when the tenant is missing or malformed
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,

	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState: http.StatusUnprocessableEntity,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainErrorCodes maps domain sentinel errors to API error codes
var domainErrorCodes = []struct {
	err  error
	code string
}{
	{workflow.ErrWorkflowNotFound, ErrCodeNotFound},
	{workflow.ErrExecutionNotFound, ErrCodeNotFound},
	{workflow.ErrWorkflowDisabled, ErrCodeInvalidState},
	{workflow.ErrWorkflowNoEnabledSources, ErrCodeInvalidState},
	{workflow.ErrExecutionNotCancellable, ErrCodeInvalidState},
	{workflow.ErrExecutionDuplicate, ErrCodeConflict},
	{workflow.ErrExecutionAlreadyClaimed, ErrCodeConflict},
	{workflow.ErrWorkflowInvalidTenant, ErrCodeBadRequest},
}

// ErrorCodeFor classifies err into an API error code. The second result is
// false for unknown errors, whose message must not reach the client.
func ErrorCodeFor(err error) (string, bool) {
	for _, m := range domainErrorCodes {
		if errors.Is(err, m.err) {
			return m.code, true
		}
	}
	if workflow.IsValidation(err) {
		return ErrCodeValidation, true
	}
	return ErrCodeInternal, false
}

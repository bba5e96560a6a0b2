// Package errors defines structured error types and helpers for the Aegis
// request-inspection service. Errors carry an application error code, an HTTP
// status, and optional metadata so handlers can render a consistent wire format.
package errors

import (
	"fmt"
	"net/http"

	"github.com/turtacn/aegis/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// AppError represents a structured error with additional metadata.
type AppError interface {
	error

	// Code returns the application error code
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) AppError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) AppError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

// baseError is the internal implementation of AppError
type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.description
}

// Code returns the application error code
func (e *baseError) Code() constants.ErrorCode {
	return e.code
}

// HTTPStatus returns the HTTP status code
func (e *baseError) HTTPStatus() int {
	return e.httpStatus
}

// Description returns the error description
func (e *baseError) Description() string {
	return e.description
}

// Unwrap returns the underlying cause error
func (e *baseError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause error to the error chain
func (e *baseError) WithCause(cause error) AppError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *baseError) WithMetadata(key string, value interface{}) AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all metadata
func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new AppError with the specified parameters
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) AppError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) AppError {
	return NewError(
		constants.ErrCodeInvalidRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter, includes an invalid parameter value, or is otherwise malformed.",
		message,
	)
}

// ErrForbidden creates a forbidden error
func ErrForbidden(message string) AppError {
	return NewError(
		constants.ErrCodeForbidden,
		http.StatusForbidden,
		"The request was understood but refused by policy.",
		message,
	)
}

// ErrNotFound creates a not_found error
func ErrNotFound(resource string) AppError {
	return NewError(
		constants.ErrCodeNotFound,
		http.StatusNotFound,
		"The requested resource does not exist.",
		fmt.Sprintf("%s not found", resource),
	).WithMetadata("resource", resource)
}

// ErrServerError creates a server_error error
func ErrServerError(message string) AppError {
	return NewError(
		constants.ErrCodeServerError,
		http.StatusInternalServerError,
		"The service encountered an unexpected condition that prevented it from fulfilling the request.",
		message,
	)
}

// ErrServiceUnavailable creates a service_unavailable error
func ErrServiceUnavailable(message string) AppError {
	return NewError(
		constants.ErrCodeServiceUnavailable,
		http.StatusServiceUnavailable,
		"The service is currently unable to handle the request.",
		message,
	)
}

// ================================================================================
// Domain-Specific Error Constructors
// ================================================================================

// ErrRateLimitExceeded creates a rate limit exceeded error
func ErrRateLimitExceeded(ruleID string, limit int) AppError {
	return NewError(
		constants.ErrCodeRateLimitExceeded,
		http.StatusTooManyRequests,
		"Rate limit exceeded. Please try again later.",
		fmt.Sprintf("rate limit exceeded for rule '%s': %d requests", ruleID, limit),
	).WithMetadata("rule_id", ruleID).
		WithMetadata("limit", limit)
}

// ErrDLPViolation creates a DLP violation error carrying the incident reference
func ErrDLPViolation(reference string, violations []string) AppError {
	return NewError(
		constants.ErrCodeDLPViolation,
		http.StatusForbidden,
		"Request content violates data protection policy.",
		fmt.Sprintf("content blocked by DLP policy, incident %s", reference),
	).WithMetadata("reference", reference).
		WithMetadata("violations", violations)
}

// ErrEmailBlocked creates an error for an outbound email refused by policy.
// Callers must treat this as a failed send, not a silent drop.
func ErrEmailBlocked(reference string, dataTypes []string) AppError {
	return NewError(
		constants.ErrCodeDLPViolation,
		http.StatusForbidden,
		"Outbound email contains data that must not leave the system.",
		fmt.Sprintf("email blocked by DLP policy, incident %s", reference),
	).WithMetadata("reference", reference).
		WithMetadata("data_types", dataTypes)
}

// ErrPatternInvalid creates an error for a custom DLP pattern that failed to compile
func ErrPatternInvalid(patternID string, reason string) AppError {
	return ErrInvalidRequest(fmt.Sprintf("pattern '%s' is invalid: %s", patternID, reason)).
		WithMetadata("pattern_id", patternID)
}

// ErrRuleNotFound creates an error for a missing rate limit rule
func ErrRuleNotFound(ruleID string) AppError {
	return ErrNotFound("rate limit rule").WithMetadata("rule_id", ruleID)
}

// ErrStoreUnavailable creates an error for a failing client state store
func ErrStoreUnavailable(reason string) AppError {
	return ErrServiceUnavailable(fmt.Sprintf("client state store unavailable: %s", reason))
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(AppError)
	return ok
}

// AsAppError attempts to cast an error to AppError
func AsAppError(err error) (AppError, bool) {
	appErr, ok := err.(AppError)
	return appErr, ok
}

// WrapError wraps a generic error into an AppError
func WrapError(err error, code constants.ErrorCode, message string) AppError {
	var httpStatus int

	switch code {
	case constants.ErrCodeInvalidRequest:
		httpStatus = http.StatusBadRequest
	case constants.ErrCodeForbidden, constants.ErrCodeDLPViolation:
		httpStatus = http.StatusForbidden
	case constants.ErrCodeNotFound:
		httpStatus = http.StatusNotFound
	case constants.ErrCodeRateLimitExceeded:
		httpStatus = http.StatusTooManyRequests
	case constants.ErrCodeServiceUnavailable:
		httpStatus = http.StatusServiceUnavailable
	default:
		httpStatus = http.StatusInternalServerError
	}

	return NewError(code, httpStatus, err.Error(), message).WithCause(err)
}

// IsRateLimitError checks if an error is related to rate limiting
func IsRateLimitError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code() == constants.ErrCodeRateLimitExceeded
	}
	return false
}

// IsDLPViolation checks if an error is a DLP policy violation
func IsDLPViolation(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code() == constants.ErrCodeDLPViolation
	}
	return false
}

// ShouldLogError determines if an error should be logged based on severity
func ShouldLogError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		// Don't log client errors (4xx) except rate limiting
		status := appErr.HTTPStatus()
		return status >= 500 || status == http.StatusTooManyRequests
	}
	return true
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts an AppError to an ErrorResponse
func ToErrorResponse(err AppError) *ErrorResponse {
	return &ErrorResponse{
		Error:            string(err.Code()),
		ErrorDescription: err.Description(),
		Metadata:         err.Metadata(),
	}
}

// ToGenericErrorResponse converts any error to an ErrorResponse
func ToGenericErrorResponse(err error) *ErrorResponse {
	if appErr, ok := AsAppError(err); ok {
		return ToErrorResponse(appErr)
	}

	// Fallback to generic server error
	return &ErrorResponse{
		Error:            string(constants.ErrCodeServerError),
		ErrorDescription: "An unexpected error occurred",
	}
}

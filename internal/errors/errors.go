// FilePath: server/weatherhub/internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error. The value doubles as the
// machine-readable error code in API responses.
type ErrorType string

const (
	// Generic error types
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeAuth        ErrorType = "authentication"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeUnavailable ErrorType = "service_unavailable"

	// Store and ingestion
	ErrorTypeMalformedInput ErrorType = "malformed_input"
	ErrorTypeStorage        ErrorType = "storage_failure"

	// Trends
	ErrorTypeInvalidRange ErrorType = "invalid_range"

	// Query sandbox
	ErrorTypeMissingQuery       ErrorType = "missing_query"
	ErrorTypeMultipleStatements ErrorType = "multiple_statements"
	ErrorTypeNotASelect         ErrorType = "not_a_select"
	ErrorTypeTooLarge           ErrorType = "too_large"
	ErrorTypeTimeout            ErrorType = "timeout"
	ErrorTypeExecution          ErrorType = "execution_error"
)

// APIError represents a structured API error
type APIError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	Details   any       `json:"details,omitempty"`
	err       error     // Internal error for logging, never serialized
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the internal cause to errors.Is / errors.As.
func (e *APIError) Unwrap() error {
	return e.err
}

// WithRequestID adds a request ID to the error
func (e *APIError) WithRequestID(id string) *APIError {
	e.RequestID = id
	return e
}

// WithDetails adds additional details to the error
func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

func newError(t ErrorType, code int, msg string, err error) *APIError {
	return &APIError{
		Type:    t,
		Message: msg,
		Code:    code,
		err:     err,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string, err error) *APIError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, msg, err)
}

// NewAuthError creates a new authentication error
func NewAuthError(msg string, err error) *APIError {
	return newError(ErrorTypeAuth, http.StatusUnauthorized, msg, err)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string, err error) *APIError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, msg, err)
}

// NewInternalError creates a new internal server error
func NewInternalError(msg string, err error) *APIError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, msg, err)
}

// NewUnavailableError reports a dependency that cannot serve requests.
func NewUnavailableError(msg string, err error) *APIError {
	return newError(ErrorTypeUnavailable, http.StatusServiceUnavailable, msg, err)
}

// NewMalformedInputError marks a transport payload that could not be
// parsed. It is logged by the ingestion pipeline and never returned to
// an HTTP caller.
func NewMalformedInputError(msg string, err error) *APIError {
	return newError(ErrorTypeMalformedInput, http.StatusBadRequest, msg, err)
}

// NewStorageError creates a new storage failure. Storage errors are
// surfaced to the immediate caller and never retried inside the store.
func NewStorageError(msg string, err error) *APIError {
	return newError(ErrorTypeStorage, http.StatusInternalServerError, msg, err)
}

// NewInvalidRangeError creates an error for unusable trend windows.
func NewInvalidRangeError(msg string, err error) *APIError {
	return newError(ErrorTypeInvalidRange, http.StatusBadRequest, msg, err)
}

// NewSandboxError creates one of the query sandbox errors. The message
// is shown to the caller as-is, so it must not contain engine output.
func NewSandboxError(t ErrorType, msg string, err error) *APIError {
	return newError(t, sandboxStatus(t), msg, err)
}

func sandboxStatus(t ErrorType) int {
	switch t {
	case ErrorTypeTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorTypeTimeout:
		return http.StatusRequestTimeout
	case ErrorTypeStorage, ErrorTypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal if err is
// not (and does not wrap) an APIError.
func TypeOf(err error) ErrorType {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeInternal
}

// IsType reports whether err is an APIError of the given type.
func IsType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) == t
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a Validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// AsAPIError converts any error into an APIError, wrapping unknown
// errors as internal errors.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	return NewInternalError("internal error", err)
}

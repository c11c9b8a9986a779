// FilePath: internal/errors/errors.go
package errors

import (
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Error types
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeDatabase          ErrorType = "database"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeConflict          ErrorType = "conflict"
	ErrorTypeInternal          ErrorType = "internal"
	ErrorTypeDeviceUnavailable ErrorType = "device_unavailable"
	ErrorTypeDeviceUnreachable ErrorType = "device_unreachable"
	ErrorTypeDeviceTimeout     ErrorType = "device_timeout"
)

// APIError represents a structured API error
type APIError struct {
	Success   bool      `json:"success"`
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	err       error     // Internal error for logging
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the internal error to errors.Is / errors.As
func (e *APIError) Unwrap() error {
	return e.err
}

// WithRequestID adds a request ID to the error
func (e *APIError) WithRequestID(id string) *APIError {
	e.RequestID = id
	return e
}

func newAPIError(t ErrorType, code int, msg string, err error) *APIError {
	return &APIError{
		Type:    t,
		Message: msg,
		Code:    code,
		err:     err,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string, err error) *APIError {
	return newAPIError(ErrorTypeValidation, http.StatusBadRequest, msg, err)
}

// NewDatabaseError creates a new database error
func NewDatabaseError(msg string, err error) *APIError {
	return newAPIError(ErrorTypeDatabase, http.StatusInternalServerError, msg, err)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string, err error) *APIError {
	return newAPIError(ErrorTypeNotFound, http.StatusNotFound, msg, err)
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string, err error) *APIError {
	return newAPIError(ErrorTypeConflict, http.StatusConflict, msg, err)
}

// NewInternalError creates a new internal server error
func NewInternalError(msg string, err error) *APIError {
	return newAPIError(ErrorTypeInternal, http.StatusInternalServerError, msg, err)
}

// NewDeviceUnavailableError is returned when no device address is known yet.
func NewDeviceUnavailableError(msg string, err error) *APIError {
	return newAPIError(ErrorTypeDeviceUnavailable, http.StatusNotFound, msg, err)
}

// NewDeviceUnreachableError is returned when the device refused the connection.
func NewDeviceUnreachableError(msg string, err error) *APIError {
	return newAPIError(ErrorTypeDeviceUnreachable, http.StatusServiceUnavailable, msg, err)
}

// NewDeviceTimeoutError is returned when the device did not answer in time.
func NewDeviceTimeoutError(msg string, err error) *APIError {
	return newAPIError(ErrorTypeDeviceTimeout, http.StatusGatewayTimeout, msg, err)
}

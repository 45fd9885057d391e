package types

import "fmt"

// ErrorCode represents a unified error code across the subsystem.
type ErrorCode string

const (
	ErrInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrNotFound             ErrorCode = "NOT_FOUND"
	ErrStoreUnavailable     ErrorCode = "STORE_UNAVAILABLE"
	ErrEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	ErrRecordMalformed      ErrorCode = "RECORD_MALFORMED"
	ErrInternalError        ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

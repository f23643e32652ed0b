package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInvalidAggregate  = "INVALID_AGGREGATE"
	ErrCodeLayoutUnavailable = "LAYOUT_UNAVAILABLE"
	ErrCodeLayoutFailed      = "LAYOUT_FAILED"
	ErrCodeMalformedStream   = "MALFORMED_STREAM"
	ErrCodeForeignRepository = "FOREIGN_REPOSITORY"
	ErrCodeReadOnly          = "READ_ONLY"
	ErrCodeStore             = "STORE_ERROR"
)

// FlowError is the structured error type for all FlowLine operations.
type FlowError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	ObjectID uint64         `json:"object_id,omitempty"`
	Cause    error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.ObjectID != 0 {
		return fmt.Sprintf("[%s] object %d: %s", e.Code, e.ObjectID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithObject attaches the id of the object the error refers to.
func (e *FlowError) WithObject(id uint64) *FlowError {
	e.ObjectID = id
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// IsCode reports whether err is, or wraps, a FlowError with the given code.
func IsCode(err error, code string) bool {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

package errors

import (
	"errors"
	"fmt"
)

// GatewayError is the structured error type for the index gateway.
type GatewayError struct {
	// Code is the unique error code (e.g. "ERR_401_DOC_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Validation, Engine, ...).
	Category Category

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, enabling errors.Is with sentinel values.
func (e *GatewayError) Is(target error) bool {
	if t, ok := target.(*GatewayError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail, returning the error for chaining.
func (e *GatewayError) WithDetail(key, value string) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a GatewayError with the given code and message.
// Category and the retryable flag are derived from the code.
func New(code, message string, cause error) *GatewayError {
	return &GatewayError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a GatewayError from an existing error, keeping the
// original message. Returns nil for a nil error.
func Wrap(code string, err error) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:      code,
		Message:   err.Error(),
		Category:  categoryFromCode(code),
		Cause:     err,
		Retryable: isRetryableCode(code),
	}
}

// CategoryOf returns the category of err, or CategoryInternal for
// errors that are not GatewayErrors.
func CategoryOf(err error) Category {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Category
	}
	return CategoryInternal
}

// GetCode extracts the error code, or "" for non-gateway errors.
func GetCode(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

// IsValidation reports whether err is caused by bad caller input.
func IsValidation(err error) bool {
	return CategoryOf(err) == CategoryValidation
}

// IsRetryable reports whether the failed operation may be retried.
func IsRetryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return false
}

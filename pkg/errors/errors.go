package errors

import (
	"context"
	"errors"
	"fmt"
)

// Code represents a stable error code for programmatic handling.
type Code string

const (
	CodeUnknown     Code = "unknown"
	CodeInvalid     Code = "invalid"
	CodeNotFound    Code = "not_found"
	CodeConflict    Code = "conflict"
	CodeForbidden   Code = "forbidden"
	CodeIntegrity   Code = "integrity"
	CodeInternal    Code = "internal"
	CodeUnavailable Code = "unavailable"
	CodeDeadline    Code = "deadline_exceeded"
)

// Reason narrows a conflict down to the rule that rejected the request.
type Reason string

const (
	ReasonDuplicate    Reason = "duplicate"
	ReasonCycle        Reason = "cycle"
	ReasonStaleVersion Reason = "stale_version"
	ReasonHasRelations Reason = "has_relations"
)

// AppError is a structured error type that carries a code, message, and optional metadata.
type AppError struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error
	Meta    map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	code := string(e.Code)
	if e.Reason != "" {
		code += "(" + string(e.Reason) + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *AppError) Unwrap() error { return e.Err }

// WithMeta attaches metadata to the error.
func (e *AppError) WithMeta(k string, v any) *AppError {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta[k] = v
	return e
}

// New creates a new AppError with code and message.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with code and message.
func Wrap(err error, code Code, message string) *AppError {
	if err == nil {
		return New(code, message)
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// Conflict creates a conflict error tagged with the rule that was violated.
func Conflict(reason Reason, message string) *AppError {
	return &AppError{Code: CodeConflict, Reason: reason, Message: message}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsCode checks if an error has the provided code (through unwrapping).
func IsCode(err error, code Code) bool {
	if ae, ok := As(err); ok {
		return ae.Code == code
	}
	return false
}

// IsConflict reports whether err is a conflict with the given reason.
// An empty reason matches any conflict.
func IsConflict(err error, reason Reason) bool {
	ae, ok := As(err)
	if !ok || ae.Code != CodeConflict {
		return false
	}
	return reason == "" || ae.Reason == reason
}

// IsTransient reports whether the operation may succeed if retried unchanged.
func IsTransient(err error) bool {
	if ae, ok := As(err); ok {
		return ae.Code == CodeUnavailable || ae.Code == CodeDeadline
	}
	return false
}

// FromContext converts a context error into a transient AppError.
// Errors that did not come from a context are returned unchanged.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, CodeDeadline, "storage operation timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, CodeUnavailable, "operation canceled")
	}
	return err
}

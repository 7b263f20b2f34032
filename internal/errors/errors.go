// Package errors provides structured error handling for mcprag.
//
// Every component boundary returns an *Error carrying a Kind. The tool
// dispatcher is the only place that converts kinds into response envelopes;
// everything below it just wraps and annotates.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Kind classifies an error for envelope translation and retry decisions.
type Kind string

const (
	// KindValidation indicates the request failed schema or semantic validation.
	KindValidation Kind = "validation"
	// KindUnauthorized indicates missing or invalid credentials.
	KindUnauthorized Kind = "unauthorized"
	// KindForbidden indicates a valid principal with insufficient tier or missing MFA.
	KindForbidden Kind = "forbidden"
	// KindNotFound indicates an absent resource (index, document, tool).
	KindNotFound Kind = "not_found"
	// KindConflict indicates a rejected admin operation (schema drift, missing confirm).
	KindConflict Kind = "conflict"
	// KindDependencyUnavailable indicates an external service failure after retries.
	KindDependencyUnavailable Kind = "dependency_unavailable"
	// KindTimeout indicates a deadline was exceeded.
	KindTimeout Kind = "timeout"
	// KindInternal indicates an unexpected state.
	KindInternal Kind = "internal"
)

// Error is the structured error type used at component boundaries.
type Error struct {
	// Kind is the error classification surfaced as the envelope code.
	Kind Kind

	// Message is the human-readable error message. It must be safe to show
	// to callers: no stack traces, no internal addresses.
	Message string

	// Field names the offending input field for validation errors.
	Field string

	// Cause is the underlying error, preserved for logs but never surfaced.
	Cause error

	// Retryable indicates whether the operation may be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind so errors.Is works with sentinel kinds.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithField records the offending field and returns the error for chaining.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: kind == KindDependencyUnavailable || kind == KindTimeout,
	}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error from an existing error, preserving the cause.
// Returns nil when err is nil.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	e := New(kind, message)
	e.Cause = err
	return e
}

// Validation is shorthand for a validation error naming the field.
func Validation(field, message string) *Error {
	return New(KindValidation, message).WithField(field)
}

// KindOf extracts the kind from any error. Context cancellation maps to
// timeout; everything unrecognized is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindInternal
}

// IsRetryable reports whether the error is marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// Message returns the caller-safe message for any error. Internal errors get
// a generic message so details never leak past the dispatcher.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	if KindOf(err) == KindTimeout {
		return "operation timed out"
	}
	return "internal error"
}

// As is a convenience re-export so callers need only this package.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is a convenience re-export so callers need only this package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

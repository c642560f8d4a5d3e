// Package errs defines the error kinds the worker runtime classifies
// every failure into, and the mapping between those kinds and the
// {status, error:{kind, message}} body posted back to the job API.
package errs

import (
	"errors"
	"fmt"
)

// Kind names one of the semantic error categories a job (or the
// runtime itself) can fail with. These are reported, not typed Go
// errors in the usual sense; several different Go error types can all
// map to the same Kind.
type Kind string

const (
	// KindConfig marks a startup configuration failure. Always fatal.
	KindConfig Kind = "config"

	// KindAuthFailure marks a credential rejection that persists after a
	// token refresh. The runtime logs a poll that fails with it and
	// keeps polling, and reports a job that fails with it to the API and
	// the observability sink; neither ends the process.
	KindAuthFailure Kind = "auth_failure"

	// KindTransient marks a network, 5xx, or throttling failure.
	// Retried locally where policy allows; otherwise reported as
	// failed: transient.
	KindTransient Kind = "transient"

	// KindInvalidInput marks a payload that failed schema decode or
	// semantic validation. Never retried.
	KindInvalidInput Kind = "invalid_input"

	// KindInternal marks an unexpected failure in a handler or the
	// assessment routines it calls.
	KindInternal Kind = "internal"

	// KindUnknownJobType marks a claimed job whose type has no
	// registered handler. Indicates fleet/config drift.
	KindUnknownJobType Kind = "invalid_input"

	// KindUpload marks an object-store upload failure surviving all
	// retries.
	KindUpload Kind = "upload"
)

// Error is the concrete error value every runtime-facing failure is
// normalized to before it is logged or reported to the API.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an existing error,
// preserving it as the Cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Config, AuthFailure, Transient, InvalidInput, Internal, UnknownJobType
// and Upload are convenience constructors mirroring the Kind constants
// above, so call sites read as errs.InvalidInput("unknown region %q", r)
// rather than errs.New(errs.KindInvalidInput, ...).

func Config(format string, args ...interface{}) *Error {
	return New(KindConfig, format, args...)
}

func AuthFailure(format string, args ...interface{}) *Error {
	return New(KindAuthFailure, format, args...)
}

func Transient(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindTransient, cause, format, args...)
}

func InvalidInput(format string, args ...interface{}) *Error {
	return New(KindInvalidInput, format, args...)
}

func Internal(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindInternal, cause, format, args...)
}

func UnknownJobType(jobType string) *Error {
	return New(KindUnknownJobType, "no handler registered for job type %q", jobType)
}

func Upload(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindUpload, cause, format, args...)
}

// Classify returns the Kind of err if it is (or wraps) an *Error,
// otherwise KindInternal -- any error escaping a handler without
// having been explicitly classified is treated as unexpected.
func Classify(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

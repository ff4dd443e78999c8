// Package errs defines the error taxonomy shared across the scoring
// pipeline. Validation and auth errors are rejected synchronously at the
// ingestion boundary; dependency and data errors are handled per component
// and never surface to the original caller.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary handling.
type Kind int

const (
	// KindValidation - malformed or unidentifiable payload.
	KindValidation Kind = iota
	// KindAuth - bad tenant key or webhook signature.
	KindAuth
	// KindDependency - a downstream store, cache or service failed.
	KindDependency
	// KindData - inconsistent or missing historical data.
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindDependency:
		return "dependency"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Error carries a kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation wraps err as a validation error.
func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// Auth wraps err as an auth error.
func Auth(op string, err error) *Error {
	return &Error{Kind: KindAuth, Op: op, Err: err}
}

// Dependency wraps err as a dependency error.
func Dependency(op string, err error) *Error {
	return &Error{Kind: KindDependency, Op: op, Err: err}
}

// Data wraps err as a data error.
func Data(op string, err error) *Error {
	return &Error{Kind: KindData, Op: op, Err: err}
}

// KindOf extracts the kind of err, defaulting to KindDependency for
// untyped errors so unknown failures stay retryable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}

// IsRejectable reports whether err should be rejected at ingestion
// instead of enqueued.
func IsRejectable(err error) bool {
	k := KindOf(err)
	return k == KindValidation || k == KindAuth
}

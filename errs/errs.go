// Package errs defines the closed error taxonomy shared by every stratadb
// component. The module's own components report failures as an *Error
// from this package; errors that come from the standard library or a
// third-party package (config file loading, for example) are returned as
// they are, without being wrapped in an *Error.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of failure categories. New kinds must not
// be added without updating Retryable below.
type Kind int

const (
	Unknown Kind = iota
	NotFound
	Network
	Timeout
	Validation
	Conflict
	Sync
	Auth
	Authorization
	Transaction
	IllegalState
	Cancelled
	QuotaExceeded
	CircuitOpen
	PoolTimeout
	PoolClosed
	PoolNotInit
	SchemaValidation
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Network:
		return "Network"
	case Timeout:
		return "Timeout"
	case Validation:
		return "Validation"
	case Conflict:
		return "Conflict"
	case Sync:
		return "Sync"
	case Auth:
		return "Auth"
	case Authorization:
		return "Authorization"
	case Transaction:
		return "Transaction"
	case IllegalState:
		return "IllegalState"
	case Cancelled:
		return "Cancelled"
	case QuotaExceeded:
		return "QuotaExceeded"
	case CircuitOpen:
		return "CircuitOpen"
	case PoolTimeout:
		return "PoolTimeout"
	case PoolClosed:
		return "PoolClosed"
	case PoolNotInit:
		return "PoolNotInit"
	case SchemaValidation:
		return "SchemaValidation"
	default:
		return "Unknown"
	}
}

// retryable is the closed set named in spec §4.2.
var retryable = map[Kind]bool{
	Network:       true,
	Timeout:       true,
	Sync:          true,
	PoolTimeout:   true,
	QuotaExceeded: true,
	CircuitOpen:   true,
}

// Violation describes one field-level validation failure, carried by a
// Validation-kind Error.
type Violation struct {
	Field   string
	Message string
}

// Error is the single error type produced by stratadb components.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Validation-kind detail.
	Violations []Violation

	// SchemaValidation-kind detail.
	Field    string
	Expected string
	Actual   string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the error's Kind belongs to the retryable set
// defined in spec §4.2.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return retryable[e.Kind]
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind, wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFoundf is a convenience constructor for the common NotFound case.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, format, args...)
}

// ValidationErr constructs a Validation error carrying field violations.
func ValidationErr(violations ...Violation) *Error {
	msg := "validation failed"
	if len(violations) > 0 {
		msg = fmt.Sprintf("validation failed: %s", violations[0].Field)
	}
	return &Error{Kind: Validation, Message: msg, Violations: violations}
}

// SchemaValidationErr constructs a SchemaValidation error.
func SchemaValidationErr(field, expected, actual string) *Error {
	return &Error{
		Kind:     SchemaValidation,
		Message:  fmt.Sprintf("schema mismatch at %s", field),
		Field:    field,
		Expected: expected,
		Actual:   actual,
	}
}

// Is reports whether err is a stratadb *Error with the given Kind. It
// follows the standard errors.As chain, so wrapped errors are matched too.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or Unknown if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Retryable reports whether err is a retryable stratadb *Error.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// Package errs provides the unified error type used across all of QGenie.
//
// Every subsystem (drivers, introspection, the embedded store, the annotation
// pipeline) wraps its native errors into *errs.Error before returning them.
// Callers use the Is* predicates to branch on the kind, and the boundary
// layer uses CodeOf / HTTPStatus to render a stable response.
//
// Usage:
//
//	// In a driver — wrap native errors:
//	return errs.Wrap(errs.ErrKindConnectionFailed, "connect failed", oraErr)
//
//	// With a stable machine code:
//	return errs.Wrap(errs.ErrKindIntrospectionFailed, "list constraints", err).
//		WithCode(errs.CodeFailFindConstraints)
//
//	// At the boundary:
//	if errs.IsStoreBusy(err) { retry() }
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown                  ErrKind = iota
	ErrKindNotFound                         // profile, annotation or row absent
	ErrKindConnectionFailed                 // bad credentials, unreachable host, missing driver
	ErrKindTimeout                          // context deadline / cancellation
	ErrKindQueryFailed                      // SQL execution error on the target database
	ErrKindInvalidInput                     // missing or malformed parameters
	ErrKindPermissionDenied                 // access denied by the backend
	ErrKindUnsupportedDatabaseType          // no dialect registered for the type
	ErrKindIntrospectionFailed              // schema discovery failed
	ErrKindStoreBusy                        // embedded store locked; retryable
	ErrKindAnnotationCreationFailed         // annotation transaction rolled back
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindUnsupportedDatabaseType:
		return "unsupported_database_type"
	case ErrKindIntrospectionFailed:
		return "introspection_failed"
	case ErrKindStoreBusy:
		return "store_busy"
	case ErrKindAnnotationCreationFailed:
		return "annotation_creation_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all QGenie subsystems.
type Error struct {
	Kind    ErrKind
	Code    Code // optional; defaults to the kind's code
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCode attaches a stable machine code and returns the same error.
func (e *Error) WithCode(c Code) *Error {
	e.Code = c
	return e
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a missing profile, annotation or row.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity, auth or driver failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a SQL execution failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsUnsupportedDatabaseType reports whether no dialect exists for the requested type.
func IsUnsupportedDatabaseType(err error) bool {
	return KindOf(err) == ErrKindUnsupportedDatabaseType
}

// IsIntrospectionFailed reports whether schema discovery failed.
func IsIntrospectionFailed(err error) bool {
	return KindOf(err) == ErrKindIntrospectionFailed
}

// IsStoreBusy reports whether the embedded store was locked. Callers may retry.
func IsStoreBusy(err error) bool {
	return KindOf(err) == ErrKindStoreBusy
}

// IsAnnotationCreationFailed reports whether an annotation write was rolled back.
func IsAnnotationCreationFailed(err error) bool {
	return KindOf(err) == ErrKindAnnotationCreationFailed
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

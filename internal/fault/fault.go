package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a backend failure for the HTTP boundary.
type Kind int

const (
	KindBadRequest Kind = iota
	KindUnauthorized
	KindForbidden
	KindDatabase
	KindByteConversion
	KindInternal
)

// Error carries a failure kind plus a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.wrapped }

// Bad reports a malformed request, token or claim set.
func Bad(msg string) *Error {
	if msg == "" {
		msg = "Bad Request"
	}
	return &Error{Kind: KindBadRequest, Message: msg}
}

// Badf reports a malformed request with a specific client-safe message.
func Badf(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports a known principal lacking privilege, or a failed
// one-time-code check.
func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Message: "Forbidden"}
}

// Unauthorized reports missing or failed authentication where it was required.
func Unauthorized(msg string, err error) *Error {
	if msg == "" {
		msg = "Unauthorized"
	}
	return &Error{Kind: KindUnauthorized, Message: msg, wrapped: err}
}

// Database wraps an unexpected store failure.
func Database(err error) *Error {
	return &Error{Kind: KindDatabase, Message: "database failure", wrapped: err}
}

// Databasef reports a store failure with a specific message.
func Databasef(format string, args ...any) *Error {
	return &Error{Kind: KindDatabase, Message: fmt.Sprintf(format, args...)}
}

// ByteConversion reports an illegal conversion of stored bytes, such as an
// unknown enum discriminant or an unopenable sealed secret.
func ByteConversion(msg string, err error) *Error {
	return &Error{Kind: KindByteConversion, Message: msg, wrapped: err}
}

// Internal wraps a wiring or programming defect.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, wrapped: err}
}

// KindOf extracts the failure kind, defaulting to internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// SimplifiedString returns the stable wire identifier of a kind.
func (k Kind) SimplifiedString() string {
	switch k {
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindDatabase:
		return "DATABASE"
	case KindByteConversion:
		return "BYTE_CONVERSION"
	default:
		return "INTERNAL"
	}
}

// StatusCode maps a kind to its HTTP status.
func (k Kind) StatusCode() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// MessageOf returns the client-safe message for err; internals are masked.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "internal error"
}

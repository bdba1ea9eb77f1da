package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies a domain error for transport mapping.
type Kind string

const (
	KindConflict   Kind = "conflict"
	KindBadRequest Kind = "bad_request"
	KindNotFound   Kind = "not_found"
	KindTransport  Kind = "transport"
)

// Error is a typed domain error. Sentinel values built with the constructors
// below are compared with errors.Is by identity.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Conflict returns an error for uniqueness violations.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// BadRequest returns an error for invalid input or invalid state transitions.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// NotFound returns an error for missing resources.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Transport wraps a failure of an external delivery system.
func Transport(message string, err error) *Error {
	return &Error{Kind: KindTransport, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// MessageOf returns the client-safe message of the first *Error in err's chain.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ""
}

// WriteServiceError maps a service error onto the standard error envelope.
// Errors without a Kind are reported as internal errors with a generic message.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error, fallbackMessage string) {
	switch KindOf(err) {
	case KindConflict:
		WriteConflict(w, r, MessageOf(err))
	case KindBadRequest:
		WriteBadRequest(w, r, MessageOf(err))
	case KindNotFound:
		WriteNotFound(w, r, MessageOf(err))
	case KindTransport:
		WriteBadGateway(w, r, "notification_failed", MessageOf(err))
	default:
		WriteInternalError(w, r, fallbackMessage)
	}
}

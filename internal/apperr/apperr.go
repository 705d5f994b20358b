// Package apperr defines the error taxonomy shared by the photoshare services.
//
// Services return *Error values whose Message is safe to show to clients.
// The wrapped Err carries the internal detail and is only ever logged.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by who caused it and how the caller should react.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindPayloadTooLarge
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a classified error with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Message: msg} }

func Forbidden(msg string) error { return &Error{Kind: KindForbidden, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

func PayloadTooLarge(msg string) error { return &Error{Kind: KindPayloadTooLarge, Message: msg} }

func RateLimited(msg string) error { return &Error{Kind: KindRateLimited, Message: msg} }

// Internal wraps err as an internal failure. The message is what clients see;
// err is kept for logs.
func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf reports the Kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the message that may be shown to a client.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindInternal {
		return ae.Message
	}
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "internal server error"
}

// Package apperrors defines the error taxonomy shared by the WhatsApp
// adapter, the HTTP facade and the email tool server.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so that component boundaries can map it to an
// HTTP status or a tool result without string matching.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindNotReady        Kind = "NotReady"
	KindContactNotFound Kind = "ContactNotFound"
	KindTimeout         Kind = "Timeout"
	KindUnknownTool     Kind = "UnknownTool"
	KindTransport       Kind = "TransportError"
)

// Error is a classified failure. Message is safe to return to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, apperrors.ErrNotReady) works for any NotReady error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation      = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotReady        = &Error{Kind: KindNotReady, Message: "not ready"}
	ErrContactNotFound = &Error{Kind: KindContactNotFound, Message: "contact not found"}
	ErrTimeout         = &Error{Kind: KindTimeout, Message: "timeout"}
	ErrUnknownTool     = &Error{Kind: KindUnknownTool, Message: "unknown tool"}
	ErrTransport       = &Error{Kind: KindTransport, Message: "transport failure"}
)

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified
// errors are reported as TransportError since they come from an underlying
// library.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

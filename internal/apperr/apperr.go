// Package apperr defines the error kinds returned by the service layer.
//
// Every expected business failure is returned as an *Error carrying a Kind and a
// message that is safe to show to end users. Handlers translate kinds into HTTP
// status codes; the wrapped cause is kept for logging only.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindSystem is an unexpected failure (storage down, signing failed).
	KindSystem Kind = iota
	// KindValidation is malformed input, rejected before touching storage.
	KindValidation
	// KindNotFound is an unknown user or role.
	KindNotFound
	// KindConflict is a duplicate name, email, username or assignment.
	KindConflict
	// KindInvariant is a refused operation that would break a system rule.
	KindInvariant
	// KindUnauthenticated covers bad credentials and invalid tokens.
	KindUnauthenticated
	// KindInactive is a login attempt on a deactivated account.
	KindInactive
)

var kindNames = map[Kind]string{
	KindSystem:          "system",
	KindValidation:      "validation",
	KindNotFound:        "not_found",
	KindConflict:        "conflict",
	KindInvariant:       "invariant",
	KindUnauthenticated: "unauthenticated",
	KindInactive:        "inactive",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified service error.
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

// Is matches another *Error by kind, so errors.Is(err, apperr.ErrNotFound) works
// for any not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrSystem          = &Error{Kind: KindSystem}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrInvariant       = &Error{Kind: KindInvariant}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrInactive        = &Error{Kind: KindInactive}
)

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that keeps err as its cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation is a shortcut for New(KindValidation, ...).
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// NotFound is a shortcut for New(KindNotFound, ...).
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict is a shortcut for New(KindConflict, ...).
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Invariant is a shortcut for New(KindInvariant, ...).
func Invariant(format string, args ...any) *Error {
	return New(KindInvariant, format, args...)
}

// System wraps an unexpected failure behind a generic message.
func System(err error) *Error {
	return &Error{Kind: KindSystem, Message: "internal error", Err: err}
}

// KindOf returns the kind of err. Unclassified errors are KindSystem.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSystem
}

// PublicMessage returns the message that can be shown to a caller.
// Unclassified and system errors never leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindSystem {
		return e.Message
	}
	return "internal error"
}

package types

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure into the stable machine-readable
// codes surfaced to callers.
type Kind string

const (
	// KindNotFound: an unknown session or template where lookup semantics
	// require existence.
	KindNotFound Kind = "NOT_FOUND"

	// KindDuplicateBuiltin: creating a custom template whose id collides
	// with a built-in.
	KindDuplicateBuiltin Kind = "DUPLICATE_BUILTIN"

	// KindImmutableBuiltin: updating or deleting a built-in template.
	KindImmutableBuiltin Kind = "IMMUTABLE_BUILTIN"

	// KindUpstream: remote completion service failure or timeout.
	KindUpstream Kind = "UPSTREAM_ERROR"

	// KindPersistence: durability flush failure. Logged and swallowed by
	// the store; never fails a user-facing request.
	KindPersistence Kind = "PERSISTENCE_ERROR"
)

// Error is a tagged error carrying a stable Kind plus a human-readable
// message. The original cause, when any, is preserved for unwrapping.
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

// Is reports kind equality, so errors.Is(err, &Error{Kind: KindNotFound})
// matches any error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a tagged error with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError tags an underlying error with a kind and message.
func WrapError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or "" when err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

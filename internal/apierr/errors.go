// Package apierr defines the error-kind taxonomy from spec §7 and the
// retry/surface policy attached to each kind.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories spec §7 enumerates.
type Kind string

const (
	BadRequest         Kind = "BadRequest"
	Unauthorized       Kind = "Unauthorized"
	SessionUnavailable Kind = "SessionUnavailable"
	QuizLocked         Kind = "QuizLocked"
	NameTaken          Kind = "NameTaken"
	AlreadyAnswered    Kind = "AlreadyAnswered"
	ItemNotOpen        Kind = "ItemNotOpen"
	StoreTransient     Kind = "StoreTransient"
	StoreFatal         Kind = "StoreFatal"
	TickOverrun        Kind = "TickOverrun"
	QueueOverflow      Kind = "QueueOverflow"
)

// Retryable reports whether the policy table in §7 says this kind should be
// retried internally (only StoreTransient, with exponential backoff capped
// at 5 attempts — see internal/store).
func (k Kind) Retryable() bool {
	return k == StoreTransient
}

// CloseConn reports whether this kind closes the originating connection per
// the §7 policy table.
func (k Kind) CloseConn() bool {
	switch k {
	case Unauthorized, SessionUnavailable, QueueOverflow:
		return true
	default:
		return false
	}
}

// Error wraps an underlying cause with its Kind, so callers can branch on
// Kind via errors.As without string-matching messages.
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, apierr.New(kind, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// Of extracts the Kind of err if it (or something it wraps) is an *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

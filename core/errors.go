package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every rejection returned by the engine unwraps to exactly one
// of these, so callers can branch with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrState         = errors.New("state error")
	ErrFunds         = errors.New("funds error")
	ErrTiming        = errors.New("timing error")
)

// Error is a typed rejection carrying its kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	return e.Kind.Error() + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Specific rejections that callers commonly match on.
var (
	ErrNotFound      = &Error{Kind: ErrValidation, Msg: "auction not found"}
	ErrInvalidReveal = &Error{Kind: ErrValidation, Msg: "revealed bid does not match commitment"}
	ErrPaused        = &Error{Kind: ErrAuthorization, Msg: "engine is paused"}
)

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func Authorizationf(format string, args ...any) error {
	return newError(ErrAuthorization, format, args...)
}

func Statef(format string, args ...any) error {
	return newError(ErrState, format, args...)
}

func Fundsf(format string, args ...any) error {
	return newError(ErrFunds, format, args...)
}

func Timingf(format string, args ...any) error {
	return newError(ErrTiming, format, args...)
}

// KindOf returns the wire name of the error's kind, or "internal" for errors
// outside the taxonomy.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrFunds):
		return "funds"
	case errors.Is(err, ErrTiming):
		return "timing"
	default:
		return "internal"
	}
}

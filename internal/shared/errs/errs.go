package errs

import (
	"net/http"

	cr "github.com/cockroachdb/errors"
)

// Waitlist error taxonomy. Callers test membership with Is, never by message.
var (
	ErrNotFound     = cr.New("not found")
	ErrConflict     = cr.New("conflict")
	ErrInvalidState = cr.New("invalid state")
	ErrExpired      = cr.New("expired")
	ErrValidation   = cr.New("validation error")
)

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func New(msg string) error {
	return cr.New(msg)
}

func Mark(err error, markErr error) error {
	if err == nil {
		return markErr
	}
	return cr.Mark(err, markErr)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return cr.As(err, target)
}

// Is reports whether err (or anything it wraps) carries the target mark.
func Is(err, target error) bool {
	return cr.Is(err, target)
}

func NotFound(format string, args ...interface{}) error {
	return cr.Mark(cr.Newf(format, args...), ErrNotFound)
}

func Conflict(format string, args ...interface{}) error {
	return cr.Mark(cr.Newf(format, args...), ErrConflict)
}

func InvalidState(format string, args ...interface{}) error {
	return cr.Mark(cr.Newf(format, args...), ErrInvalidState)
}

func Expired(format string, args ...interface{}) error {
	return cr.Mark(cr.Newf(format, args...), ErrExpired)
}

func Validation(format string, args ...interface{}) error {
	return cr.Mark(cr.Newf(format, args...), ErrValidation)
}

// Kind returns a short machine-readable name for the taxonomy member of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrNotFound):
		return "not_found"
	case Is(err, ErrConflict):
		return "conflict"
	case Is(err, ErrExpired):
		return "expired"
	case Is(err, ErrInvalidState):
		return "invalid_state"
	case Is(err, ErrValidation):
		return "validation_error"
	default:
		return "internal"
	}
}

// HTTPStatus maps the taxonomy onto response codes.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "expired":
		return http.StatusGone
	case "invalid_state":
		return http.StatusUnprocessableEntity
	case "validation_error":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Package apperr defines the error kinds shared by every component.
//
// Components declare their own sentinels wrapping one of these kinds, so a
// caller can match the precise failure or just its kind with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound marks a subject, session or record that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a write that would break a uniqueness rule.
	ErrConflict = errors.New("conflict")
	// ErrExpired marks a session past its validity window.
	ErrExpired = errors.New("expired")
	// ErrMalformed marks an undecodable token or payload.
	ErrMalformed = errors.New("malformed")
	// ErrInvalid marks caller input that fails validation.
	ErrInvalid = errors.New("invalid")
	// ErrCorruptState marks a stored entry that cannot be decoded when the
	// store runs fail-closed.
	ErrCorruptState = errors.New("corrupt state")
)

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short label for the error kind, used in metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	case errors.Is(err, ErrCorruptState):
		return "corrupt"
	default:
		return "internal"
	}
}

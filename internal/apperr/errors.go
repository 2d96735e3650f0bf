// Package apperr holds the error taxonomy shared by the marketplace services.
//
// Packages wrap these sentinels with context (fmt.Errorf("%w: ...")) and the
// HTTP layer maps them to status codes. Anything that does not wrap one of
// them is treated as a transient backend failure.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidInput      = errors.New("invalid input data")
	ErrNotFound          = errors.New("resource not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("conflict")
)

// Status maps err onto an HTTP status code.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// Transient reports whether err is a backend failure the caller may retry.
func Transient(err error) bool {
	return err != nil && Status(err) == http.StatusServiceUnavailable
}

// Message returns the text shown to the caller. Transient errors get a
// generic retry prompt instead of backend details.
func Message(err error) string {
	if Transient(err) {
		return "service temporarily unavailable, please try again"
	}
	return err.Error()
}

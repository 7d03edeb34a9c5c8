// Package apperr defines the error kinds shared between the record store
// client, the diary form, and the dev server's HTTP boundary.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound means no record exists for the requested date. Callers
	// treat it as an empty-template state, not a fatal failure.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest covers malformed parameters (e.g. a bad date string).
	ErrBadRequest = errors.New("bad request")
	// ErrUnprocessable covers structurally invalid payloads.
	ErrUnprocessable = errors.New("unprocessable")
	// ErrConflict means the edit window for the date is closed.
	ErrConflict = errors.New("conflict")
	// ErrServer covers backend 5xx responses.
	ErrServer = errors.New("server error")
	// ErrNetwork covers transport failures before any status was received.
	// The UI layer does not distinguish it from ErrServer.
	ErrNetwork = errors.New("network failure")
)

// FromStatus maps an HTTP status code to an error kind. 2xx maps to nil.
func FromStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusUnprocessableEntity:
		return ErrUnprocessable
	case status >= 400 && status < 500:
		return ErrBadRequest
	default:
		return ErrServer
	}
}

// Status maps an error kind back to an HTTP status code. Unknown errors map to 500.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnprocessable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message returns user-facing text for an error kind, suitable for surfacing
// next to the diary form.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "No record exists for this date."
	case errors.Is(err, ErrConflict):
		return "This day can no longer be edited."
	case errors.Is(err, ErrUnprocessable), errors.Is(err, ErrBadRequest):
		return "The submitted answers could not be processed."
	default:
		return "Something went wrong. Please try again later."
	}
}

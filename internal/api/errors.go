package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/llamachat/internal/session"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps an operation error to an HTTP status and error type.
func classify(err error) (int, string) {
	var se *session.StateError
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.As(err, &se) && se.Closed:
		return http.StatusConflict, "session_closed"
	case errors.As(err, &se):
		return http.StatusConflict, "state_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

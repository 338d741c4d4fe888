package api

import (
	"errors"
	"net/http"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrTooLarge         = errors.New("request body too large")
	ErrEmptyRoster      = errors.New("student list is empty")
	ErrInternal         = errors.New("internal error")
)

// Error carries the failing operation and a kind used to pick the status code.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind wraps err as kind for op.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap wraps an unexpected err as an internal error for op.
func Wrap(op string, err error) error {
	return WrapKind(op, ErrInternal, err)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrEmptyRoster):
		return http.StatusBadRequest
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the text shown to API clients: the wrapped cause for
// client errors and the bare kind for everything else.
func publicMessage(err error) string {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return ErrInternal.Error()
	}
	if apiErr.Err != nil && statusFor(err) < http.StatusInternalServerError {
		return apiErr.Err.Error()
	}
	return apiErr.Kind.Error()
}

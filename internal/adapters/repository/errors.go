package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrEmptyRoster   = errors.New("student roster is empty")
	ErrInvalidLimit  = errors.New("invalid history limit")
	ErrInvalidPick   = errors.New("picked index outside the roster")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrStoreClosed   = errors.New("store is closed")
)

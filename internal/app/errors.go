package service

import (
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/roster"
)

// Errors callers can match with errors.Is.
var (
	ErrEmptyRoster       = repository.ErrEmptyRoster
	ErrUnsupportedFormat = roster.ErrUnsupportedFormat
	ErrEmptyFile         = roster.ErrEmptyFile
	ErrMissingFilename   = roster.ErrMissingFilename
	ErrMalformedFile     = roster.ErrMalformedFile
)

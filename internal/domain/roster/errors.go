package roster

import "errors"

// Sentinel errors for roster parsing.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file contains no student names")
	ErrMissingFilename   = errors.New("missing file name")
	ErrMalformedFile     = errors.New("malformed roster file")
)

package rollcall

import (
	"errors"
)

// Sentinel error kinds of a roll-call cycle. Every cycle failure matches
// exactly one of them with errors.Is.
var (
	ErrEmptyRoster  = errors.New("student roster is empty")
	ErrCallRejected = errors.New("roll call rejected")
	ErrTransport    = errors.New("backend unavailable")
	ErrBusy         = errors.New("roll call already in progress")
)

// User-visible placeholders.
const (
	EmptyRosterMessage = "student list is empty, import a roster first"
	FailureMessage     = "roll call failed, please retry"
)

// RejectedError carries the message of an explicit {"error": ...} reply.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "roll call rejected: " + e.Message
}

// Is reports ErrCallRejected as the kind of every RejectedError.
func (e *RejectedError) Is(target error) bool {
	return target == ErrCallRejected
}

// Rejected returns a RejectedError for msg.
func Rejected(msg string) error {
	return &RejectedError{Message: msg}
}

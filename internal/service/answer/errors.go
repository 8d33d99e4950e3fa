package answer

import (
	"errors"
	"fmt"
)

// Error kinds returned by Client.Ask. Match them with errors.Is.
var (
	ErrInvalidInput       = errors.New("question is required and must be a non-empty string")
	ErrBackendUnavailable = errors.New("answer backend unavailable")
	ErrBackendError       = errors.New("answer backend error")
	ErrBackendRejected    = errors.New("answer backend rejected the question")
)

// Error carries the details of a failed ask.
type Error struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Kind, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Kind, e.Status)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool { return target == e.Kind }

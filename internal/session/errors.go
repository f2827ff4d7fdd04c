package session

import (
	"errors"
	"fmt"
)

var (
	ErrState  = errors.New("operation not permitted in current state")
	ErrClosed = errors.New("session closed")
)

// StateError rejects an operation before it has any side effect.
type StateError struct {
	Op     string
	State  State
	Closed bool
}

func (e *StateError) Error() string {
	if e.Closed {
		return fmt.Sprintf("cannot %s: %v", e.Op, ErrClosed)
	}
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool {
	return target == ErrState || (e.Closed && target == ErrClosed)
}

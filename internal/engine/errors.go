package engine

import "errors"

var (
	ErrNotLoaded = errors.New("no model loaded")
	ErrNotFile   = errors.New("model path is not a regular file")
)

// Error wraps any failure surfaced by an engine call.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with the engine operation that produced it. Nil stays nil
// and errors already wrapped keep their original operation.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	return &Error{Op: op, Err: err}
}

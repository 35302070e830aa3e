package store

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store closed")

// Error represents a store error
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no record exists for the key.
//
//	if errors.Is(err, store.ErrNotFound) {
//	    // fall back to the remote API
//	}
var ErrNotFound = errors.New("tournament not found")

// Error is a storage failure. Op names the store operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err came from a failed storage operation.
func IsStorageError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

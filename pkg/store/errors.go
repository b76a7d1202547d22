package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when nothing is stored at the path.
	ErrNotFound = errors.New("no document at path")

	// ErrNotObject is returned when a write descends through a value that
	// is not an object, or replaces the root with a non-object.
	ErrNotObject = errors.New("value is not an object")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// PathError records the operation and path of a failed store call.
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *PathError) Unwrap() error {
	return e.Err
}

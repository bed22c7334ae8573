package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrDuplicateRequest = errors.New("request already pending")
	ErrInvalidState     = errors.New("action not allowed in current state")
	ErrSelfRequest      = errors.New("cannot send a request to yourself")
	ErrAlreadyExists    = errors.New("already exists")
	ErrAlreadyPartners  = errors.New("already connected")
)

// PartialWriteError reports a multi-step operation that applied some of its
// writes but not all.
type PartialWriteError struct {
	Op   string
	Done []string
	Err  error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: partial write (done: %s): %v", e.Op, strings.Join(e.Done, ","), e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// TransientError marks a backend failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err wraps a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

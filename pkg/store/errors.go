package store

import (
	"errors"
	"fmt"
)

// Static errors for store validation
var (
	ErrSubjectRequired   = errors.New("subject is required")
	ErrSignatureRequired = errors.New("signature is required")
	ErrEmptyPayload      = errors.New("fetched detail payload must not be empty")
	ErrDetailNotFound    = errors.New("no detail record for signature")
)

// StorageError wraps an underlying storage I/O failure. Cache integrity
// cannot be assumed after one, so it aborts the current fetch operation
// instead of being retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err as a storage failure for operation op.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err is a storage I/O failure.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

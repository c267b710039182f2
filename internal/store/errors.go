package store

import "errors"

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested task does not exist in the store.
	ErrNotFound = errors.New("task not found")

	// ErrDuplicate is returned when a create would collide with an existing
	// task ID. With UUID generation this should be statistically impossible,
	// so callers treat it as an internal fault.
	ErrDuplicate = errors.New("task already exists")

	// ErrInvalidEntity is returned when a task fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid task")

	// ErrStorageUnavailable is returned when the persistence layer cannot be
	// reached. Request-path callers surface it as a 500-class error; the
	// dispatcher retries the terminal write once before giving up.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// IsNotFoundError checks if the error is a "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is a duplicate-key error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

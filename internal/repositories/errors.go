package repositories

import "errors"

// Repository-level errors. Both implementations normalize their native errors
// into these; nothing backend-specific crosses the interface.
var (
	// ErrNotFound is a lookup miss, a valid outcome callers branch on.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a unique key (username, email, slug, ...) is taken.
	ErrConflict = errors.New("record already exists")
	// ErrUnavailable means the backend could not be reached or the unit of
	// work could not commit. No partial effect is to be assumed.
	ErrUnavailable = errors.New("repository unavailable")
	// ErrInvalidInput means the call itself was malformed.
	ErrInvalidInput = errors.New("invalid repository input")
)

package services

import "errors"

// Service-level errors. Repository errors (repositories.ErrNotFound,
// ErrConflict, ErrUnavailable) pass through unchanged.
var (
	// ErrUnauthorized means the caller is missing or does not own the target.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation means the request carried an invalid value.
	ErrValidation = errors.New("validation failed")
	// ErrSlugExhausted means no free slug was found within the attempt cap.
	ErrSlugExhausted = errors.New("no free slug available")
	// ErrInvalidPage means the page does not belong to the publication.
	ErrInvalidPage = errors.New("invalid page")
)

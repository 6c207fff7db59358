package domain

import "errors"

// Error classes shared by services and HTTP handlers. Concrete errors wrap one
// of these so callers can classify them with errors.Is.
var (
	// ErrNotFound is returned when a tenant-scoped lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a request that collides with current state.
	ErrConflict = errors.New("conflict")
	// ErrIntegrity marks a request that would break a data-model invariant.
	ErrIntegrity = errors.New("integrity violation")
)

package domain

import "errors"

// Shared error taxonomy. Synchronous validation failures never reach the
// network; conflict and transport failures are only observable after a
// round-trip and trigger rollback in the board coordinator.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("booking conflict")
	ErrStaleVersion      = errors.New("stale booking version")
	ErrNotFound          = errors.New("booking not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTransport         = errors.New("transport error")
)

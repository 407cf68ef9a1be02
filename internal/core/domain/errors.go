package domain

import "errors"

// Error kinds surfaced at the HTTP boundary. Service errors wrap one of these.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// ErrDuplicateEntry is returned by repositories when a unique constraint rejects a write.
var ErrDuplicateEntry = errors.New("duplicate entry")

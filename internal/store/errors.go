package store

import "errors"

// Store errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a token identity is admitted or
	// inserted a second time. Neither the ledger nor the position store allow it.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPositionClosed is returned when an update targets a RUGGED or WON position.
	ErrPositionClosed = errors.New("position is closed")
)

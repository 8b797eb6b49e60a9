// Package storage defines the persistence contracts for the journal, snapshots
// and reward history. All stores are append-only.
package storage

import "errors"

var (
	// ErrNotFound is returned when a snapshot or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a seq or history key is already stored.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned for malformed records and for journal appends
	// that would leave a gap in the seq.
	ErrInvalidInput = errors.New("invalid input")
)

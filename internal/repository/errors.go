// Package repository holds storage-level sentinel errors shared by the
// domain services and the SQLite implementation.
package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write loses: a key already
	// exists, or a guarded status transition found the row in another state.
	ErrConflict = errors.New("conflict")
)

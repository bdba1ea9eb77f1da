// Package store holds the sentinel errors shared by the storage drivers.
package store

import "errors"

var (
	// ErrNotFound is returned when a row does not exist in the caller's scope.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("store: duplicate")

	// ErrNotPending is returned when a conditional update finds the row no
	// longer PENDING.
	ErrNotPending = errors.New("store: invitation not pending")
)

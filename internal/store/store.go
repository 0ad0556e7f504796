// Package store persists the note collection. Every write replaces the whole
// collection atomically; a reader never observes a partial write.
package store

import (
	"fmt"

	"memovox/internal/note"
)

// Store reads and writes the full note collection.
type Store interface {
	// Read returns the last successfully persisted collection. A store that
	// has never been written returns an empty collection, not an error.
	Read() (note.Collection, error)

	// Write persists the entire collection in one atomic operation.
	Write(notes note.Collection) error

	// Close releases any underlying resources.
	Close() error
}

// StorageError wraps a genuine I/O failure from a store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"memovox/internal/note"
)

// FileStore keeps the collection in a single JSON file. Writes go through a
// temp file followed by a rename so a crash mid-write leaves the previous
// file intact.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file path, creating the
// parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Err: err}
	}
	return &FileStore{path: path}, nil
}

// Read loads the persisted collection. A missing file yields an empty
// collection. Unknown fields are ignored and missing fields default to zero.
func (s *FileStore) Read() (note.Collection, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return note.Collection{}, nil
		}
		return nil, &StorageError{Op: "read", Err: err}
	}

	var notes note.Collection
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, &StorageError{Op: "decode", Err: err}
	}
	return notes, nil
}

// Write replaces the persisted collection.
func (s *FileStore) Write(notes note.Collection) error {
	if notes == nil {
		notes = note.Collection{}
	}
	data, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &StorageError{Op: "rename", Err: err}
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

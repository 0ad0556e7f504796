package store

import (
	"database/sql"
	"fmt"

	"memovox/internal/note"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS notes (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		uri TEXT NOT NULL,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		duration INTEGER NOT NULL
	);
`

// SQLiteStore persists the collection in a SQLite database. Each write
// replaces the notes table inside one transaction, so readers see either the
// old collection or the new one, never a mix.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "ping", Err: err}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &StorageError{Op: "migrate", Err: err}
	}

	return &SQLiteStore{db: db}, nil
}

// Read returns all notes ordered by their stored position.
func (s *SQLiteStore) Read() (note.Collection, error) {
	rows, err := s.db.Query(`
		SELECT id, text, uri, date, time, duration
		FROM notes
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	notes := note.Collection{}
	for rows.Next() {
		var n note.VoiceNote
		if err := rows.Scan(&n.ID, &n.Text, &n.URI, &n.Date, &n.Time, &n.Duration); err != nil {
			return nil, &StorageError{Op: "scan", Err: err}
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "rows", Err: err}
	}
	return notes, nil
}

// Write replaces the stored collection with the given one.
func (s *SQLiteStore) Write(notes note.Collection) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM notes`); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}

	for i, n := range notes {
		_, err := tx.Exec(`
			INSERT INTO notes (position, id, text, uri, date, time, duration)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, i, n.ID, n.Text, n.URI, n.Date, n.Time, n.Duration)
		if err != nil {
			return &StorageError{Op: "insert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit", Err: err}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

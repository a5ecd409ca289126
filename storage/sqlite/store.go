// Package sqlite provides a SQLite storage backend over database/sql using
// the modernc driver, so no cgo is required.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const (
	schemaSQL = `
CREATE TABLE IF NOT EXISTS statekit_kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	getSQL = `SELECT value FROM statekit_kv WHERE key = ?;`

	setSQL = `
INSERT INTO statekit_kv (key, value, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET
    value = excluded.value,
    updated_at = CURRENT_TIMESTAMP;
`

	deleteSQL = `DELETE FROM statekit_kv WHERE key = ?;`
)

// Store is a SQLite-backed implementation of the raw storage contract.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the key-value
// schema exists. Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*Store, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil, errors.New("sqlite store: database path required")
	}
	db, err := sql.Open("sqlite", clean)
	if err != nil {
		return nil, fmt.Errorf("sqlite store open: %w", err)
	}
	// modernc sqlite serializes writes through a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the stored text for the provided key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, getSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite store get %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts text under the provided key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, setSQL, key, value); err != nil {
		return fmt.Errorf("sqlite store set %q: %w", key, err)
	}
	return nil
}

// Delete removes the provided key; missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("sqlite store delete %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite store close: %w", err)
	}
	return nil
}

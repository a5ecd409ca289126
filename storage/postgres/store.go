// Package postgres provides a PostgreSQL storage backend over pgx. Schema is
// managed through the embedded migrations under db/migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	getSQL = `SELECT value FROM statekit_kv WHERE key = $1;`

	setSQL = `
INSERT INTO statekit_kv (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET
    value = EXCLUDED.value,
    updated_at = NOW();
`

	deleteSQL = `DELETE FROM statekit_kv WHERE key = $1;`
)

// Store is a PostgreSQL-backed implementation of the raw storage contract.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a postgres store backed by the provided pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the stored text for the provided key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s.pool == nil {
		return "", false, errors.New("postgres store: nil pool")
	}
	var value string
	err := s.pool.QueryRow(ctx, getSQL, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres store get %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts text under the provided key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s.pool == nil {
		return errors.New("postgres store: nil pool")
	}
	if _, err := s.pool.Exec(ctx, setSQL, key, value); err != nil {
		return fmt.Errorf("postgres store set %q: %w", key, err)
	}
	return nil
}

// Delete removes the provided key; missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.pool == nil {
		return errors.New("postgres store: nil pool")
	}
	if _, err := s.pool.Exec(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("postgres store delete %q: %w", key, err)
	}
	return nil
}

// Package factory opens storage backends from configuration.
package factory

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/statekit/config"
	"github.com/coachpo/statekit/storage"
	"github.com/coachpo/statekit/storage/fs"
	"github.com/coachpo/statekit/storage/memory"
	"github.com/coachpo/statekit/storage/postgres"
	"github.com/coachpo/statekit/storage/sqlite"
)

// Open constructs the raw storage backend selected by the settings. The
// returned closer releases backend resources; it is never nil.
func Open(ctx context.Context, settings config.StorageSettings) (storage.Raw, io.Closer, error) {
	switch settings.Driver {
	case config.DriverMemory:
		return memory.New(), nopCloser{}, nil
	case config.DriverFilesystem:
		store, err := fs.New(settings.Root)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, settings.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, settings.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return postgres.New(pool), poolCloser{pool: pool}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", settings.Driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type poolCloser struct {
	pool *pgxpool.Pool
}

func (c poolCloser) Close() error {
	c.pool.Close()
	return nil
}

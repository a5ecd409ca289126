// Package memory provides an in-memory storage backend suitable for tests
// and ephemeral processes.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Store is a mutex-guarded map implementation of the raw storage contract.
type Store struct {
	mu      sync.RWMutex
	records map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	store := new(Store)
	store.records = make(map[string]string)
	return store
}

// Get returns the stored text for the provided key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctxErr(ctx, "get"); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.records[key]
	return value, ok, nil
}

// Set stores text under the provided key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctxErr(ctx, "set"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = value
	return nil
}

// Delete removes the provided key; missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctxErr(ctx, "delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Len reports the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func ctxErr(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("memory store %s context: %w", op, ctx.Err())
	default:
		return nil
	}
}

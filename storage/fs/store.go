// Package fs provides a filesystem storage backend: one file per key under a
// root directory, written atomically via rename.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store persists values as files beneath a root directory. Keys map to file
// names; keys containing path separators are hashed to keep the layout flat.
type Store struct {
	root string
}

// New creates the root directory if needed and returns a filesystem store.
func New(root string) (*Store, error) {
	clean := strings.TrimSpace(root)
	if clean == "" {
		return nil, errors.New("fs store: root directory required")
	}
	if err := os.MkdirAll(clean, 0o755); err != nil {
		return nil, fmt.Errorf("fs store: create root: %w", err)
	}
	return &Store{root: clean}, nil
}

// Get returns the stored text for the provided key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctxErr(ctx, "get"); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fs store read %q: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes text under the provided key through a temp file plus rename, so
// readers never observe a partial value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctxErr(ctx, "set"); err != nil {
		return err
	}
	target := s.path(key)
	tmp, err := os.CreateTemp(s.root, ".statekit-*")
	if err != nil {
		return fmt.Errorf("fs store temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("fs store write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fs store close temp: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fs store rename %q: %w", key, err)
	}
	return nil
}

// Delete removes the provided key; missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctxErr(ctx, "delete"); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fs store delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) string {
	name := key
	if strings.ContainsAny(key, `/\`) || name == "" || name == "." || name == ".." {
		sum := sha256.Sum256([]byte(key))
		name = hex.EncodeToString(sum[:16])
	}
	return filepath.Join(s.root, name+".json")
}

func ctxErr(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("fs store %s context: %w", op, ctx.Err())
	default:
		return nil
	}
}

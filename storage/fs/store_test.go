package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(" "); err == nil {
		t.Error("expected error for blank root")
	}
}

func TestStoreLifecycle(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if _, found, err := s.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("expected clean miss, found=%v err=%v", found, err)
	}

	if err := s.Set(ctx, "app", `{"state":{}}`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, found, err := s.Get(ctx, "app")
	if err != nil || !found {
		t.Fatalf("Get() found=%v err=%v", found, err)
	}
	if value != `{"state":{}}` {
		t.Errorf("unexpected value %q", value)
	}

	if err := s.Delete(ctx, "app"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "app"); err != nil {
		t.Fatalf("Delete() of missing key error = %v", err)
	}
	if _, found, _ := s.Get(ctx, "app"); found {
		t.Error("expected key gone after delete")
	}
}

func TestKeysWithSeparatorsAreHashed(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := s.Set(ctx, "nested/app/state", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, found, err := s.Get(ctx, "nested/app/state")
	if err != nil || !found || value != "v" {
		t.Fatalf("round trip failed: value=%q found=%v err=%v", value, found, err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" {
			t.Errorf("unexpected file %q", entry.Name())
		}
		if filepath.Dir(filepath.Join(root, entry.Name())) != root {
			t.Errorf("expected flat layout, got %q", entry.Name())
		}
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Set(context.Background(), "app", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly the target file, got %d entries", len(entries))
	}
	if entries[0].Name() != "app.json" {
		t.Errorf("unexpected file name %q", entries[0].Name())
	}
}

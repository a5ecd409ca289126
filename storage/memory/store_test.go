package memory

import (
	"context"
	"testing"
)

func TestStoreLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, found, err := s.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("expected clean miss, found=%v err=%v", found, err)
	}

	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	value, found, err := s.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get() found=%v err=%v", found, err)
	}
	if value != "v2" {
		t.Errorf("expected overwrite to win, got %q", value)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 key, got %d", s.Len())
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() of missing key error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d keys", s.Len())
	}
}

func TestStoreHonoursContextCancellation(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := s.Get(ctx, "k"); err == nil {
		t.Error("expected Get to fail on cancelled context")
	}
	if err := s.Set(ctx, "k", "v"); err == nil {
		t.Error("expected Set to fail on cancelled context")
	}
	if err := s.Delete(ctx, "k"); err == nil {
		t.Error("expected Delete to fail on cancelled context")
	}
}

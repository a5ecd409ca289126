package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewPopulatesEnvelope(t *testing.T) {
	cause := errors.New("disk full")
	err := New("storage/fs", CodeStorage,
		WithMessage("write envelope"),
		WithKey("app-state"),
		WithRemediation("free disk space"),
		WithCause(cause))

	if err.Scope != "storage/fs" {
		t.Errorf("expected scope storage/fs, got %s", err.Scope)
	}
	if err.Code != CodeStorage {
		t.Errorf("expected code %s, got %s", CodeStorage, err.Code)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}

	rendered := err.Error()
	for _, want := range []string{"scope=storage/fs", "code=storage", `key="app-state"`, `message="write envelope"`} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered error missing %q: %s", want, rendered)
		}
	}
}

func TestNewTrimsWhitespace(t *testing.T) {
	err := New("  persist/hydrate  ", CodeMigration, WithMessage("  boom  "))
	if err.Scope != "persist/hydrate" {
		t.Errorf("expected trimmed scope, got %q", err.Scope)
	}
	if err.Message != "boom" {
		t.Errorf("expected trimmed message, got %q", err.Message)
	}
}

func TestNilRendering(t *testing.T) {
	var err *E
	if err.Error() != "<nil>" {
		t.Errorf("expected <nil>, got %s", err.Error())
	}
}

func TestCodeOfUnwrapsWrappedErrors(t *testing.T) {
	base := New("storage/memory", CodeNotFound)
	wrapped := fmt.Errorf("load envelope: %w", base)

	if code := CodeOf(wrapped); code != CodeNotFound {
		t.Errorf("expected %s, got %s", CodeNotFound, code)
	}
	if code := CodeOf(errors.New("plain")); code != "" {
		t.Errorf("expected empty code for plain error, got %s", code)
	}
	if code := CodeOf(nil); code != "" {
		t.Errorf("expected empty code for nil error, got %s", code)
	}
}

package observability

import (
	"errors"
	"sync"
	"testing"
)

type captureLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureLogger) record(msg string) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, _ ...Field) { c.record(msg) }
func (c *captureLogger) Info(msg string, _ ...Field)  { c.record(msg) }
func (c *captureLogger) Warn(msg string, _ ...Field)  { c.record(msg) }
func (c *captureLogger) Error(msg string, _ ...Field) { c.record(msg) }

func TestSetLoggerNilRestoresNoop(t *testing.T) {
	logger := &captureLogger{}
	SetLogger(logger)
	defer SetLogger(nil)

	Log().Info("hello")
	if len(logger.msgs) != 1 {
		t.Fatalf("expected captured message, got %d", len(logger.msgs))
	}

	SetLogger(nil)
	Log().Info("dropped")
	if len(logger.msgs) != 1 {
		t.Errorf("expected noop after reset, got %d messages", len(logger.msgs))
	}
}

func TestAggregateErrorsFiltersNil(t *testing.T) {
	if err := AggregateErrors("flush", []error{nil, nil}); err != nil {
		t.Errorf("expected nil for all-nil input, got %v", err)
	}

	logger := &captureLogger{}
	SetLogger(logger)
	defer SetLogger(nil)

	first := errors.New("first")
	second := errors.New("second")
	err := AggregateErrors("flush", []error{first, nil, second})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("expected both causes joined, got %v", err)
	}
	if len(logger.msgs) != 1 {
		t.Errorf("expected one structured log entry, got %d", len(logger.msgs))
	}
}

package store

import (
	"sync"

	"github.com/coachpo/statekit/errs"
)

// cell is the atomic snapshot holder. It owns the authoritative current
// snapshot plus the construction-time snapshot, which never changes for the
// lifetime of the store.
type cell[S any] struct {
	mu      sync.RWMutex
	current S
	initial S
}

func (c *cell[S]) seed(initial S) {
	c.mu.Lock()
	c.current = initial
	c.initial = initial
	c.mu.Unlock()
}

func (c *cell[S]) get() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *cell[S]) getInitial() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initial
}

// replace resolves update into a candidate snapshot and commits it. The
// previous snapshot is captured into a local before assignment so callers can
// hand listeners a coherent (next, prev) pair even if a listener re-enters.
// A candidate identical to the current snapshot is a no-op; identity is the
// sole dedup mechanism, no structural diffing happens here.
//
// The candidate is resolved outside the cell lock: transformation functions
// may read the store (or re-enter replace) without deadlocking. Concurrent
// local mutations resolve last-writer-wins.
func (c *cell[S]) replace(update any, full bool) (next, prev S, changed bool) {
	candidate := resolveCandidate(c.get(), update)

	c.mu.Lock()
	defer c.mu.Unlock()

	prev = c.current
	if Identical(candidate, any(prev)) {
		return prev, prev, false
	}
	next = mergeCandidate(prev, candidate, full)
	c.current = next
	return next, prev, true
}

// resolveCandidate turns the accepted update forms into a candidate value:
// a direct snapshot, a field patch, or a transformation producing either.
func resolveCandidate[S any](current S, update any) any {
	switch u := update.(type) {
	case func(S) S:
		return u(current)
	case func(S) map[string]any:
		return u(current)
	case S:
		return u
	case map[string]any:
		return u
	default:
		panic(errs.New("core/store", errs.CodeInvalid,
			errs.WithMessage("unsupported update form"),
			errs.WithRemediation("pass the state type, map[string]any, func(S) S, or func(S) map[string]any")))
	}
}

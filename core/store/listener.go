package store

import (
	"sync"

	"github.com/coachpo/statekit/errs"
)

// Listener receives the accepted snapshot alongside the one it replaced.
type Listener[S any] func(next, prev S)

type subscription[S any] struct {
	id uint64
	fn Listener[S]
}

// registry is an insertion-ordered listener set keyed by registration id.
// Notification iterates a stable copy so listeners may subscribe or
// unsubscribe re-entrantly without corrupting the in-progress pass.
type registry[S any] struct {
	mu   sync.Mutex
	seq  uint64
	subs []subscription[S]
}

func (r *registry[S]) subscribe(fn Listener[S]) func() {
	if fn == nil {
		panic(errs.New("core/store", errs.CodeInvalid, errs.WithMessage("listener must not be nil")))
	}
	r.mu.Lock()
	r.seq++
	id := r.seq
	r.subs = append(r.subs, subscription[S]{id: id, fn: fn})
	r.mu.Unlock()
	return func() {
		r.remove(id)
	}
}

func (r *registry[S]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.subs {
		if sub.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

func (r *registry[S]) notify(next, prev S) {
	r.mu.Lock()
	snapshot := make([]subscription[S], len(r.subs))
	copy(snapshot, r.subs)
	r.mu.Unlock()
	for _, sub := range snapshot {
		sub.fn(next, prev)
	}
}

func (r *registry[S]) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

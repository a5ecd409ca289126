// Package store implements a minimal reactive state container: an atomic
// snapshot holder with subscription-based change notification, extensible
// through a composable middleware pipeline wrapped around construction.
package store

import (
	"sync"

	"github.com/coachpo/statekit/errs"
)

// SetFunc mutates the store. The update accepts the state type directly, a
// map[string]any field patch, or a transformation function producing either;
// replace selects full replacement over shallow merge.
type SetFunc[S any] func(update any, replace bool)

// GetFunc reads the current snapshot.
type GetFunc[S any] func() S

// Initializer produces the initial snapshot. It receives the mutation and
// read functions plus a handle to the store under construction, so state
// definitions can close over their own setter.
type Initializer[S any] func(set SetFunc[S], get GetFunc[S], api *Store[S]) S

// Middleware wraps an initializer, composing right-to-left: the first
// middleware passed to New is the outermost layer.
type Middleware[S any] func(next Initializer[S]) Initializer[S]

// Store composes the snapshot cell and listener registry behind the four
// operation contract: Set, Get, GetInitial, Subscribe.
type Store[S any] struct {
	cell      cell[S]
	listeners registry[S]

	mu           sync.Mutex
	set          SetFunc[S]
	hooks        []func()
	constructing bool
}

// New constructs a store from the initializer, wrapped by the provided
// middlewares. Middleware panics during construction propagate to the caller;
// a store that failed construction is not usable.
func New[S any](init Initializer[S], mws ...Middleware[S]) *Store[S] {
	if init == nil {
		panic(errs.New("core/store", errs.CodeInvalid, errs.WithMessage("initializer must not be nil")))
	}
	s := new(Store[S])
	s.constructing = true

	// The set handed to the innermost initializer is the fully wrapped
	// mutation chain; capture it so the public Set runs every layer.
	chain := SetFunc[S](s.applySet)
	composed := Initializer[S](func(set SetFunc[S], get GetFunc[S], api *Store[S]) S {
		if set != nil {
			chain = set
		}
		return init(set, get, api)
	})
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		composed = mws[i](composed)
	}

	initial := composed(s.applySet, s.Get, s)
	s.cell.seed(initial)

	s.mu.Lock()
	s.set = chain
	s.constructing = false
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	return s
}

// Set mutates the store through the full middleware chain. A candidate
// identical to the current snapshot is dropped without notifying listeners.
func (s *Store[S]) Set(update any, replace bool) {
	s.mu.Lock()
	fn := s.set
	s.mu.Unlock()
	if fn == nil {
		fn = s.applySet
	}
	fn(update, replace)
}

// applySet is the raw mutation entrypoint beneath every middleware layer.
func (s *Store[S]) applySet(update any, replace bool) {
	next, prev, changed := s.cell.replace(update, replace)
	if !changed {
		return
	}
	s.listeners.notify(next, prev)
}

// Get returns the current snapshot.
func (s *Store[S]) Get() S {
	return s.cell.get()
}

// GetInitial returns the snapshot captured at construction time. It never
// changes afterwards, which keeps resettable reads stable across mutations.
func (s *Store[S]) GetInitial() S {
	return s.cell.getInitial()
}

// Subscribe registers a change listener and returns its removal closure.
// Calling the closure more than once is a harmless no-op. Every registered
// listener is invoked synchronously for every accepted mutation.
func (s *Store[S]) Subscribe(fn Listener[S]) func() {
	return s.listeners.subscribe(fn)
}

// ListenerCount reports the number of registered listeners.
func (s *Store[S]) ListenerCount() int {
	return s.listeners.size()
}

// AfterConstruct schedules fn to run once construction completes. Middleware
// initializers use it to start work that needs the store fully constructible,
// such as hydration. Outside construction fn runs immediately.
func (s *Store[S]) AfterConstruct(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.constructing {
		s.hooks = append(s.hooks, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

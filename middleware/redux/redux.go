// Package redux layers a reducer-style action dispatcher over a store. All
// mutations flow through a single pure reducer, so the action stream fully
// determines the state history.
package redux

import (
	"sync"

	"github.com/coachpo/statekit/core/store"
	"github.com/coachpo/statekit/errs"
)

// Reducer computes the next state from the current state and an action. It
// must return the complete next snapshot; the dispatcher applies it with
// full-replace semantics so reducers can zero fields explicitly.
type Reducer[S, A any] func(state S, action A) S

// Dispatcher is the typed capability handle bound during store construction.
type Dispatcher[S, A any] struct {
	mu      sync.Mutex
	reducer Reducer[S, A]
	set     store.SetFunc[S]
}

// Middleware builds the dispatcher middleware and its handle. The handle is
// usable once the store has been constructed with the returned middleware.
func Middleware[S, A any](reducer Reducer[S, A]) (store.Middleware[S], *Dispatcher[S, A], error) {
	if reducer == nil {
		return nil, nil, errs.New("redux", errs.CodeInvalid, errs.WithMessage("reducer required"))
	}
	d := &Dispatcher[S, A]{reducer: reducer}

	mw := store.Middleware[S](func(next store.Initializer[S]) store.Initializer[S] {
		return func(set store.SetFunc[S], get store.GetFunc[S], api *store.Store[S]) S {
			d.mu.Lock()
			d.set = set
			d.mu.Unlock()
			return next(set, get, api)
		}
	})
	return mw, d, nil
}

// Dispatch runs the action through the reducer and commits the result. The
// reducer executes against the snapshot current at commit time.
func (d *Dispatcher[S, A]) Dispatch(action A) error {
	d.mu.Lock()
	set := d.set
	reducer := d.reducer
	d.mu.Unlock()
	if set == nil {
		return errs.New("redux", errs.CodeUnavailable,
			errs.WithMessage("dispatcher not bound"),
			errs.WithRemediation("construct the store with the redux middleware before dispatching"))
	}
	set(func(state S) S { return reducer(state, action) }, true)
	return nil
}

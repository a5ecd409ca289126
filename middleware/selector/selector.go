// Package selector layers projection-filtered subscriptions over a store.
// The core notifies unconditionally on every accepted mutation; the policy of
// firing only when a derived value changes lives here.
package selector

import (
	"github.com/coachpo/statekit/core/store"
)

// Option configures a filtered subscription.
type Option[V any] func(*settings[V])

type settings[V any] struct {
	equals          func(a, b V) bool
	fireImmediately bool
}

// WithEquality overrides the change predicate used to compare projected
// values. The default compares with == for comparable projections.
func WithEquality[V any](equals func(a, b V) bool) Option[V] {
	return func(s *settings[V]) {
		if equals != nil {
			s.equals = equals
		}
	}
}

// WithFireImmediately invokes the listener with the current projection as
// soon as the subscription is registered.
func WithFireImmediately[V any]() Option[V] {
	return func(s *settings[V]) {
		s.fireImmediately = true
	}
}

// Subscribe registers a listener that fires only when project(snapshot)
// changes between accepted mutations. It returns the removal closure of the
// underlying registration.
func Subscribe[S any, V comparable](
	st *store.Store[S],
	project func(S) V,
	fn func(next, prev V),
	opts ...Option[V],
) func() {
	cfg := settings[V]{
		equals:          func(a, b V) bool { return a == b },
		fireImmediately: false,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.fireImmediately {
		current := project(st.Get())
		fn(current, current)
	}

	return st.Subscribe(func(next, prev S) {
		projectedNext := project(next)
		projectedPrev := project(prev)
		if cfg.equals(projectedNext, projectedPrev) {
			return
		}
		fn(projectedNext, projectedPrev)
	})
}

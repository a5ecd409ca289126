// Package logging wraps a store's mutation path with structured transition
// logs. Accepted mutations log at debug level; dropped no-ops stay silent so
// high-frequency identity writes do not flood the sink.
package logging

import (
	"github.com/coachpo/statekit/core/store"
	"github.com/coachpo/statekit/internal/observability"
)

// Options configures the logging layer.
type Options struct {
	// Name labels every log line so multi-store processes stay attributable.
	Name string
	// Logger overrides the process-wide logger. Nil uses observability.Log.
	Logger observability.Logger
}

// Middleware returns a layer that logs every accepted state transition.
func Middleware[S any](opts Options) store.Middleware[S] {
	name := opts.Name
	if name == "" {
		name = "store"
	}
	logger := func() observability.Logger {
		if opts.Logger != nil {
			return opts.Logger
		}
		return observability.Log()
	}

	return func(next store.Initializer[S]) store.Initializer[S] {
		return func(set store.SetFunc[S], get store.GetFunc[S], api *store.Store[S]) S {
			wrapped := func(update any, replace bool) {
				prev := get()
				set(update, replace)
				curr := get()
				if store.Identical(any(prev), any(curr)) {
					return
				}
				logger().Debug("state transition",
					observability.Field{Key: "store", Value: name},
					observability.Field{Key: "replace", Value: replace},
					observability.Field{Key: "next", Value: curr},
					observability.Field{Key: "prev", Value: prev})
			}
			logger().Info("store constructed", observability.Field{Key: "store", Value: name})
			return next(wrapped, get, api)
		}
	}
}

// Package metrics instruments a store's mutation path with OpenTelemetry
// counters and a commit-latency histogram. Instruments resolve against the
// globally registered meter provider, so processes without telemetry
// configured pay only a noop call per mutation.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/statekit/core/store"
)

// Options configures the metrics layer.
type Options struct {
	// Name is attached to every measurement as the store attribute.
	Name string
	// Meter overrides the meter used to build instruments. Nil resolves the
	// global provider.
	Meter metric.Meter
}

type instruments struct {
	accepted metric.Int64Counter
	dropped  metric.Int64Counter
	latency  metric.Float64Histogram
	attrs    metric.MeasurementOption
}

// Middleware returns a layer that measures accepted and dropped mutations.
func Middleware[S any](opts Options) store.Middleware[S] {
	name := opts.Name
	if name == "" {
		name = "store"
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("statekit.store")
	}

	ins := new(instruments)
	ins.accepted, _ = meter.Int64Counter("statekit.mutations.accepted",
		metric.WithDescription("Number of mutations that produced a new snapshot"),
		metric.WithUnit("{mutation}"))
	ins.dropped, _ = meter.Int64Counter("statekit.mutations.dropped",
		metric.WithDescription("Number of mutations dropped as identity no-ops"),
		metric.WithUnit("{mutation}"))
	ins.latency, _ = meter.Float64Histogram("statekit.mutation.duration",
		metric.WithDescription("Mutation commit and notification duration"),
		metric.WithUnit("ms"))
	ins.attrs = metric.WithAttributes(attribute.String("store", name))

	return func(next store.Initializer[S]) store.Initializer[S] {
		return func(set store.SetFunc[S], get store.GetFunc[S], api *store.Store[S]) S {
			wrapped := func(update any, replace bool) {
				start := time.Now()
				prev := get()
				set(update, replace)
				changed := !store.Identical(any(prev), any(get()))

				ctx := context.Background()
				if changed {
					if ins.accepted != nil {
						ins.accepted.Add(ctx, 1, ins.attrs)
					}
				} else if ins.dropped != nil {
					ins.dropped.Add(ctx, 1, ins.attrs)
				}
				if changed && ins.latency != nil {
					ins.latency.Record(ctx, float64(time.Since(start).Milliseconds()), ins.attrs)
				}
			}
			return next(wrapped, get, api)
		}
	}
}

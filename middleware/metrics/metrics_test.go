package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/coachpo/statekit/core/store"
)

type counterState struct {
	Count int `json:"count"`
}

func counterSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				return 0, false
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, true
		}
	}
	return 0, false
}

func TestMiddlewareCountsAcceptedAndDropped(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	s := store.New(func(set store.SetFunc[counterState], get store.GetFunc[counterState], api *store.Store[counterState]) counterState {
		return counterState{}
	}, Middleware[counterState](Options{Name: "counters", Meter: provider.Meter("test")}))

	s.Set(map[string]any{"count": 1}, false)
	s.Set(map[string]any{"count": 2}, false)
	s.Set(counterState{Count: 2}, true)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	accepted, ok := counterSum(rm, "statekit.mutations.accepted")
	if !ok {
		t.Fatal("accepted counter not exported")
	}
	if accepted != 2 {
		t.Errorf("expected 2 accepted mutations, got %d", accepted)
	}

	dropped, ok := counterSum(rm, "statekit.mutations.dropped")
	if !ok {
		t.Fatal("dropped counter not exported")
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped mutation, got %d", dropped)
	}
}

func TestMiddlewareRecordsLatency(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	s := store.New(func(set store.SetFunc[counterState], get store.GetFunc[counterState], api *store.Store[counterState]) counterState {
		return counterState{}
	}, Middleware[counterState](Options{Meter: provider.Meter("test")}))

	s.Set(map[string]any{"count": 9}, false)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	found := false
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "statekit.mutation.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			var count uint64
			for _, dp := range hist.DataPoints {
				count += dp.Count
			}
			if count != 1 {
				t.Errorf("expected 1 latency sample, got %d", count)
			}
			found = true
		}
	}
	if !found {
		t.Error("latency histogram not exported")
	}
}

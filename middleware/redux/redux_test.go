package redux

import (
	"testing"

	"github.com/coachpo/statekit/core/store"
)

type counterState struct {
	Count int `json:"count"`
}

type counterAction struct {
	Kind string
	By   int
}

func counterReducer(state counterState, action counterAction) counterState {
	switch action.Kind {
	case "increment":
		state.Count += action.By
	case "decrement":
		state.Count -= action.By
	case "reset":
		state.Count = 0
	}
	return state
}

func newCounter(t *testing.T) (*store.Store[counterState], *Dispatcher[counterState, counterAction]) {
	t.Helper()
	mw, d, err := Middleware[counterState](counterReducer)
	if err != nil {
		t.Fatalf("Middleware() error = %v", err)
	}
	s := store.New(func(set store.SetFunc[counterState], get store.GetFunc[counterState], api *store.Store[counterState]) counterState {
		return counterState{}
	}, mw)
	return s, d
}

func TestDispatchAppliesReducer(t *testing.T) {
	s, d := newCounter(t)

	if err := d.Dispatch(counterAction{Kind: "increment", By: 3}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := d.Dispatch(counterAction{Kind: "decrement", By: 1}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if got := s.Get().Count; got != 2 {
		t.Errorf("expected count 2, got %d", got)
	}
}

func TestDispatchCanZeroFields(t *testing.T) {
	s, d := newCounter(t)
	if err := d.Dispatch(counterAction{Kind: "increment", By: 5}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if err := d.Dispatch(counterAction{Kind: "reset"}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if got := s.Get().Count; got != 0 {
		t.Errorf("expected full-replace reset to zero, got %d", got)
	}
}

func TestDispatchNotifiesListeners(t *testing.T) {
	s, d := newCounter(t)

	var pairs [][2]int
	s.Subscribe(func(next, prev counterState) {
		pairs = append(pairs, [2]int{next.Count, prev.Count})
	})

	if err := d.Dispatch(counterAction{Kind: "increment", By: 1}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(pairs) != 1 || pairs[0] != [2]int{1, 0} {
		t.Errorf("expected one (1,0) notification, got %v", pairs)
	}
}

func TestDispatchBeforeConstructionFails(t *testing.T) {
	_, d, err := Middleware[counterState](counterReducer)
	if err != nil {
		t.Fatalf("Middleware() error = %v", err)
	}
	if err := d.Dispatch(counterAction{Kind: "increment", By: 1}); err == nil {
		t.Error("expected error dispatching before the store exists")
	}
}

func TestMiddlewareRequiresReducer(t *testing.T) {
	if _, _, err := Middleware[counterState, counterAction](nil); err == nil {
		t.Error("expected error for nil reducer")
	}
}

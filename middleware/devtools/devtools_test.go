package devtools

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/coachpo/statekit/core/store"
)

type panelState struct {
	Count int    `json:"count"`
	Mode  string `json:"mode"`
}

func newBridgeStore(t *testing.T) (*store.Store[panelState], *Bridge[panelState], *httptest.Server) {
	t.Helper()
	mw, bridge, err := Middleware[panelState](Options{
		Name:               "panel",
		FramesPerSecond:    1000,
		InsecureSkipVerify: true,
	})
	if err != nil {
		t.Fatalf("Middleware() error = %v", err)
	}
	s := store.New(func(set store.SetFunc[panelState], get store.GetFunc[panelState], api *store.Store[panelState]) panelState {
		return panelState{Count: 0, Mode: "idle"}
	}, mw)
	srv := httptest.NewServer(bridge.Handler())
	t.Cleanup(func() {
		bridge.Close()
		srv.Close()
	})
	return s, bridge, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}

func writeFrame(t *testing.T, conn *websocket.Conn, f Frame) {
	t.Helper()
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
}

func decodeState(t *testing.T, raw json.RawMessage) panelState {
	t.Helper()
	var state panelState
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return state
}

func TestClientReceivesHelloSnapshot(t *testing.T) {
	_, bridge, srv := newBridgeStore(t)
	conn := dial(t, srv)

	hello := readFrame(t, conn)
	if hello.Type != FrameHello {
		t.Fatalf("expected hello frame, got %q", hello.Type)
	}
	if hello.Store != "panel" {
		t.Errorf("expected store label, got %q", hello.Store)
	}
	if got := decodeState(t, hello.State); got.Mode != "idle" {
		t.Errorf("expected initial snapshot, got %+v", got)
	}
	if bridge.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", bridge.ClientCount())
	}
}

func TestTransitionsBroadcastToClients(t *testing.T) {
	s, _, srv := newBridgeStore(t)
	conn := dial(t, srv)
	readFrame(t, conn) // hello

	s.Set(map[string]any{"count": 3}, false)

	frame := readFrame(t, conn)
	if frame.Type != FrameTransition {
		t.Fatalf("expected transition frame, got %q", frame.Type)
	}
	if got := decodeState(t, frame.State); got.Count != 3 || got.Mode != "idle" {
		t.Errorf("unexpected next state %+v", got)
	}
	if got := decodeState(t, frame.Prev); got.Count != 0 {
		t.Errorf("unexpected prev state %+v", got)
	}
	if frame.Seq == 0 {
		t.Error("expected a non-zero sequence number")
	}
}

func TestInjectReplacesState(t *testing.T) {
	s, _, srv := newBridgeStore(t)
	conn := dial(t, srv)
	readFrame(t, conn) // hello

	writeFrame(t, conn, Frame{
		Type:  FrameInject,
		State: json.RawMessage(`{"count":42,"mode":"replay"}`),
	})

	// The injected state is itself broadcast; wait for the frame so the
	// mutation has landed before asserting.
	frame := readFrame(t, conn)
	if frame.Type != FrameTransition {
		t.Fatalf("expected transition frame, got %q", frame.Type)
	}
	got := s.Get()
	if got.Count != 42 || got.Mode != "replay" {
		t.Errorf("expected injected state, got %+v", got)
	}
}

func TestSnapshotRequest(t *testing.T) {
	s, _, srv := newBridgeStore(t)
	conn := dial(t, srv)
	readFrame(t, conn) // hello

	s.Set(map[string]any{"mode": "busy"}, false)
	readFrame(t, conn) // transition

	writeFrame(t, conn, Frame{Type: FrameRequest})

	frame := readFrame(t, conn)
	if frame.Type != FrameSnapshot {
		t.Fatalf("expected snapshot frame, got %q", frame.Type)
	}
	if got := decodeState(t, frame.State); got.Mode != "busy" {
		t.Errorf("expected current snapshot, got %+v", got)
	}
}

func TestUnknownFrameYieldsError(t *testing.T) {
	_, _, srv := newBridgeStore(t)
	conn := dial(t, srv)
	readFrame(t, conn) // hello

	writeFrame(t, conn, Frame{Type: "bogus"})

	frame := readFrame(t, conn)
	if frame.Type != "error" {
		t.Fatalf("expected error frame, got %q", frame.Type)
	}
	if frame.Error == "" {
		t.Error("expected error detail")
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	_, bridge, srv := newBridgeStore(t)
	conn := dial(t, srv)
	readFrame(t, conn) // hello

	bridge.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("expected read failure after bridge close")
	}
	if bridge.ClientCount() != 0 {
		t.Errorf("expected no clients, got %d", bridge.ClientCount())
	}
}

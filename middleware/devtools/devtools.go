// Package devtools bridges a store to development tooling over websockets.
// Every accepted transition is broadcast to connected clients as a JSON frame,
// and clients may inject full snapshots back into the store for time travel.
// The bridge is a development aid: frames are throttled and dropped under
// pressure rather than queued.
package devtools

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/coachpo/statekit/core/store"
	"github.com/coachpo/statekit/errs"
	"github.com/coachpo/statekit/internal/observability"
)

const writeTimeout = 5 * time.Second

// Options configures the devtools bridge.
type Options struct {
	// Name labels frames so tooling can tell stores apart.
	Name string
	// FramesPerSecond throttles transition broadcasts. Zero means 30.
	FramesPerSecond float64
	// MaxFanoutWorkers bounds concurrent client writes per broadcast. Zero
	// means 8.
	MaxFanoutWorkers int
	// InsecureSkipVerify disables websocket origin checks; local tooling
	// connects from arbitrary origins.
	InsecureSkipVerify bool
}

// Frame is the wire unit exchanged with devtools clients.
type Frame struct {
	Type  string          `json:"type"`
	Store string          `json:"store,omitempty"`
	Seq   uint64          `json:"seq,omitempty"`
	State json.RawMessage `json:"state,omitempty"`
	Prev  json.RawMessage `json:"prev,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Frame types understood by the bridge.
const (
	FrameHello      = "hello"
	FrameTransition = "transition"
	FrameSnapshot   = "snapshot"
	FrameInject     = "inject"
	FrameRequest    = "request_snapshot"
)

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, payload)
}

// Bridge is the typed capability handle bound during store construction. It
// doubles as the websocket endpoint via Handler.
type Bridge[S any] struct {
	name    string
	accept  websocket.AcceptOptions
	limiter *rate.Limiter
	workers int

	mu     sync.Mutex
	conns  map[string]*client
	set    store.SetFunc[S]
	get    store.GetFunc[S]
	seq    uint64
	closed bool
}

// Middleware builds the devtools middleware and its bridge handle.
func Middleware[S any](opts Options) (store.Middleware[S], *Bridge[S], error) {
	name := opts.Name
	if name == "" {
		name = "store"
	}
	fps := opts.FramesPerSecond
	if fps <= 0 {
		fps = 30
	}
	workers := opts.MaxFanoutWorkers
	if workers <= 0 {
		workers = 8
	}
	burst := int(fps)
	if burst < 1 {
		burst = 1
	}

	b := &Bridge[S]{
		name:    name,
		accept:  websocket.AcceptOptions{InsecureSkipVerify: opts.InsecureSkipVerify},
		limiter: rate.NewLimiter(rate.Limit(fps), burst),
		workers: workers,
		conns:   make(map[string]*client),
	}

	mw := store.Middleware[S](func(next store.Initializer[S]) store.Initializer[S] {
		return func(set store.SetFunc[S], get store.GetFunc[S], api *store.Store[S]) S {
			wrapped := func(update any, replace bool) {
				prev := get()
				set(update, replace)
				curr := get()
				if store.Identical(any(prev), any(curr)) {
					return
				}
				b.broadcast(curr, prev)
			}
			// Injections go through the wrapped path so every client sees
			// the resulting transition.
			b.mu.Lock()
			b.set = wrapped
			b.get = get
			b.mu.Unlock()
			return next(wrapped, get, api)
		}
	})
	return mw, b, nil
}

// Handler returns the websocket endpoint clients connect to. Each connection
// receives a hello frame with the current snapshot, then transition frames
// until it disconnects.
func (b *Bridge[S]) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &b.accept)
		if err != nil {
			return
		}
		c := &client{id: uuid.NewString(), conn: conn}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			_ = conn.Close(websocket.StatusGoingAway, "bridge closed")
			return
		}
		b.conns[c.id] = c
		b.mu.Unlock()

		observability.Log().Debug("devtools client connected",
			observability.Field{Key: "store", Value: b.name},
			observability.Field{Key: "conn", Value: c.id})

		if err := b.sendSnapshot(r.Context(), c, FrameHello); err != nil {
			b.drop(c, websocket.StatusInternalError)
			return
		}
		b.readLoop(r.Context(), c)
	})
}

func (b *Bridge[S]) readLoop(ctx context.Context, c *client) {
	defer b.drop(c, websocket.StatusNormalClosure)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			b.sendError(ctx, c, errs.New("devtools", errs.CodeSerialization,
				errs.WithMessage("unparseable frame"), errs.WithCause(err)))
			continue
		}
		switch f.Type {
		case FrameInject:
			if err := b.inject(f.State); err != nil {
				b.sendError(ctx, c, err)
			}
		case FrameRequest:
			if err := b.sendSnapshot(ctx, c, FrameSnapshot); err != nil {
				return
			}
		default:
			b.sendError(ctx, c, errs.New("devtools", errs.CodeInvalid,
				errs.WithMessage("unknown frame type: "+f.Type)))
		}
	}
}

// inject applies a client-provided snapshot with full-replace semantics, the
// time-travel primitive: replaying a previously broadcast frame restores that
// exact state.
func (b *Bridge[S]) inject(raw json.RawMessage) error {
	if len(raw) == 0 {
		return errs.New("devtools", errs.CodeInvalid, errs.WithMessage("inject frame missing state"))
	}
	b.mu.Lock()
	set := b.set
	b.mu.Unlock()
	if set == nil {
		return errs.New("devtools", errs.CodeUnavailable, errs.WithMessage("bridge not bound"))
	}

	var value map[string]any
	if err := json.Unmarshal(raw, &value); err == nil {
		set(value, true)
		return nil
	}
	var typed S
	if err := json.Unmarshal(raw, &typed); err != nil {
		return errs.New("devtools", errs.CodeSerialization,
			errs.WithMessage("decode injected state"), errs.WithCause(err))
	}
	set(typed, true)
	return nil
}

func (b *Bridge[S]) sendSnapshot(ctx context.Context, c *client, frameType string) error {
	b.mu.Lock()
	get := b.get
	seq := b.seq
	b.mu.Unlock()
	if get == nil {
		return errs.New("devtools", errs.CodeUnavailable, errs.WithMessage("bridge not bound"))
	}
	state, err := json.Marshal(get())
	if err != nil {
		return errs.New("devtools", errs.CodeSerialization,
			errs.WithMessage("encode snapshot"), errs.WithCause(err))
	}
	payload, err := json.Marshal(Frame{Type: frameType, Store: b.name, Seq: seq, State: state})
	if err != nil {
		return err
	}
	return c.write(ctx, payload)
}

func (b *Bridge[S]) sendError(ctx context.Context, c *client, cause error) {
	payload, err := json.Marshal(Frame{Type: "error", Store: b.name, Error: cause.Error()})
	if err != nil {
		return
	}
	_ = c.write(ctx, payload)
}

// broadcast fans a transition frame out to every connected client. Frames
// beyond the configured rate are dropped, and a client that fails its write
// is disconnected rather than retried.
func (b *Bridge[S]) broadcast(next, prev S) {
	if !b.limiter.Allow() {
		return
	}

	b.mu.Lock()
	b.seq++
	seq := b.seq
	targets := make([]*client, 0, len(b.conns))
	for _, c := range b.conns {
		targets = append(targets, c)
	}
	b.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	nextRaw, err := json.Marshal(next)
	if err != nil {
		return
	}
	prevRaw, err := json.Marshal(prev)
	if err != nil {
		return
	}
	payload, err := json.Marshal(Frame{
		Type:  FrameTransition,
		Store: b.name,
		Seq:   seq,
		State: nextRaw,
		Prev:  prevRaw,
	})
	if err != nil {
		return
	}

	workers := b.workers
	if workers > len(targets) {
		workers = len(targets)
	}
	var errMu sync.Mutex
	var writeErrs []error
	p := pool.New().WithMaxGoroutines(workers)
	for _, target := range targets {
		c := target
		p.Go(func() {
			if err := c.write(context.Background(), payload); err != nil {
				errMu.Lock()
				writeErrs = append(writeErrs, err)
				errMu.Unlock()
				b.drop(c, websocket.StatusInternalError)
			}
		})
	}
	p.Wait()
	_ = observability.AggregateErrors("devtools broadcast", writeErrs,
		observability.Field{Key: "store", Value: b.name})
}

func (b *Bridge[S]) drop(c *client, status websocket.StatusCode) {
	b.mu.Lock()
	_, present := b.conns[c.id]
	delete(b.conns, c.id)
	b.mu.Unlock()
	if present {
		observability.Log().Debug("devtools client disconnected",
			observability.Field{Key: "store", Value: b.name},
			observability.Field{Key: "conn", Value: c.id})
	}
	_ = c.conn.Close(status, "")
}

// ClientCount reports the number of connected clients.
func (b *Bridge[S]) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Close disconnects every client and refuses new connections.
func (b *Bridge[S]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	targets := make([]*client, 0, len(b.conns))
	for _, c := range b.conns {
		targets = append(targets, c)
	}
	b.conns = make(map[string]*client)
	b.mu.Unlock()

	for _, c := range targets {
		_ = c.conn.Close(websocket.StatusGoingAway, "bridge closed")
	}
}

// Package persist synchronizes a store with durable storage across process
// restarts: it hydrates previously persisted state after construction,
// migrates versioned envelopes, and writes the projected state back after
// every accepted mutation.
package persist

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/statekit/core/store"
	"github.com/coachpo/statekit/errs"
	"github.com/coachpo/statekit/internal/observability"
	"github.com/coachpo/statekit/lib/async"
	"github.com/coachpo/statekit/storage"
)

// Status tracks the hydration lifecycle of a store instance.
type Status int

const (
	// StatusNotStarted means no hydration attempt has begun.
	StatusNotStarted Status = iota
	// StatusInProgress means a hydration attempt is loading or merging.
	StatusInProgress
	// StatusCompletedSuccess means the latest attempt merged cleanly.
	StatusCompletedSuccess
	// StatusCompletedError means the latest attempt failed to load, migrate,
	// or merge; the store keeps serving its in-memory state.
	StatusCompletedError
)

// MigrateFunc adjusts a persisted value written under an older version.
type MigrateFunc func(value map[string]any, version int) (map[string]any, error)

// MergeFunc combines the (possibly migrated) persisted value with the state
// current at resolution time, returning the update to apply. The update flows
// through the core's merge semantics, so returning a map patch keeps the
// merge scoped to the persisted projection.
type MergeFunc[S any] func(persisted map[string]any, current S) any

// Options configures the persistence subsystem.
type Options[S any] struct {
	// Codec is the typed envelope storage to load from and write to.
	Codec *storage.Codec
	// Key is the storage key the envelope lives under.
	Key string
	// Version is the schema version written with every envelope and compared
	// against loaded envelopes.
	Version int
	// Partialize selects the subset of state that gets persisted. Nil
	// persists the whole snapshot.
	Partialize func(S) any
	// Migrate adjusts values persisted under a different version. When nil
	// and versions differ, the persisted value passes through unchanged.
	Migrate MigrateFunc
	// Merge overrides the default merge-on-restore strategy, a shallow patch
	// where persisted fields override current ones.
	Merge MergeFunc[S]
	// SkipHydration leaves the store unhydrated at construction; call
	// Rehydrate to load on demand.
	SkipHydration bool
	// OnWriteError observes write-back failures. Writes are best-effort:
	// without a hook, failures are logged and swallowed.
	OnWriteError func(error)
	// RetryWrites retries failed write-backs with exponential backoff.
	RetryWrites bool
	// MaxWriteAttempts caps write retries when RetryWrites is set.
	MaxWriteAttempts uint
	// WritePool, when set, moves write-back off the mutation path onto a
	// worker pool. Superseded queued writes are dropped.
	WritePool *async.Pool
}

// Persistor is the typed capability handle the middleware binds during store
// construction. It drives rehydration and exposes the hydration lifecycle.
type Persistor[S any] struct {
	mu       sync.Mutex
	opts     Options[S]
	set      store.SetFunc[S]
	get      store.GetFunc[S]
	status   Status
	attempt  uint64
	lastErr  error
	onStart  map[uint64]func(S)
	onFinish map[uint64]func(S, error)
	cbSeq    uint64
}

// Middleware builds the persistence middleware and its capability handle.
// The middleware is meant to be the outermost layer so hydration flows
// through every inner wrapper's view of the state. Construction fails fast on
// unusable options; such an error is fatal for the store being assembled.
func Middleware[S any](opts Options[S]) (store.Middleware[S], *Persistor[S], error) {
	if opts.Codec == nil {
		return nil, nil, errs.New("persist", errs.CodeInvalid, errs.WithMessage("storage codec required"))
	}
	if opts.Key == "" {
		return nil, nil, errs.New("persist", errs.CodeInvalid, errs.WithMessage("storage key required"))
	}
	if opts.MaxWriteAttempts == 0 {
		opts.MaxWriteAttempts = 3
	}

	p := &Persistor[S]{
		opts:     opts,
		status:   StatusNotStarted,
		onStart:  make(map[uint64]func(S)),
		onFinish: make(map[uint64]func(S, error)),
	}

	mw := store.Middleware[S](func(next store.Initializer[S]) store.Initializer[S] {
		return func(set store.SetFunc[S], get store.GetFunc[S], api *store.Store[S]) S {
			p.set = set
			p.get = get
			wrapped := func(update any, replace bool) {
				prev := get()
				set(update, replace)
				if !store.Identical(any(prev), any(get())) {
					p.writeBack()
				}
			}
			state := next(wrapped, get, api)
			if !p.opts.SkipHydration {
				api.AfterConstruct(func() {
					_ = p.Rehydrate(context.Background())
				})
			}
			return state
		}
	})

	return mw, p, nil
}

// Rehydrate loads the persisted envelope and merges it into the live store.
// It is callable at any time, including while another attempt is in flight:
// only the most recently initiated attempt commits its result and fires
// finish callbacks; stale completions are discarded silently.
func (p *Persistor[S]) Rehydrate(ctx context.Context) error {
	p.mu.Lock()
	p.attempt++
	attempt := p.attempt
	p.status = StatusInProgress
	opts := p.opts
	starts := make([]func(S), 0, len(p.onStart))
	for _, cb := range p.onStart {
		starts = append(starts, cb)
	}
	p.mu.Unlock()

	pre := p.get()
	for _, cb := range starts {
		cb(pre)
	}

	update, err := p.load(ctx, opts)
	if err != nil {
		return p.complete(attempt, err)
	}
	if update == nil {
		// Nothing was ever persisted; hydration still completes.
		return p.complete(attempt, nil)
	}

	p.mu.Lock()
	stale := attempt != p.attempt
	p.mu.Unlock()
	if stale {
		return nil
	}

	// The merge is applied against whatever state is current at resolution
	// time; mutations issued mid-hydration land under or over the hydrated
	// fields depending on ordering. That race is part of the contract.
	var resolved any = update
	if opts.Merge != nil {
		resolved = opts.Merge(update, p.get())
	}
	if applyErr := p.apply(resolved); applyErr != nil {
		return p.complete(attempt, applyErr)
	}
	return p.complete(attempt, nil)
}

// load fetches and decodes the envelope, running migration when versions
// differ. A nil map with nil error means the key was never persisted.
func (p *Persistor[S]) load(ctx context.Context, opts Options[S]) (map[string]any, error) {
	env, err := opts.Codec.Load(ctx, opts.Key)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, nil
	}
	value, err := env.DecodeState()
	if err != nil {
		return nil, err
	}
	if env.Version != opts.Version && opts.Migrate != nil {
		migrated, err := p.runMigrate(opts.Migrate, value, env.Version)
		if err != nil {
			return nil, err
		}
		value = migrated
	}
	// Version mismatch without a migration function passes the persisted
	// value through unchanged. Permissive by choice: the store must stay
	// usable on downgrade, and the shallow merge limits the blast radius to
	// the projected fields.
	if value == nil {
		value = map[string]any{}
	}
	return value, nil
}

func (p *Persistor[S]) runMigrate(migrate MigrateFunc, value map[string]any, version int) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New("persist/migrate", errs.CodeMigration,
				errs.WithMessage(fmt.Sprintf("migration panic: %v", r)))
		}
	}()
	result, err = migrate(value, version)
	if err != nil {
		return nil, errs.New("persist/migrate", errs.CodeMigration,
			errs.WithMessage("migration failed"), errs.WithCause(err))
	}
	return result, nil
}

// apply commits the resolved update through the mutation entrypoint beneath
// this middleware, so hydration itself does not trigger a write-back.
func (p *Persistor[S]) apply(update any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New("persist/merge", errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("merge apply panic: %v", r)))
		}
	}()
	p.set(update, false)
	return nil
}

// complete records the terminal state of an attempt. Stale attempts are
// dropped without transitioning status or firing callbacks.
func (p *Persistor[S]) complete(attempt uint64, err error) error {
	p.mu.Lock()
	if attempt != p.attempt {
		p.mu.Unlock()
		return nil
	}
	if err != nil {
		p.status = StatusCompletedError
	} else {
		p.status = StatusCompletedSuccess
	}
	p.lastErr = err
	finishes := make([]func(S, error), 0, len(p.onFinish))
	for _, cb := range p.onFinish {
		finishes = append(finishes, cb)
	}
	p.mu.Unlock()

	final := p.get()
	for _, cb := range finishes {
		cb(final, err)
	}
	return err
}

// HasHydrated reports whether any attempt has reached a completed state.
func (p *Persistor[S]) HasHydrated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status == StatusCompletedSuccess || p.status == StatusCompletedError
}

// Status returns the current hydration lifecycle state.
func (p *Persistor[S]) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// LastError returns the error recorded by the latest completed attempt.
func (p *Persistor[S]) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// OnHydrate registers an observer fired at the start of every attempt with
// the pre-hydration state. It returns the removal closure.
func (p *Persistor[S]) OnHydrate(cb func(S)) func() {
	if cb == nil {
		return func() {}
	}
	p.mu.Lock()
	p.cbSeq++
	id := p.cbSeq
	p.onStart[id] = cb
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.onStart, id)
		p.mu.Unlock()
	}
}

// OnFinishHydration registers an observer fired when an attempt completes,
// with the final state and the attempt error, if any. It returns the removal
// closure.
func (p *Persistor[S]) OnFinishHydration(cb func(S, error)) func() {
	if cb == nil {
		return func() {}
	}
	p.mu.Lock()
	p.cbSeq++
	id := p.cbSeq
	p.onFinish[id] = cb
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.onFinish, id)
		p.mu.Unlock()
	}
}

// SetOptions adjusts the live configuration in place, without a new store
// instance. The mutator runs under the persistor lock.
func (p *Persistor[S]) SetOptions(mutate func(*Options[S])) {
	if mutate == nil {
		return
	}
	p.mu.Lock()
	mutate(&p.opts)
	if p.opts.MaxWriteAttempts == 0 {
		p.opts.MaxWriteAttempts = 3
	}
	p.mu.Unlock()
}

// GetOptions returns the current effective configuration.
func (p *Persistor[S]) GetOptions() Options[S] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

// ClearStorage deletes the persisted envelope for the configured key.
func (p *Persistor[S]) ClearStorage(ctx context.Context) error {
	p.mu.Lock()
	opts := p.opts
	p.mu.Unlock()
	return opts.Codec.Delete(ctx, opts.Key)
}

// writeBack persists the projected state after an accepted mutation,
// re-using the configured version. Persistence is best-effort, never
// transactional: failures are reported to the hook or logged, and subsequent
// mutations proceed regardless.
func (p *Persistor[S]) writeBack() {
	p.mu.Lock()
	opts := p.opts
	p.mu.Unlock()

	projected := p.projection(opts)
	if opts.WritePool != nil {
		err := opts.WritePool.SubmitLatest(context.Background(), func(ctx context.Context) error {
			p.write(ctx, opts, projected)
			return nil
		})
		if err != nil {
			p.reportWriteError(opts, err)
		}
		return
	}
	p.write(context.Background(), opts, projected)
}

func (p *Persistor[S]) projection(opts Options[S]) any {
	current := p.get()
	if opts.Partialize == nil {
		return current
	}
	return opts.Partialize(current)
}

func (p *Persistor[S]) write(ctx context.Context, opts Options[S], projected any) {
	operation := func() (struct{}, error) {
		return struct{}{}, opts.Codec.Store(ctx, opts.Key, projected, opts.Version)
	}

	var err error
	if opts.RetryWrites {
		_, err = backoff.Retry(ctx, operation,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(opts.MaxWriteAttempts))
	} else {
		_, err = operation()
	}
	if err != nil {
		p.reportWriteError(opts, err)
	}
}

func (p *Persistor[S]) reportWriteError(opts Options[S], err error) {
	if opts.OnWriteError != nil {
		opts.OnWriteError(err)
		return
	}
	observability.Log().Warn("persist write-back failed",
		observability.Field{Key: "key", Value: opts.Key},
		observability.Field{Key: "error", Value: err.Error()})
}

// Package async provides bounded worker pool utilities.
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coachpo/statekit/errs"
)

// Task represents a unit of work executed by the pool workers.
type Task func(context.Context) error

var (
	// ErrClosed reports a submission against a closed pool.
	ErrClosed = errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	// ErrSaturated reports a submission rejected by a full queue.
	ErrSaturated = errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool at capacity"))
)

// Pool defines a bounded worker pool enforcing backpressure when saturated.
// The persistence write-back path uses a single-worker pool so storage writes
// stay serialized while mutations proceed without blocking.
type Pool struct {
	mu     sync.Mutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

type job struct {
	ctx context.Context
	fn  Task
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(workers, queue int) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{jobs: make(chan job, queue)}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules the provided task for execution respecting pool backpressure.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit context: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.wg.Add(1)
	select {
	case p.jobs <- job{ctx: ctx, fn: fn}:
		return nil
	default:
		p.wg.Done()
		return ErrSaturated
	}
}

// SubmitLatest schedules fn like Submit, but when the queue is full it drops
// the oldest queued task instead of rejecting the new one. Suited to
// last-writer-wins workloads, where a superseded task is pure waste.
func (p *Pool) SubmitLatest(ctx context.Context, fn Task) error {
	err := p.Submit(ctx, fn)
	if !errors.Is(err, ErrSaturated) {
		return err
	}
	select {
	case _, ok := <-p.jobs:
		if ok {
			p.wg.Done()
		}
	default:
	}
	return p.Submit(ctx, fn)
}

// Close stops accepting new tasks. Queued tasks still run to completion.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobs)
}

// Shutdown closes the pool and waits for queued and in-flight tasks to
// complete, or until the context expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	for job := range p.jobs {
		ctx := job.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					// keep the worker alive; diagnostics belong upstream
					_ = r
				}
			}()
			if err := job.fn(ctx); err != nil {
				// task errors are the submitter's concern
				_ = err
			}
		}()
		p.wg.Done()
	}
}

// Package bridge runs every call to the chat platform on one goroutine and lets
// any other goroutine submit work to it and wait for the result with a bound.
//
// The Discord session delivers events on its own goroutines; the HTTP API serves
// each request on another. Neither talks to the platform directly: they submit
// work to a Loop, which executes it serially. A caller that stops waiting
// (timeout, cancelled request) does not cancel the work, which may still
// complete and write to the store later. Store writes are idempotent, so that is
// safe.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
)

type State int32

const (
	StateDisconnected State = iota
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "disconnected"
	}
}

type job func(ctx context.Context)

// Loop executes submitted work one item at a time.
type Loop struct {
	jobs       chan job
	jobTimeout time.Duration

	state     atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once

	started atomic.Bool
	done    chan struct{}
}

// NewLoop returns a loop with a submission queue of size queue. Each unit of
// work runs with a deadline of jobTimeout (0 disables it) so a hung network
// call cannot stall the loop indefinitely.
func NewLoop(queue int, jobTimeout time.Duration) *Loop {
	if queue <= 0 {
		queue = 64
	}
	return &Loop{
		jobs:       make(chan job, queue),
		jobTimeout: jobTimeout,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run executes work until ctx is done. Work still queued at that point is dropped
// and its waiters observe ErrNotReady.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("bridge: loop already running")
	}
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-l.jobs:
			l.exec(ctx, j)
		}
	}
}

func (l *Loop) exec(ctx context.Context, j job) {
	if l.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.jobTimeout)
		defer cancel()
	}
	j(ctx)
}

// SetState records the platform connection state. The first transition to
// StateReady sets the readiness latch; later disconnects only degrade the state.
func (l *Loop) SetState(s State) {
	if s == StateDisconnected && l.Ready() {
		s = StateDegraded
	}
	prev := State(l.state.Swap(int32(s)))
	if prev != s {
		log.Printf("bridge: platform state %s -> %s", prev, s)
	}
	if s == StateReady {
		l.readyOnce.Do(func() { close(l.ready) })
	}
}

func (l *Loop) State() State { return State(l.state.Load()) }

// Ready reports whether the readiness latch is set.
func (l *Loop) Ready() bool {
	select {
	case <-l.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the latch is set or ctx is done.
func (l *Loop) WaitReady(ctx context.Context) error {
	select {
	case <-l.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle is the pending result of submitted work.
type Handle[T any] struct {
	done    chan struct{}
	stopped <-chan struct{}
	val     T
	err     error
}

// Submit queues fn on the loop. It is safe to call from any goroutine and does
// not wait for fn to run; it blocks only while the queue is full.
func Submit[T any](ctx context.Context, l *Loop, fn func(context.Context) (T, error)) (*Handle[T], error) {
	h := &Handle[T]{done: make(chan struct{}), stopped: l.done}
	j := func(ctx context.Context) {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("bridge: work panicked: %v", r)
			}
		}()
		h.val, h.err = fn(ctx)
	}
	select {
	case l.jobs <- j:
		return h, nil
	case <-l.done:
		return nil, fmt.Errorf("%w: loop stopped", errs.ErrNotReady)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the work has finished.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Await blocks the calling goroutine until the work completes, timeout elapses
// (ErrTimeout) or ctx is done. An expired ctx deadline is reported as
// ErrTimeout too. A timeout <= 0 waits on ctx alone.
func (h *Handle[T]) Await(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-h.done:
		return h.val, h.err
	case <-expired:
		return zero, errs.ErrTimeout
	case <-h.stopped:
		select {
		case <-h.done:
			return h.val, h.err
		default:
		}
		return zero, fmt.Errorf("%w: loop stopped", errs.ErrNotReady)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, errs.ErrTimeout
		}
		return zero, ctx.Err()
	}
}

// Do submits fn and waits for it at most timeout, queueing time included. It
// fails fast with ErrNotReady until the platform has connected once.
func Do[T any](ctx context.Context, l *Loop, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !l.Ready() {
		return zero, errs.ErrNotReady
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	h, err := Submit(wctx, l, fn)
	if err == nil {
		var v T
		v, err = h.Await(wctx, 0)
		if err == nil {
			return v, nil
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return zero, errs.ErrTimeout
	}
	return zero, err
}

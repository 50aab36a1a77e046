// Package worker implements the cooperative single-goroutine worker used by
// every coordination-plane component (crawler, scheduler, agent, watchdog).
//
// A Runner processes one payload at a time in its own goroutine. Between
// calls to Work it waits for a Trigger, a scheduled Reschedule, or
// cancellation. TryPause/Resume let callers (chiefly tests) observe the
// Runner at rest without racing its internal state, and Query runs an
// arbitrary callback on the Runner's own goroutine for the same reason.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// WorkFunc is invoked once per iteration with the payload passed to Trigger
// or Reschedule (the initial payload passed to Start for the first
// iteration).
type WorkFunc func(ctx context.Context, payload any)

// Runner drives a WorkFunc in a dedicated goroutine with trigger/cancel/
// pause semantics modelled on a single-threaded event loop: only one Work
// call is ever in flight, and state mutated inside Work can be read safely
// from other goroutines only via Query.
type Runner struct {
	name    string
	work    WorkFunc
	cleanup func()

	ctx    context.Context
	cancel context.CancelFunc

	triggerCh chan any
	queryCh   chan func()
	sem       chan struct{} // capacity 1; held empty while Work runs

	paused atomic.Bool
	done   chan struct{}

	timerMu sync.Mutex
	timer   *time.Timer
}

// New creates a Runner. work is called with the triggering payload; cleanup
// (may be nil) runs once after the Runner's goroutine stops, mirroring the
// teacher workers' Cleanup hooks.
func New(name string, work WorkFunc, cleanup func()) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		name:      name,
		work:      work,
		cleanup:   cleanup,
		ctx:       ctx,
		cancel:    cancel,
		triggerCh: make(chan any, 1),
		queryCh:   make(chan func()),
		sem:       make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start launches the Runner's goroutine with an immediate first iteration
// using the given initial payload.
func (r *Runner) Start(initial any) {
	go r.loop(initial)
}

// Name returns the Runner's diagnostic name.
func (r *Runner) Name() string { return r.name }

// Done is closed once the Runner's goroutine has returned.
func (r *Runner) Done() <-chan struct{} { return r.done }

func (r *Runner) loop(payload any) {
	defer close(r.done)
	if r.cleanup != nil {
		defer r.cleanup()
	}

	first := true
	for {
		if !first {
			select {
			case <-r.sem:
			case <-r.ctx.Done():
				return
			}
		}
		first = false

		if r.ctx.Err() != nil {
			return
		}

		r.work(r.ctx, payload)

		select {
		case r.sem <- struct{}{}:
		default:
		}

		var ok bool
		payload, ok = r.idle()
		if !ok {
			return
		}
	}
}

// idle waits for the next trigger payload, servicing Query calls and
// cancellation in the meantime.
func (r *Runner) idle() (any, bool) {
	for {
		select {
		case p := <-r.triggerCh:
			return p, true
		case fn := <-r.queryCh:
			fn()
		case <-r.ctx.Done():
			return nil, false
		}
	}
}

// Trigger schedules an immediate iteration with payload, coalescing with any
// trigger still pending (the latest payload wins, as in the Python
// implementation's single-slot asyncio.Future).
func (r *Runner) Trigger(payload any) {
	select {
	case r.triggerCh <- payload:
		return
	default:
	}
	select {
	case <-r.triggerCh:
	default:
	}
	select {
	case r.triggerCh <- payload:
	default:
	}
}

// Reschedule arranges a Trigger(payload) after delay. A Runner stopped
// before the timer fires never sees the trigger.
func (r *Runner) Reschedule(delay time.Duration, payload any) {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(delay, func() { r.Trigger(payload) })
}

// Cancel stops the Runner. Any in-flight Work observes ctx cancellation;
// a paused Runner is released so cancellation can take effect.
func (r *Runner) Cancel() {
	r.cancel()
	r.Resume()
	r.timerMu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timerMu.Unlock()
}

// TryPause blocks up to timeout for the Runner to reach its idle state
// (between Work calls) and, on success, prevents the next iteration from
// starting until Resume is called. A non-positive timeout polls once
// without blocking.
func (r *Runner) TryPause(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-r.sem:
			r.paused.Store(true)
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-r.sem:
		r.paused.Store(true)
		return true
	case <-t.C:
		return false
	}
}

// Resume releases a Runner previously paused with TryPause. A no-op if the
// Runner is not currently paused.
func (r *Runner) Resume() {
	if r.paused.CompareAndSwap(true, false) {
		select {
		case r.sem <- struct{}{}:
		default:
		}
	}
}

// Query runs fn on the Runner's own goroutine and waits for it to return,
// giving race-free access to state the Runner mutates only from Work. It
// must not be called from within fn's own Runner's Work function.
func (r *Runner) Query(fn func()) {
	doneCh := make(chan struct{})
	wrapped := func() {
		fn()
		close(doneCh)
	}
	select {
	case r.queryCh <- wrapped:
	case <-r.ctx.Done():
		return
	}
	select {
	case <-doneCh:
	case <-r.ctx.Done():
	}
}

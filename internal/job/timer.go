// Package job provides a repeating job timer with a single-flight guard.
//
// A Timer runs a named piece of work immediately when started and then on a
// fixed interval until stopped. Work can also be triggered explicitly, which
// bypasses the interval clock. Both paths share the same in-flight flag, so at
// most one execution of the work runs at any time per Timer.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidInterval is returned by Start when the interval is not positive
var ErrInvalidInterval = errors.New("job interval must be positive")

// ErrNilWork is returned by Start when no work function is given
var ErrNilWork = errors.New("job work function is required")

// WorkFunc is the unit of work executed by a Timer
type WorkFunc[D any] func(ctx context.Context, data D) error

// ErrorHandler receives every error returned (or panic raised) by the work.
// It runs after the in-flight flag has been released, so it may call Stop.
type ErrorHandler func(err error)

// PanicError is the error surfaced when the work function panics
type PanicError struct {
	Job   string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job %q panicked: %v", e.Job, e.Value)
}

// Option configures a Timer
type Option func(*options)

type options struct {
	onError ErrorHandler
	jitter  time.Duration
}

// WithErrorHandler sets the handler invoked for failed executions
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		o.onError = h
	}
}

// WithJitter applies a random offset in [-jitter, +jitter] to every interval.
// The resulting delay never drops below half of the configured interval.
func WithJitter(jitter time.Duration) Option {
	return func(o *options) {
		if jitter > 0 {
			o.jitter = jitter
		}
	}
}

// afterFunc returns a channel that fires once after d, and a stop function
type afterFunc func(d time.Duration) (<-chan time.Time, func() bool)

func realAfter(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// Timer runs a job on an interval with a single-flight guard
type Timer[D any] struct {
	name string
	opts options

	inFlight atomic.Bool
	loops    atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	work   WorkFunc[D]

	after afterFunc
}

// New creates a stopped Timer for the named job
func New[D any](name string, opts ...Option) *Timer[D] {
	t := &Timer[D]{
		name:  name,
		after: realAfter,
	}
	for _, opt := range opts {
		opt(&t.opts)
	}
	return t
}

// Name returns the job name
func (t *Timer[D]) Name() string {
	return t.name
}

// Start runs work(initialData) immediately and then every interval until Stop
// is called. Calling Start on a running Timer replaces the previous schedule.
//
// The work receives ctx, not the schedule's internal context: stopping the
// timer prevents further runs but lets a run that already started finish.
func (t *Timer[D]) Start(ctx context.Context, interval time.Duration, work WorkFunc[D], initialData D) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	if work == nil {
		return ErrNilWork
	}

	loopCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.cancel != nil {
		slog.Debug("Replacing running job schedule", "job", t.name)
		t.cancel()
	}
	t.cancel = cancel
	t.work = work
	t.mu.Unlock()

	t.loops.Add(1)
	go t.loop(ctx, loopCtx, interval, work, initialData)

	return nil
}

// Trigger runs the work once with data, bypassing the interval clock.
// It returns false without running anything when the timer is not started or
// when an execution is already in flight.
func (t *Timer[D]) Trigger(ctx context.Context, data D) bool {
	t.mu.Lock()
	work := t.work
	t.mu.Unlock()

	if work == nil {
		return false
	}
	return t.execute(ctx, work, data)
}

// Stop cancels the scheduled repeats. It is safe to call at any time and more
// than once. An execution already in flight is not interrupted.
func (t *Timer[D]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel == nil {
		return
	}
	t.cancel()
	t.cancel = nil
	t.work = nil
}

// Running reports whether a schedule is active
func (t *Timer[D]) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// InFlight reports whether the work is executing right now
func (t *Timer[D]) InFlight() bool {
	return t.inFlight.Load()
}

func (t *Timer[D]) loop(workCtx, loopCtx context.Context, interval time.Duration, work WorkFunc[D], data D) {
	defer t.loops.Add(-1)

	// Replaced or stopped before the goroutine got scheduled
	if loopCtx.Err() != nil {
		return
	}
	t.execute(workCtx, work, data)

	for {
		fire, stop := t.after(t.nextInterval(interval))
		select {
		case <-loopCtx.Done():
			stop()
			return
		case <-fire:
		}

		// Both channels may be ready; a cancelled schedule never runs again
		if loopCtx.Err() != nil {
			return
		}

		if !t.execute(workCtx, work, data) {
			slog.Debug("Skipping tick, previous run still in flight", "job", t.name)
		}
	}
}

// execute runs the work under the single-flight guard
func (t *Timer[D]) execute(ctx context.Context, work WorkFunc[D], data D) bool {
	if !t.inFlight.CompareAndSwap(false, true) {
		return false
	}

	err := t.run(ctx, work, data)
	t.inFlight.Store(false)

	if err != nil {
		if t.opts.onError != nil {
			t.opts.onError(err)
		} else {
			slog.Warn("Job execution failed", "job", t.name, "error", err)
		}
	}
	return true
}

func (t *Timer[D]) run(ctx context.Context, work WorkFunc[D], data D) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Job: t.name, Value: r}
		}
	}()
	return work(ctx, data)
}

func (t *Timer[D]) nextInterval(interval time.Duration) time.Duration {
	if t.opts.jitter <= 0 {
		return interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	offset := time.Duration(rand.Int64N(int64(2*t.opts.jitter))) - t.opts.jitter
	next := interval + offset
	if next < interval/2 {
		return interval / 2
	}
	return next
}

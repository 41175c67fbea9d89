package job

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testInterval = time.Minute
	waitTimeout  = 2 * time.Second
	pollInterval = 5 * time.Millisecond
)

// newManualTimer returns a timer whose ticks are fired by sending on the
// returned channel. A send only completes once a loop is waiting for a tick.
func newManualTimer[D any](opts ...Option) (*Timer[D], chan time.Time) {
	ticks := make(chan time.Time)
	timer := New[D]("test-job", opts...)
	timer.after = func(time.Duration) (<-chan time.Time, func() bool) {
		return ticks, func() bool { return true }
	}
	return timer, ticks
}

func sendTick(t *testing.T, ticks chan time.Time) {
	t.Helper()
	select {
	case ticks <- time.Now():
	case <-time.After(waitTimeout):
		t.Fatal("no loop waiting for a tick")
	}
}

func assertNoLoopWaiting(t *testing.T, ticks chan time.Time) {
	t.Helper()
	select {
	case ticks <- time.Now():
		t.Fatal("a stopped timer accepted a tick")
	case <-time.After(50 * time.Millisecond):
	}
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) work(_ context.Context, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, data)
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestTimer_Start_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval time.Duration
		work     WorkFunc[string]
		expected error
	}{
		{
			name:     "zero interval",
			interval: 0,
			work:     func(context.Context, string) error { return nil },
			expected: ErrInvalidInterval,
		},
		{
			name:     "negative interval",
			interval: -time.Second,
			work:     func(context.Context, string) error { return nil },
			expected: ErrInvalidInterval,
		},
		{
			name:     "nil work",
			interval: time.Second,
			work:     nil,
			expected: ErrNilWork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			timer := New[string]("validation")
			err := timer.Start(context.Background(), tt.interval, tt.work, "")
			assert.ErrorIs(t, err, tt.expected)
			assert.False(t, timer.Running())
		})
	}
}

func TestTimer_Start_RunsImmediatelyThenOnEveryTick(t *testing.T) {
	t.Parallel()

	timer, ticks := newManualTimer[string]()
	rec := &recorder{}

	require.NoError(t, timer.Start(context.Background(), testInterval, rec.work, "initial"))
	defer timer.Stop()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, waitTimeout, pollInterval)

	sendTick(t, ticks)
	sendTick(t, ticks)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, waitTimeout, pollInterval)

	assert.Equal(t, []string{"initial", "initial", "initial"}, rec.snapshot())
	assert.Equal(t, "test-job", timer.Name())
	assert.True(t, timer.Running())
}

func TestTimer_Trigger_NoopWhileInFlight(t *testing.T) {
	t.Parallel()

	timer, _ := newManualTimer[int]()

	var running, maxRunning, calls atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	work := func(_ context.Context, _ int) error {
		n := running.Add(1)
		defer running.Add(-1)
		calls.Add(1)
		for {
			current := maxRunning.Load()
			if n <= current || maxRunning.CompareAndSwap(current, n) {
				break
			}
		}
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}

	require.NoError(t, timer.Start(context.Background(), testInterval, work, 0))
	defer timer.Stop()

	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("initial run did not start")
	}
	require.True(t, timer.InFlight())

	// Every concurrent trigger must be rejected while the initial run blocks
	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if timer.Trigger(context.Background(), i) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), accepted.Load())
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	require.Eventually(t, func() bool { return !timer.InFlight() }, waitTimeout, pollInterval)

	// Once idle a trigger runs again
	assert.True(t, timer.Trigger(context.Background(), 42))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestTimer_Trigger_NotStarted(t *testing.T) {
	t.Parallel()

	timer := New[string]("idle")
	assert.False(t, timer.Trigger(context.Background(), "data"))
}

func TestTimer_Trigger_UsesTriggerData(t *testing.T) {
	t.Parallel()

	timer, _ := newManualTimer[string]()
	rec := &recorder{}

	require.NoError(t, timer.Start(context.Background(), testInterval, rec.work, "initial"))
	defer timer.Stop()
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 && !timer.InFlight() }, waitTimeout, pollInterval)

	require.True(t, timer.Trigger(context.Background(), "manual"))
	assert.Equal(t, []string{"initial", "manual"}, rec.snapshot())
}

func TestTimer_Stop(t *testing.T) {
	t.Parallel()

	t.Run("idempotent before start", func(t *testing.T) {
		t.Parallel()
		timer := New[string]("never-started")
		timer.Stop()
		timer.Stop()
		assert.False(t, timer.Running())
	})

	t.Run("cancels scheduled repeats", func(t *testing.T) {
		t.Parallel()

		timer, ticks := newManualTimer[string]()
		rec := &recorder{}
		require.NoError(t, timer.Start(context.Background(), testInterval, rec.work, "x"))
		require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, waitTimeout, pollInterval)

		timer.Stop()
		timer.Stop()

		require.Eventually(t, func() bool { return timer.loops.Load() == 0 }, waitTimeout, pollInterval)
		assertNoLoopWaiting(t, ticks)
		assert.False(t, timer.Running())
		assert.False(t, timer.Trigger(context.Background(), "after-stop"))
		assert.Len(t, rec.snapshot(), 1)
	})
}

func TestTimer_Start_ReplacesSchedule(t *testing.T) {
	t.Parallel()

	timer, ticks := newManualTimer[string]()
	rec := &recorder{}

	require.NoError(t, timer.Start(context.Background(), testInterval, rec.work, "first"))
	require.NoError(t, timer.Start(context.Background(), testInterval, rec.work, "second"))
	defer timer.Stop()

	require.Eventually(t, func() bool { return timer.loops.Load() == 1 }, waitTimeout, pollInterval)

	for i := 0; i < 3; i++ {
		sendTick(t, ticks)
	}
	require.Eventually(t, func() bool { return !timer.InFlight() }, waitTimeout, pollInterval)

	calls := rec.snapshot()
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, []string{"second", "second", "second"}, calls[len(calls)-3:])
	assert.Equal(t, int32(1), timer.loops.Load())
}

func TestTimer_CancelledScheduleSkipsInitialRun(t *testing.T) {
	t.Parallel()

	timer, ticks := newManualTimer[string]()
	rec := &recorder{}

	loopCtx, cancel := context.WithCancel(context.Background())
	cancel()

	timer.loops.Add(1)
	timer.loop(context.Background(), loopCtx, testInterval, rec.work, "replaced")

	assert.Empty(t, rec.snapshot())
	assert.Equal(t, int32(0), timer.loops.Load())
	assertNoLoopWaiting(t, ticks)
}

func TestTimer_ErrorsDoNotEndLoop(t *testing.T) {
	t.Parallel()

	errCh := make(chan error, 4)
	timer, ticks := newManualTimer[string](WithErrorHandler(func(err error) {
		errCh <- err
	}))

	var calls atomic.Int32
	work := func(_ context.Context, _ string) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return errors.New("read failed")
	}

	require.NoError(t, timer.Start(context.Background(), testInterval, work, ""))
	defer timer.Stop()

	var panicErr *PanicError
	select {
	case err := <-errCh:
		require.ErrorAs(t, err, &panicErr)
		assert.Equal(t, "boom", panicErr.Value)
		assert.Equal(t, "test-job", panicErr.Job)
	case <-time.After(waitTimeout):
		t.Fatal("panic was not surfaced")
	}

	sendTick(t, ticks)
	select {
	case err := <-errCh:
		assert.EqualError(t, err, "read failed")
	case <-time.After(waitTimeout):
		t.Fatal("loop did not continue after panic")
	}
	assert.True(t, timer.Running())
}

func TestTimer_ErrorHandlerCanStop(t *testing.T) {
	t.Parallel()

	var timer *Timer[string]
	stopped := make(chan struct{})
	timer, ticks := newManualTimer[string](WithErrorHandler(func(error) {
		timer.Stop()
		close(stopped)
	}))

	work := func(context.Context, string) error { return errors.New("credentials gone") }
	require.NoError(t, timer.Start(context.Background(), testInterval, work, ""))

	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatal("error handler did not run")
	}

	require.Eventually(t, func() bool { return timer.loops.Load() == 0 }, waitTimeout, pollInterval)
	assert.False(t, timer.Running())
	assertNoLoopWaiting(t, ticks)
}

func TestTimer_NextInterval(t *testing.T) {
	t.Parallel()

	t.Run("no jitter", func(t *testing.T) {
		t.Parallel()
		timer := New[string]("plain")
		assert.Equal(t, 10*time.Second, timer.nextInterval(10*time.Second))
	})

	t.Run("jitter stays within bounds", func(t *testing.T) {
		t.Parallel()
		timer := New[string]("jittered", WithJitter(2*time.Second))
		for i := 0; i < 100; i++ {
			next := timer.nextInterval(10 * time.Second)
			assert.GreaterOrEqual(t, next, 8*time.Second)
			assert.Less(t, next, 12*time.Second)
		}
	})

	t.Run("jitter never halves the interval", func(t *testing.T) {
		t.Parallel()
		timer := New[string]("wide", WithJitter(time.Minute))
		for i := 0; i < 100; i++ {
			assert.GreaterOrEqual(t, timer.nextInterval(10*time.Second), 5*time.Second)
		}
	})
}

// Package worker implements the background sync workers.
//
// A Worker is an actor: one goroutine per tracked wallet, receiving commands
// on its inbox and publishing results on an outbox shared with the bridge.
// It owns exactly one job timer and resolves the identity it reads with on
// its own, before every sync.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-wallet-sync/internal/identity"
	"github.com/stacklok/toolhive-wallet-sync/internal/job"
	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/otel"
	"github.com/stacklok/toolhive-wallet-sync/internal/status"
	"github.com/stacklok/toolhive-wallet-sync/internal/telemetry"
)

const (
	// DefaultInterval is used when a start command carries no interval
	DefaultInterval = time.Minute

	// TracerName is the name used for the sync tracer
	TracerName = "github.com/stacklok/toolhive-wallet-sync/worker"

	inboxSize = 8
)

// ErrStopped is returned when sending to a worker that has exited
var ErrStopped = errors.New("worker stopped")

// Worker syncs one wallet of one family
type Worker struct {
	id     string
	target message.Target

	syncer Syncer
	loader identity.Loader
	timer  *job.Timer[message.Params]

	inbox  chan message.Command
	outbox chan<- message.Result
	done   chan struct{}
	// runCtx is the context of Run, set before any sync can start
	runCtx context.Context

	statusSvc status.Service
	metrics   *telemetry.SyncMetrics
	tracer    trace.Tracer
	jitter    time.Duration
	now       func() time.Time
}

// Option configures a Worker
type Option func(*Worker)

// WithStatusService records scheduler phases and sync outcomes in svc
func WithStatusService(svc status.Service) Option {
	return func(w *Worker) {
		w.statusSvc = svc
	}
}

// WithSyncMetrics sets the sync metrics of the worker
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(w *Worker) {
		w.metrics = metrics
	}
}

// WithTracer sets the tracer used for sync spans
func WithTracer(tracer trace.Tracer) Option {
	return func(w *Worker) {
		w.tracer = tracer
	}
}

// WithJitter randomizes the polling interval by up to jitter
func WithJitter(jitter time.Duration) Option {
	return func(w *Worker) {
		w.jitter = jitter
	}
}

// New creates a worker for target. Results are published on outbox.
// The worker does nothing until Run is called.
func New(
	target message.Target,
	syncer Syncer,
	loader identity.Loader,
	outbox chan<- message.Result,
	opts ...Option,
) *Worker {
	w := &Worker{
		id:     uuid.NewString(),
		target: target,
		syncer: syncer,
		loader: loader,
		inbox:  make(chan message.Command, inboxSize),
		outbox: outbox,
		done:   make(chan struct{}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.timer = job.New[message.Params](
		"sync-"+target.String(),
		job.WithErrorHandler(w.handleJobError),
		job.WithJitter(w.jitter),
	)
	return w
}

// ID returns the unique id of this worker instance
func (w *Worker) ID() string {
	return w.id
}

// Target returns the wallet the worker syncs
func (w *Worker) Target() message.Target {
	return w.target
}

// Scheduled reports whether the worker's timer is ticking
func (w *Worker) Scheduled() bool {
	return w.timer.Running()
}

// Done is closed when the command loop has exited
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Send delivers cmd to the worker's inbox
func (w *Worker) Send(ctx context.Context, cmd message.Command) error {
	if !cmd.Tag.IsCommand() {
		return fmt.Errorf("tag %q is not a command", string(cmd.Tag))
	}
	select {
	case <-w.done:
		return ErrStopped
	default:
	}

	select {
	case w.inbox <- cmd:
		return nil
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the command loop. It returns after a stop command or when ctx is
// cancelled; either way the timer is stopped.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	w.runCtx = ctx
	logger := slog.With("family", w.target.Family, "wallet", w.target.Wallet, "worker_id", w.id)
	logger.Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.shutdown(context.WithoutCancel(ctx), "Worker context cancelled")
			return
		case cmd := <-w.inbox:
			switch cmd.Tag {
			case message.TagStart:
				w.start(ctx, cmd)
			case message.TagTrigger:
				// The sync may take a while; keep the inbox responsive
				go w.trigger(ctx, cmd.Params)
			case message.TagStop:
				w.shutdown(ctx, "Stopped")
				logger.Debug("Worker stopped")
				return
			default:
				logger.Warn("Ignoring unexpected command", "tag", cmd.Tag)
			}
		}
	}
}

func (w *Worker) start(ctx context.Context, cmd message.Command) {
	interval := cmd.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	w.updateStatus(ctx, func(s *status.SchedulerStatus) {
		s.Phase = status.PhaseStarting
		s.Message = "Resolving identity"
		s.WorkerID = w.id
		s.SyncInterval = interval.String()
	})

	// Fail closed: without an identity nothing gets scheduled
	if _, err := w.loader.LoadIdentity(ctx); err != nil {
		w.fail(ctx, w.now(), &SyncError{Kind: message.ErrorKindCredential, Err: err})
		return
	}

	if err := w.timer.Start(ctx, interval, w.sync, cmd.Params); err != nil {
		w.fail(ctx, w.now(), &SyncError{Kind: message.ErrorKindInternal, Err: err})
		return
	}

	w.updateStatus(ctx, func(s *status.SchedulerStatus) {
		s.Phase = status.PhaseRunning
		s.Message = "Polling"
	})
	slog.Info("Wallet sync scheduled",
		"family", w.target.Family,
		"wallet", w.target.Wallet,
		"interval", interval)
}

func (w *Worker) trigger(ctx context.Context, params message.Params) {
	if !w.timer.Trigger(ctx, params) {
		w.metrics.RecordSkippedTrigger(ctx, string(w.target.Family), w.target.Wallet)
		slog.Debug("Trigger ignored, sync in flight or not scheduled",
			"family", w.target.Family,
			"wallet", w.target.Wallet)
	}
}

// sync is the timer's work: one full read of the wallet
func (w *Worker) sync(ctx context.Context, params message.Params) error {
	observedAt := w.now()

	ctx, span := otel.StartSpan(ctx, w.tracer, "worker.Sync",
		otel.WalletAttributes(string(w.target.Family), w.target.Wallet),
		trace.WithAttributes(
			otel.AttrWorkerID.String(w.id),
			otel.AttrNetwork.String(params.Network),
		),
	)
	defer span.End()

	// Credentials can disappear between runs
	ident, err := w.loader.LoadIdentity(ctx)
	if err != nil {
		syncErr := &SyncError{Kind: message.ErrorKindCredential, Err: err}
		otel.RecordError(span, syncErr)
		w.fail(ctx, observedAt, syncErr)
		return syncErr
	}

	err = w.syncer.Sync(ctx, ident, params, func(payload *message.WalletPayload) {
		w.publish(ctx, message.Result{
			Tag:        message.ResultTag(w.target.Family),
			Target:     w.target,
			WorkerID:   w.id,
			ObservedAt: observedAt,
			Payload:    payload,
		})
	})
	w.metrics.RecordSyncDuration(ctx, string(w.target.Family), w.target.Wallet, w.now().Sub(observedAt), err == nil)

	if err != nil {
		syncErr := asSyncError(err)
		otel.RecordError(span, syncErr)
		w.fail(ctx, observedAt, syncErr)
		return syncErr
	}

	now := w.now()
	w.updateStatus(ctx, func(s *status.SchedulerStatus) {
		s.RecordSuccess(now)
	})
	return nil
}

// fail publishes err and applies its consequences to the schedule
func (w *Worker) fail(ctx context.Context, observedAt time.Time, err *SyncError) {
	w.publish(ctx, message.Result{
		Tag:        message.ErrorTag(w.target.Family),
		Target:     w.target,
		WorkerID:   w.id,
		ObservedAt: observedAt,
		Err:        err.Payload(),
	})

	now := w.now()
	switch {
	case err.Fatal():
		w.timer.Stop()
		slog.Warn("Identity unavailable, wallet sync stopped",
			"family", w.target.Family,
			"wallet", w.target.Wallet,
			"error", err)
		w.updateStatus(ctx, func(s *status.SchedulerStatus) {
			s.RecordFailure(now, err.Error())
			if w.ownsStatus(s) {
				s.Phase = status.PhaseStopped
				s.Message = "Identity unavailable"
				s.WorkerID = ""
			}
		})
	case err.Kind == message.ErrorKindNoData:
		// An empty account is a successful read
		w.updateStatus(ctx, func(s *status.SchedulerStatus) {
			s.RecordSuccess(now)
		})
	default:
		w.updateStatus(ctx, func(s *status.SchedulerStatus) {
			s.RecordFailure(now, err.Error())
		})
	}
}

// handleJobError receives what the timer surfaced from sync. Sync failures
// are already published; only panics still need reporting.
func (w *Worker) handleJobError(err error) {
	var panicErr *job.PanicError
	if !errors.As(err, &panicErr) {
		return
	}
	slog.Error("Wallet sync panicked",
		"family", w.target.Family,
		"wallet", w.target.Wallet,
		"error", err)
	w.fail(w.runCtx, w.now(), &SyncError{Kind: message.ErrorKindInternal, Err: err})
}

// publish sends res to the bridge unless the worker is shutting down
func (w *Worker) publish(ctx context.Context, res message.Result) {
	select {
	case w.outbox <- res:
	case <-ctx.Done():
		slog.Debug("Dropping result, worker context done",
			"family", w.target.Family,
			"tag", res.Tag)
	}
}

func (w *Worker) shutdown(ctx context.Context, reason string) {
	w.timer.Stop()
	w.updateStatus(ctx, func(s *status.SchedulerStatus) {
		if !w.ownsStatus(s) {
			return
		}
		s.Phase = status.PhaseStopped
		s.Message = reason
		s.WorkerID = ""
	})
}

// ownsStatus reports whether s is not claimed by a newer worker
func (w *Worker) ownsStatus(s *status.SchedulerStatus) bool {
	return s.WorkerID == "" || s.WorkerID == w.id
}

func (w *Worker) updateStatus(ctx context.Context, fn func(s *status.SchedulerStatus)) {
	if w.statusSvc == nil {
		return
	}
	_, err := w.statusSvc.UpdateAtomically(ctx, w.target, func(s *status.SchedulerStatus) bool {
		fn(s)
		return true
	})
	if err != nil {
		slog.Warn("Failed to update scheduler status",
			"family", w.target.Family,
			"wallet", w.target.Wallet,
			"error", err)
	}
}

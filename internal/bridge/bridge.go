// Package bridge connects the application to its background sync workers.
//
// The bridge owns at most one live worker per tracked wallet. It talks to
// workers only through command messages and reads their results from a
// single shared channel, which one dispatch goroutine drains into the
// reconciliation stores. Results from workers that are no longer live are
// dropped, so a read that finishes after its wallet was stopped never
// reaches the stores.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/status"
	"github.com/stacklok/toolhive-wallet-sync/internal/telemetry"
	"github.com/stacklok/toolhive-wallet-sync/internal/wallet"
	"github.com/stacklok/toolhive-wallet-sync/internal/worker"
)

const resultsBuffer = 64

var (
	// ErrNotRunning is returned when commands are sent before Run
	ErrNotRunning = errors.New("bridge is not running")

	// ErrNotStarted is returned when triggering a wallet with no live worker
	ErrNotStarted = errors.New("wallet sync not started")
)

// Applier folds results into the reconciliation stores
type Applier interface {
	Apply(params message.Params, res message.Result) wallet.Decision
}

// WorkerFactory builds the worker of target, publishing on outbox
type WorkerFactory func(target message.Target, outbox chan<- message.Result) (*worker.Worker, error)

type handle struct {
	worker *worker.Worker
	params message.Params
}

// Bridge spawns, commands and discards workers
type Bridge struct {
	factory WorkerFactory
	applier Applier
	results chan message.Result

	statusSvc status.Service
	metrics   *telemetry.BridgeMetrics

	// applyMu is held while a result is matched to its worker and applied,
	// so once a handle is detached none of its results reach the stores
	applyMu sync.Mutex

	mu      sync.Mutex
	runCtx  context.Context
	ready   chan struct{}
	handles map[message.Target]*handle
}

// Option configures a Bridge
type Option func(*Bridge)

// WithStatusService records surfaced errors as alerts in svc
func WithStatusService(svc status.Service) Option {
	return func(b *Bridge) {
		b.statusSvc = svc
	}
}

// WithBridgeMetrics sets the bridge metrics
func WithBridgeMetrics(metrics *telemetry.BridgeMetrics) Option {
	return func(b *Bridge) {
		b.metrics = metrics
	}
}

// New creates a bridge. Nothing runs until Run is called.
func New(factory WorkerFactory, applier Applier, opts ...Option) *Bridge {
	b := &Bridge{
		factory: factory,
		applier: applier,
		results: make(chan message.Result, resultsBuffer),
		ready:   make(chan struct{}),
		handles: make(map[message.Target]*handle),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run dispatches worker results until ctx is cancelled, then stops every
// worker. Workers spawned by the bridge live in ctx.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.runCtx != nil {
		b.mu.Unlock()
		return errors.New("bridge is already running")
	}
	b.runCtx = ctx
	close(b.ready)
	b.mu.Unlock()

	slog.Info("Worker bridge started")
	for {
		select {
		case res := <-b.results:
			b.dispatch(ctx, res)
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			err := b.StopAll(stopCtx)
			slog.Info("Worker bridge stopped")
			return err
		}
	}
}

// Start spawns the worker of target if needed and (re)starts its schedule.
// Starting a live wallet replaces its schedule; it never adds a second one.
func (b *Bridge) Start(ctx context.Context, target message.Target, params message.Params, interval time.Duration) error {
	if err := target.Family.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.runCtx == nil {
		b.mu.Unlock()
		return ErrNotRunning
	}
	h, ok := b.handles[target]
	if !ok {
		w, err := b.factory(target, b.results)
		if err != nil {
			b.mu.Unlock()
			return fmt.Errorf("failed to create worker for %s: %w", target, err)
		}
		h = &handle{worker: w}
		b.handles[target] = h
		go w.Run(b.runCtx)
		b.metrics.RecordWorkerStarted(ctx, string(target.Family))
		slog.Debug("Spawned worker", "family", target.Family, "wallet", target.Wallet, "worker_id", w.ID())
	}
	h.params = params
	w := h.worker
	b.mu.Unlock()

	return w.Send(ctx, message.Command{
		Tag:      message.TagStart,
		Target:   target,
		Params:   params,
		Interval: interval,
	})
}

// Stop stops the worker of target and discards it. Stopping a wallet that
// is not running is a no-op.
func (b *Bridge) Stop(ctx context.Context, target message.Target) error {
	w := b.detach(target, "")
	if w == nil {
		return nil
	}
	return b.sendStop(ctx, w)
}

// Trigger asks the worker of target for an immediate sync
func (b *Bridge) Trigger(ctx context.Context, target message.Target) error {
	b.mu.Lock()
	h, ok := b.handles[target]
	var (
		w      *worker.Worker
		params message.Params
	)
	if ok {
		w, params = h.worker, h.params
	}
	b.mu.Unlock()

	if !ok {
		return ErrNotStarted
	}
	return w.Send(ctx, message.Command{Tag: message.TagTrigger, Target: target, Params: params})
}

// StopAll stops every worker and waits for them to exit, e.g. on logout
func (b *Bridge) StopAll(ctx context.Context) error {
	b.applyMu.Lock()
	b.mu.Lock()
	workers := make([]*worker.Worker, 0, len(b.handles))
	for target, h := range b.handles {
		workers = append(workers, h.worker)
		delete(b.handles, target)
	}
	b.mu.Unlock()
	b.applyMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			if err := b.sendStop(gctx, w); err != nil {
				return err
			}
			select {
			case <-w.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("worker %s did not stop: %w", w.Target(), gctx.Err())
			}
		})
	}
	return g.Wait()
}

// Ready is closed once Run accepts commands
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Running reports whether Run is dispatching results
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runCtx != nil && b.runCtx.Err() == nil
}

// Targets returns the wallets with a live worker
func (b *Bridge) Targets() []message.Target {
	b.mu.Lock()
	defer b.mu.Unlock()
	targets := make([]message.Target, 0, len(b.handles))
	for target := range b.handles {
		targets = append(targets, target)
	}
	return targets
}

// WorkerID returns the id of the live worker of target
func (b *Bridge) WorkerID(target message.Target) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.handles[target]
	if !ok {
		return "", false
	}
	return h.worker.ID(), true
}

// detach removes the handle of target. When workerID is not empty the
// handle is only removed if it still belongs to that worker. It waits for
// a result being applied to finish.
func (b *Bridge) detach(target message.Target, workerID string) *worker.Worker {
	b.applyMu.Lock()
	defer b.applyMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.handles[target]
	if !ok || (workerID != "" && h.worker.ID() != workerID) {
		return nil
	}
	delete(b.handles, target)
	return h.worker
}

func (b *Bridge) sendStop(ctx context.Context, w *worker.Worker) error {
	b.metrics.RecordWorkerStopped(ctx, string(w.Target().Family))
	err := w.Send(ctx, message.Command{Tag: message.TagStop, Target: w.Target()})
	if errors.Is(err, worker.ErrStopped) {
		return nil
	}
	return err
}

// lookup returns the params of the live worker that produced res
func (b *Bridge) lookup(res message.Result) (message.Params, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.handles[res.Target]
	if !ok || h.worker.ID() != res.WorkerID {
		return message.Params{}, false
	}
	return h.params, true
}

// applyLive applies res when the worker that produced it is still live
func (b *Bridge) applyLive(res message.Result) (wallet.Decision, bool) {
	b.applyMu.Lock()
	defer b.applyMu.Unlock()
	params, live := b.lookup(res)
	if !live {
		return wallet.Decision{}, false
	}
	return b.applier.Apply(params, res), true
}

func (b *Bridge) dispatch(ctx context.Context, res message.Result) {
	family := string(res.Target.Family)
	if err := res.Validate(); err != nil {
		b.metrics.RecordDropped(ctx, family, telemetry.DropReasonInvalid)
		slog.Warn("Dropping invalid worker result", "tag", res.Tag, "error", err)
		return
	}

	if res.Tag.IsCommand() {
		b.metrics.RecordDropped(ctx, family, telemetry.DropReasonInvalid)
		slog.Warn("Dropping command tag received as result", "tag", res.Tag)
		return
	}

	decision, live := b.applyLive(res)
	if !live {
		b.metrics.RecordDropped(ctx, family, telemetry.DropReasonStale)
		slog.Debug("Dropping result from stopped worker",
			"family", res.Target.Family,
			"wallet", res.Target.Wallet,
			"worker_id", res.WorkerID)
		return
	}

	switch res.Tag {
	case message.TagSyncBtcWallet, message.TagSyncEthWallet, message.TagSyncIcrcWallet,
		message.TagSyncCkMinterInfo, message.TagSyncSolWallet:
		b.metrics.RecordResult(ctx, family, string(res.Tag), payloadCertified(res.Payload))
		if !decision.Applied {
			b.metrics.RecordDropped(ctx, family, telemetry.DropReasonRejected)
		}

	case message.TagSyncBtcWalletError, message.TagSyncEthWalletError, message.TagSyncIcrcWalletError,
		message.TagSyncCkMinterInfoError, message.TagSyncSolWalletError:
		b.metrics.RecordResult(ctx, family, string(res.Tag), res.Err.Certified)
		if decision.Surface {
			b.raiseAlert(ctx, res)
		}
		if res.Err.Fatal {
			if w := b.detach(res.Target, res.WorkerID); w != nil {
				slog.Info("Stopping wallet sync after fatal error",
					"family", res.Target.Family,
					"wallet", res.Target.Wallet)
				// The worker may be blocked publishing to us; stop it asynchronously
				go func() {
					if err := b.sendStop(ctx, w); err != nil {
						slog.Warn("Failed to stop worker", "worker_id", w.ID(), "error", err)
					}
				}()
			}
		}

	case message.TagStart, message.TagStop, message.TagTrigger:
		// dropped before applying
	}
}

func (b *Bridge) raiseAlert(ctx context.Context, res message.Result) {
	if b.statusSvc == nil {
		return
	}
	_, err := b.statusSvc.UpdateAtomically(ctx, res.Target, func(s *status.SchedulerStatus) bool {
		s.Alert = res.Err.Message
		return true
	})
	if err != nil {
		slog.Warn("Failed to record alert", "family", res.Target.Family, "wallet", res.Target.Wallet, "error", err)
	}
}

func payloadCertified(p *message.WalletPayload) bool {
	switch {
	case p.Balance != nil:
		return p.Balance.Certified
	case p.MinterInfo != nil:
		return p.MinterInfo.Certified
	case p.Pending != nil:
		return p.Pending.Certified
	case p.Transactions != nil:
		return p.Transactions.Certified
	default:
		return false
	}
}

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/toolhive-wallet-sync/sync"

	// BridgeMetricsMeterName is the name used for the bridge metrics meter
	BridgeMetricsMeterName = "github.com/stacklok/toolhive-wallet-sync/bridge"
)

// Reasons a result is dropped by the bridge
const (
	DropReasonStale    = "stale_worker"
	DropReasonInvalid  = "invalid"
	DropReasonRejected = "rejected"
)

// SyncMetrics holds the OpenTelemetry instruments for worker sync reads
type SyncMetrics struct {
	syncDuration metric.Float64Histogram
	skippedRuns  metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"wallet_sync_duration_seconds",
		metric.WithDescription("Duration of wallet sync reads in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	skippedRuns, err := meter.Int64Counter(
		"wallet_sync_skipped_triggers_total",
		metric.WithDescription("Triggers ignored because a sync was already in flight"),
		metric.WithUnit("{trigger}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration: syncDuration,
		skippedRuns:  skippedRuns,
	}, nil
}

// RecordSyncDuration records the duration of one sync of a wallet
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, family, wallet string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("family", family),
		attribute.String("wallet", wallet),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSkippedTrigger counts a trigger that found a sync in flight
func (m *SyncMetrics) RecordSkippedTrigger(ctx context.Context, family, wallet string) {
	if m == nil || m.skippedRuns == nil {
		return
	}

	m.skippedRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("family", family),
		attribute.String("wallet", wallet),
	))
}

// BridgeMetrics holds the OpenTelemetry instruments for the worker bridge
type BridgeMetrics struct {
	activeWorkers  metric.Int64UpDownCounter
	resultsTotal   metric.Int64Counter
	droppedResults metric.Int64Counter
}

// NewBridgeMetrics creates a new BridgeMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewBridgeMetrics(provider metric.MeterProvider) (*BridgeMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(BridgeMetricsMeterName)

	activeWorkers, err := meter.Int64UpDownCounter(
		"wallet_sync_active_workers",
		metric.WithDescription("Number of live background sync workers"),
		metric.WithUnit("{worker}"),
	)
	if err != nil {
		return nil, err
	}

	resultsTotal, err := meter.Int64Counter(
		"wallet_sync_results_total",
		metric.WithDescription("Worker results applied to the reconciliation stores"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	droppedResults, err := meter.Int64Counter(
		"wallet_sync_dropped_results_total",
		metric.WithDescription("Worker results dropped without being applied"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	return &BridgeMetrics{
		activeWorkers:  activeWorkers,
		resultsTotal:   resultsTotal,
		droppedResults: droppedResults,
	}, nil
}

// RecordWorkerStarted counts a spawned worker
func (m *BridgeMetrics) RecordWorkerStarted(ctx context.Context, family string) {
	if m == nil || m.activeWorkers == nil {
		return
	}
	m.activeWorkers.Add(ctx, 1, metric.WithAttributes(attribute.String("family", family)))
}

// RecordWorkerStopped counts a discarded worker
func (m *BridgeMetrics) RecordWorkerStopped(ctx context.Context, family string) {
	if m == nil || m.activeWorkers == nil {
		return
	}
	m.activeWorkers.Add(ctx, -1, metric.WithAttributes(attribute.String("family", family)))
}

// RecordResult counts an applied result. tag is the message tag.
func (m *BridgeMetrics) RecordResult(ctx context.Context, family, tag string, certified bool) {
	if m == nil || m.resultsTotal == nil {
		return
	}
	m.resultsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("family", family),
		attribute.String("tag", tag),
		attribute.Bool("certified", certified),
	))
}

// RecordDropped counts a dropped result
func (m *BridgeMetrics) RecordDropped(ctx context.Context, family, reason string) {
	if m == nil || m.droppedResults == nil {
		return
	}
	m.droppedResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("family", family),
		attribute.String("reason", reason),
	))
}

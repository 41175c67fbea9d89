package inmemory

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-wallet-sync/internal/otel"
)

// ServiceTracerName is the name used for the wallet service tracer
const ServiceTracerName = "github.com/stacklok/toolhive-wallet-sync/service/inmemory"

// startSpan starts a span for a service operation, a no-op span without a tracer
func (s *walletSvc) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, s.tracer, name, opts...)
}

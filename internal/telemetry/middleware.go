package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsMeterName is the meter the API server's request metrics live under
const HTTPMetricsMeterName = "github.com/stacklok/toolhive-wallet-sync/http"

// unknownRoute labels requests that matched no chi route, e.g. 404s
const unknownRoute = "unknown_route"

type httpInstruments struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	var (
		in  httpInstruments
		err error
	)
	if in.duration, err = meter.Float64Histogram(
		"wallet_sync_http_request_duration_seconds",
		metric.WithDescription("Time spent serving API requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return nil, err
	}
	if in.total, err = meter.Int64Counter(
		"wallet_sync_http_requests_total",
		metric.WithDescription("API requests served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if in.inFlight, err = meter.Int64UpDownCounter(
		"wallet_sync_http_active_requests",
		metric.WithDescription("API requests being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *httpInstruments) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		in.inFlight.Add(ctx, 1)
		defer in.inFlight.Add(ctx, -1)
		next.ServeHTTP(ww, r)

		// Route patterns keep one series per endpoint instead of one per token or address
		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", routePattern(r)),
			attribute.String("status_code", strconv.Itoa(ww.Status())),
		)
		in.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		in.total.Add(ctx, 1, attrs)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unknownRoute
}

// MetricsMiddleware records request count, latency and in-flight requests per
// chi route. A nil provider gives a pass-through middleware.
func MetricsMiddleware(provider metric.MeterProvider) (func(http.Handler) http.Handler, error) {
	if provider == nil {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	in, err := newHTTPInstruments(provider.Meter(HTTPMetricsMeterName))
	if err != nil {
		return nil, err
	}
	return in.wrap, nil
}

// Package otel provides OpenTelemetry span helpers shared by the sync workers,
// the bridge and the ledger client.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for wallet sync spans
const (
	AttrFamily    = attribute.Key("wallet.family")
	AttrWallet    = attribute.Key("wallet.name")
	AttrNetwork   = attribute.Key("wallet.network")
	AttrToken     = attribute.Key("wallet.token")
	AttrWorkerID  = attribute.Key("worker.id")
	AttrMode      = attribute.Key("ledger.mode")
	AttrResource  = attribute.Key("ledger.resource")
	AttrCertified = attribute.Key("ledger.certified")
	AttrTxCount   = attribute.Key("result.count")
	AttrHasCursor = attribute.Key("pagination.has_cursor")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// WalletAttributes identifies the wallet a span works on
func WalletAttributes(family, wallet string) trace.SpanStartEventOption {
	return trace.WithAttributes(AttrFamily.String(family), AttrWallet.String(wallet))
}

// RecordError records err on span and marks the span failed.
// The status description stays generic so tokens or addresses in ledger
// errors never land in the span status; the event keeps the details.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

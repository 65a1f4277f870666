package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/prudhvinik1/syncengine"

// StartServiceSpan starts an internal span named "<service>.<operation>".
func StartServiceSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("service.component", service),
		attribute.String("service.operation", operation),
	)
	return otel.Tracer(instrumentationName).Start(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// SyncMetrics holds the push and pull counters.
type SyncMetrics struct {
	pushAccepted  metric.Int64Counter
	pushConflicts metric.Int64Counter
	pushRejected  metric.Int64Counter
	pullEvents    metric.Int64Counter
}

// NewSyncMetrics creates the sync instruments on the given provider. Pass
// otel.GetMeterProvider() to record on the global one.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	meter := provider.Meter(instrumentationName)

	pushAccepted, err := meter.Int64Counter(
		"edgesync.push.accepted",
		metric.WithDescription("Number of pushed events accepted into the sync log"),
		metric.WithUnit("{events}"),
	)
	if err != nil {
		return nil, err
	}

	pushConflicts, err := meter.Int64Counter(
		"edgesync.push.conflicts",
		metric.WithDescription("Number of pushed events rejected as version conflicts"),
		metric.WithUnit("{events}"),
	)
	if err != nil {
		return nil, err
	}

	pushRejected, err := meter.Int64Counter(
		"edgesync.push.rejected",
		metric.WithDescription("Number of pushed events that failed validation"),
		metric.WithUnit("{events}"),
	)
	if err != nil {
		return nil, err
	}

	pullEvents, err := meter.Int64Counter(
		"edgesync.pull.events",
		metric.WithDescription("Number of events delivered by pulls"),
		metric.WithUnit("{events}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		pushAccepted:  pushAccepted,
		pushConflicts: pushConflicts,
		pushRejected:  pushRejected,
		pullEvents:    pullEvents,
	}, nil
}

// RecordPush adds the outcome of one push batch. A nil receiver is a no-op.
func (m *SyncMetrics) RecordPush(ctx context.Context, accepted, conflicts, rejected int) {
	if m == nil {
		return
	}
	m.pushAccepted.Add(ctx, int64(accepted))
	m.pushConflicts.Add(ctx, int64(conflicts))
	m.pushRejected.Add(ctx, int64(rejected))
}

// RecordPull adds the number of events one pull delivered.
func (m *SyncMetrics) RecordPull(ctx context.Context, events int) {
	if m == nil {
		return
	}
	m.pullEvents.Add(ctx, int64(events))
}

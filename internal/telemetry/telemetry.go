// Package telemetry holds the small OpenTelemetry helpers shared by the
// sync engine and the HTTP API. Without a configured SDK the global
// providers are no-ops, so instrumentation costs nothing by default.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dmitrijs2005/geocapsule"

// StartSpan starts a span on the project tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Counter returns a named counter on the project meter. Instrument creation
// only fails on invalid names, in which case a no-op counter is returned.
func Counter(name, description string) metric.Int64Counter {
	c, err := otel.Meter(instrumentationName).Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
		c, _ = noopMeter().Int64Counter(name)
	}
	return c
}

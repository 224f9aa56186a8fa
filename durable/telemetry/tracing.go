package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer so an Executor can record one span
// per reported event (the same step-retry and invocation-outcome events a
// Logger receives), the durable-execution analogue of the teacher's
// emit.OTelEmitter: each event becomes a point-in-time span rather than a
// log line, letting a trace backend correlate retries and suspensions
// across invocations of the same execution.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps tracer, typically obtained via otel.Tracer("durable").
func NewTracer(tracer trace.Tracer) *Tracer {
	return &Tracer{tracer: tracer}
}

// Span starts and immediately ends a span named msg, tagging it with arn and
// fields as attributes. Matches OTelEmitter.Emit's "point in time, not a
// duration" model: durable's events are already complete by the time they're
// reported, so there is nothing to keep the span open for.
func (t *Tracer) Span(ctx context.Context, arn, msg string, fields ...Field) {
	if t == nil || t.tracer == nil {
		return
	}
	_, span := t.tracer.Start(ctx, msg)
	defer span.End()

	attrs := make([]attribute.KeyValue, 0, len(fields)+1)
	attrs = append(attrs, attribute.String("durable.arn", arn))
	for _, f := range fields {
		attrs = append(attrs, attributeFor(f))
	}
	span.SetAttributes(attrs...)

	for _, f := range fields {
		if f.Key == "error" {
			if msg, ok := f.Value.(string); ok {
				span.SetStatus(codes.Error, msg)
			}
		}
	}
}

func attributeFor(f Field) attribute.KeyValue {
	switch v := f.Value.(type) {
	case string:
		return attribute.String(f.Key, v)
	case int:
		return attribute.Int(f.Key, v)
	case int64:
		return attribute.Int64(f.Key, v)
	case float64:
		return attribute.Float64(f.Key, v)
	case bool:
		return attribute.Bool(f.Key, v)
	default:
		return attribute.String(f.Key, toString(v))
	}
}

func toString(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}

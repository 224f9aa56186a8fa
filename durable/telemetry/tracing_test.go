package telemetry_test

import (
	"context"
	"testing"

	"github.com/elipena/durable/telemetry"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"github.com/stretchr/testify/require"
)

func TestTracer_RecordsOneSpanPerEvent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	tracer := telemetry.NewTracer(tp.Tracer("durable-test"))
	tracer.Span(context.Background(), "arn-1", "step_retry", telemetry.F("step", "charge"), telemetry.F("attempt", 2))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "step_retry", spans[0].Name())
}

func TestTracer_NilSafe(t *testing.T) {
	var tracer *telemetry.Tracer
	require.NotPanics(t, func() {
		tracer.Span(context.Background(), "arn", "msg")
	})
}

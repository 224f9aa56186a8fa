package durable

import (
	"github.com/elipena/durable/codec"
	"github.com/elipena/durable/telemetry"
)

// Option configures an Executor at construction time (§6). Options are
// applied in order and may return an error to reject invalid configuration,
// mirroring the teacher's own functional-options validation pattern.
type Option func(*Executor) error

// WithClient sets the CheckpointClient the Executor drives every
// checkpoint through. Required.
func WithClient(c Client) Option {
	return func(e *Executor) error {
		if c == nil {
			return ErrNilClient
		}
		e.client = c
		return nil
	}
}

// WithCodec overrides the default JSON codec stored on the Executor. The
// runtime does not encode or decode any payload with it: Step results, Invoke
// payloads and the top-level input and output are passed through as the
// strings the handler, thunks and targets produce.
func WithCodec(c codec.Codec) Option {
	return func(e *Executor) error {
		if c == nil {
			return ErrNilCodec
		}
		e.codec = c
		return nil
	}
}

// WithDefaultRetry overrides the retry policy Step calls use when they
// don't specify their own via WithRetry.
func WithDefaultRetry(p RetryPolicy) Option {
	return func(e *Executor) error {
		e.defaultRetry = p
		return nil
	}
}

// WithMaxConcurrentSteps bounds how many Step thunks may run at once across
// the whole invocation; Invoke targets are not counted against it. n <= 0
// means unbounded.
func WithMaxConcurrentSteps(n int) Option {
	return func(e *Executor) error {
		if n <= 0 {
			e.workers = nil
			return nil
		}
		e.workers = make(chan struct{}, n)
		return nil
	}
}

// WithLogger sets the structured logger Executor reports step retries and
// invocation outcomes through. Defaults to a no-op.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Executor) error {
		e.logger = l
		return nil
	}
}

// WithMetrics sets the Prometheus metrics collector Executor reports
// invocation outcomes and retries through. Defaults to nil (disabled).
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Executor) error {
		e.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer Executor reports the same events
// as WithLogger through as spans, alongside (not instead of) WithLogger.
// Defaults to nil (disabled).
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Executor) error {
		e.tracer = t
		return nil
	}
}

// WithVerboseReplayLogging disables suppression of Logger/Tracer events
// produced while an invocation is still replaying against its seeded log.
// Off by default, since a replay re-walks every call site the log already
// knows the outcome of and logging each one on every invocation would drown
// the live tail in noise.
func WithVerboseReplayLogging(v bool) Option {
	return func(e *Executor) error {
		e.verboseReplayLogging = v
		return nil
	}
}

// WithInvokeTarget registers a named remote function reachable from any
// Context's Invoke call within executions run by this Executor.
func WithInvokeTarget(name string, fn InvokeFunc) Option {
	return func(e *Executor) error {
		if e.invokeTargets == nil {
			e.invokeTargets = make(map[string]InvokeFunc)
		}
		e.invokeTargets[name] = fn
		return nil
	}
}

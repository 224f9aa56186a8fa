package durable

import (
	"context"
	"time"

	"github.com/elipena/durable/codec"
	"github.com/elipena/durable/telemetry"
)

// Handler is the durable function itself: ordinary, imperative Go that
// happens to be re-run on every invocation against a persisted log. input
// and the returned result are payloads already encoded by the Executor's
// Codec; decode/re-encode at the handler's boundary with it.
type Handler func(ctx *Context, input string) (result string, err error)

// Outcome is the final disposition of one Execute call (C9).
type Outcome string

const (
	// OutcomeSucceeded means the EXECUTION record reached SUCCEEDED.
	OutcomeSucceeded Outcome = "SUCCEEDED"
	// OutcomeFailed means the EXECUTION record reached FAILED, or a fatal
	// error (non-determinism, illegal operation, hard protocol error)
	// terminated the invocation.
	OutcomeFailed Outcome = "FAILED"
	// OutcomePending means no logical thread could make further progress
	// this invocation; a future invocation will resume from the
	// checkpointed state.
	OutcomePending Outcome = "PENDING"
)

// ExecutionOutput is what Execute returns for one invocation.
type ExecutionOutput struct {
	Outcome Outcome
	Result  string
	Err     error
}

// Executor is the top-level entry point (C9): it seeds an ExecutionLog from
// the CheckpointClient's current state, runs Handler once against it,
// classifies the outcome, and flushes every update produced back through
// the CheckpointClient before returning.
type Executor struct {
	client               Client
	codec                codec.Codec
	defaultRetry         RetryPolicy
	workers              chan struct{}
	handler              Handler
	logger               telemetry.Logger
	metrics              *telemetry.Metrics
	tracer               *telemetry.Tracer
	verboseReplayLogging bool

	invokeTargets map[string]InvokeFunc
}

// NewExecutor constructs an Executor for handler, applying opts in order.
func NewExecutor(handler Handler, opts ...Option) (*Executor, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	e := &Executor{
		codec:        codec.NewJSON(),
		defaultRetry: DefaultRetry(),
		handler:      handler,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.client == nil {
		return nil, ErrNilClient
	}
	if e.codec == nil {
		return nil, ErrNilCodec
	}
	return e, nil
}

// Execute runs one invocation of handler for the execution identified by
// arn, against the checkpoint state currently on the host. token is the
// checkpoint token the caller last observed for arn ("" for a brand new
// execution). It returns the new token alongside the outcome so the caller
// can persist it for the next invocation.
func (e *Executor) Execute(ctx context.Context, arn, token, input string) (ExecutionOutput, string, error) {
	seeded, err := e.fetchState(ctx, arn)
	if err != nil {
		return ExecutionOutput{}, token, err
	}

	log := newExecutionLog()
	log.seed(seeded)
	if len(seeded) > 0 {
		if _, ok := log.get(rootExecutionID); !ok {
			return ExecutionOutput{}, token, ErrMissingExecutionRecord
		}
	}

	rt := &runtime{
		client:               e.client,
		log:                  log,
		cursor:               newReplayCursor(len(seeded) > 0),
		sched:                newScheduler(),
		coord:                newCheckpointCoordinator(e.client, arn, token, log),
		codec:                e.codec,
		defaultRetry:         e.defaultRetry,
		workers:              e.workers,
		logger:               e.logger,
		metrics:              e.metrics,
		tracer:               e.tracer,
		arn:                  arn,
		verboseReplayLogging: e.verboseReplayLogging,
		invokeTargets:        e.invokeTargets,
	}
	root := newRootContext(ctx, rt)

	out := e.run(root, input)

	flushStart := time.Now()
	flush := rt.coord.flush(ctx)
	rt.metrics.RecordFlush(time.Since(flushStart))

	switch {
	case flush.Fatal != nil:
		rt.metrics.RecordInvocation(string(OutcomeFailed))
		rt.logEvent("invocation_failed", telemetry.F("error", flush.Fatal.Error()))
		return ExecutionOutput{Outcome: OutcomeFailed, Err: flush.Fatal}, rt.coord.token, flush.Fatal
	case flush.Suspend:
		rt.metrics.RecordInvocation(string(OutcomePending))
		rt.metrics.RecordSuspension()
		rt.logEvent("invocation_pending")
		return ExecutionOutput{Outcome: OutcomePending}, rt.coord.token, nil
	default:
		rt.metrics.RecordInvocation(string(out.Outcome))
		if out.Outcome == OutcomePending {
			rt.metrics.RecordSuspension()
		}
		rt.logEvent("invocation_"+string(out.Outcome), telemetry.F("result_len", len(out.Result)))
		return out, rt.coord.token, out.Err
	}
}

// rootExecutionID is the id the root context's allocator hands out for the
// first call site reached: the EXECUTION record itself, always allocated
// before the handler runs (§4.2's (parentID, counter) numbering applied to
// the root context, whose parentID is "").
const rootExecutionID = "1"

func (e *Executor) run(root *Context, input string) (out ExecutionOutput) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch sig := r.(type) {
		case suspendSignal:
			if f := root.rt.sched.loadFatal(); f != nil {
				out = ExecutionOutput{Outcome: OutcomeFailed, Err: f}
				return
			}
			out = ExecutionOutput{Outcome: OutcomePending}
		case fatalSignal:
			out = ExecutionOutput{Outcome: OutcomeFailed, Err: sig.err}
		default:
			panic(r)
		}
	}()

	id, existing, found := root.enter(KindExecution, "execution")
	if found && existing.Status.Terminal() {
		if existing.Status == StatusSucceeded {
			return ExecutionOutput{Outcome: OutcomeSucceeded, Result: existing.ResultPayload}
		}
		return ExecutionOutput{Outcome: OutcomeFailed, Err: decodeErr(KindStepFailed, id, existing.ErrorDescriptor)}
	}
	if !found {
		root.rt.log.apply(OperationUpdate{
			OperationID: id, Kind: KindExecution, Name: "execution", Type: UpdateStart, Attempt: 1,
		})
	}

	result, err := e.handler(root, input)
	if err != nil {
		root.rt.log.apply(OperationUpdate{
			OperationID: id, Kind: KindExecution, Name: "execution",
			Type: UpdateFail, Attempt: 1, ErrorDescriptor: descriptorFromErr(err),
		})
		return ExecutionOutput{Outcome: OutcomeFailed, Err: err}
	}

	root.rt.log.apply(OperationUpdate{
		OperationID: id, Kind: KindExecution, Name: "execution",
		Type: UpdateSucceed, Attempt: 1, ResultPayload: result,
	})
	return ExecutionOutput{Outcome: OutcomeSucceeded, Result: result}
}

func (e *Executor) fetchState(ctx context.Context, arn string) ([]Operation, error) {
	var all []Operation
	marker := ""
	for {
		ops, next, err := e.client.GetState(ctx, arn, marker)
		if err != nil {
			return nil, err
		}
		all = append(all, ops...)
		if next == "" {
			return all, nil
		}
		marker = next
	}
}

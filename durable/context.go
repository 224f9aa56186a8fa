package durable

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/elipena/durable/codec"
	"github.com/elipena/durable/telemetry"
)

// runtime is the state shared by every Context within one invocation: the
// execution log, replay cursor, scheduler, checkpoint coordinator and the
// configuration a handler doesn't see directly (C8/C9 shared collaborators).
type runtime struct {
	client               Client
	log                  *ExecutionLog
	cursor               *replayCursor
	sched                *scheduler
	coord                *checkpointCoordinator
	codec                codec.Codec
	defaultRetry         RetryPolicy
	workers              chan struct{} // nil = unbounded worker pool
	logger               telemetry.Logger
	metrics              *telemetry.Metrics
	tracer               *telemetry.Tracer
	arn                  string
	verboseReplayLogging bool

	invokeMu      sync.RWMutex
	invokeTargets map[string]InvokeFunc
}

// logEvent reports msg to the Logger and Tracer, suppressed while the
// invocation is still replaying against the seeded log unless
// verboseReplayLogging is set: a replay re-walks call sites the log already
// knows the outcome of, and logging every one of them on every invocation
// would drown the live tail in noise.
func (rt *runtime) logEvent(msg string, fields ...telemetry.Field) {
	if rt.cursor.isReplaying() && !rt.verboseReplayLogging {
		return
	}
	if rt.logger != nil {
		rt.logger.Log(rt.arn, msg, fields...)
	}
	if rt.tracer != nil {
		rt.tracer.Span(context.Background(), rt.arn, msg, fields...)
	}
}

func (rt *runtime) lookupInvokeTarget(name string) (InvokeFunc, bool) {
	rt.invokeMu.RLock()
	defer rt.invokeMu.RUnlock()
	fn, ok := rt.invokeTargets[name]
	return fn, ok
}

// RegisterInvokeTarget makes fn reachable from the handler as Invoke's
// target name. Safe to call concurrently with running invocations.
func (rt *runtime) RegisterInvokeTarget(name string, fn InvokeFunc) {
	rt.invokeMu.Lock()
	defer rt.invokeMu.Unlock()
	if rt.invokeTargets == nil {
		rt.invokeTargets = make(map[string]InvokeFunc)
	}
	rt.invokeTargets[name] = fn
}

// Context is the handler-facing API (C8). It is not a context.Context
// itself — it wraps one, plus the per-call-site id allocator that makes the
// operation ids at this nesting level a deterministic function of position
// (§4.2). A Context must never be shared across goroutines outside of the
// Go/Wait pattern below; each child context gets its own.
type Context struct {
	std    context.Context
	rt     *runtime
	ids    *idAllocator
	selfID string // "" for the root context, else the CONTEXT operation id
}

func newRootContext(std context.Context, rt *runtime) *Context {
	return &Context{std: std, rt: rt, ids: newIDAllocator("")}
}

// Std returns the underlying context.Context, for deadline/cancellation
// inspection and for passing to non-durable library calls from a step
// thunk. It carries no durable-specific values: a thunk cannot call back
// into a *Context by construction, which is what makes the "no durable
// operation may be started from inside a step thunk" rule (§4.6) structural
// rather than enforced at runtime.
func (c *Context) Std() context.Context { return c.std }

// enter performs the id allocation and replay lookup shared by every
// operation kind (§4.2), and enforces the determinism invariant of §4.6:
// replaying the same call site with a different (kind, name) than the log
// recorded is fatal.
func (c *Context) enter(kind Kind, name string) (id string, existing Operation, found bool) {
	id = c.ids.next()
	existing, found = c.rt.cursor.getAndUpdateReplayState(c.rt.log, id)
	if found && (existing.Kind != kind || existing.Name != name) {
		c.fatal(id, fmt.Sprintf(
			"non-deterministic replay at operation %s: log recorded %s %q, handler now reaches %s %q",
			id, existing.Kind, existing.Name, kind, name))
	}
	return id, existing, found
}

func (c *Context) fatal(id, msg string) {
	panic(fatalSignal{err: newExecErr(KindNonDeterministic, id, msg, nil)})
}

func (c *Context) illegal(id, msg string) {
	panic(fatalSignal{err: newExecErr(KindIllegalOperation, id, msg, nil)})
}

func descriptorFromErr(err error) *ErrorDescriptor {
	if err == nil {
		return nil
	}
	kind, ok := ErrorKindOf(err)
	if !ok {
		kind = KindStepFailed
	}
	return &ErrorDescriptor{ErrorType: string(kind), ErrorMessage: err.Error()}
}

// decodeErr reconstructs a catchable error from a persisted ErrorDescriptor.
// If the descriptor carries a recognized ErrorType (recorded by a previous
// invocation), that kind wins over the caller's fallback, so a child
// context's own failure kind survives replay instead of being flattened.
func decodeErr(kind ErrorKind, opID string, d *ErrorDescriptor) error {
	if d == nil {
		return newExecErr(kind, opID, "operation failed", nil)
	}
	if d.ErrorType != "" {
		kind = ErrorKind(d.ErrorType)
	}
	return newExecErr(kind, opID, d.ErrorMessage, nil)
}

// sleep blocks the calling logical thread for d, participating in suspend
// detection like any other block (§5). Used for Step retry backoff: the
// backoff is waited out in-process only while another logical thread or an
// async thunk can still advance; otherwise blockUntil suspends the whole
// invocation at once, leaving the step PENDING for a later invocation.
func (c *Context) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	c.rt.sched.blockUntil(c.std, timer.C)
}

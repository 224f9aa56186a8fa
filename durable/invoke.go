package durable

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type invokeConfig struct {
	timeout time.Duration
}

// InvokeOption configures a single Invoke call.
type InvokeOption func(*invokeConfig)

// WithInvokeTimeout bounds how long target is allowed to run before the
// invocation is reported TIMED_OUT.
func WithInvokeTimeout(d time.Duration) InvokeOption {
	return func(c *invokeConfig) { c.timeout = d }
}

// Invoke dispatches to a named remote function registered with the
// Executor via WithInvokeTarget (§4.3.4, C5.4), checkpointing its outcome.
// Unlike Step, an interrupted Invoke is never silently re-run: a remote
// dispatch is assumed unsafe to repeat without the handler's knowledge.
func (c *Context) Invoke(name, target, input string, opts ...InvokeOption) (string, error) {
	cfg := invokeConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	id, existing, found := c.enter(KindInvoke, name)
	if found {
		switch existing.Status {
		case StatusSucceeded:
			if existing.Invoke != nil {
				return existing.Invoke.InvokeResult, nil
			}
			return "", nil
		case StatusFailed:
			return "", decodeErr(KindInvokeFailed, id, existing.ErrorDescriptor)
		case StatusTimedOut:
			return "", newExecErr(KindInvokeTimedOut, id, fmt.Sprintf("invoke %q timed out", target), nil)
		case StatusStopped:
			return "", newExecErr(KindInvokeStopped, id, fmt.Sprintf("invoke %q was stopped", target), nil)
		default:
			return "", newExecErr(KindInvokeFailed, id, "invoke was interrupted before completing", nil)
		}
	}

	c.rt.log.apply(OperationUpdate{
		OperationID: id, Kind: KindInvoke, Name: name, ParentID: c.selfID,
		Type: UpdateStart, Attempt: 1, Invoke: &InvokeDetail{Target: target, InputPayload: input},
	})

	fn, ok := c.rt.lookupInvokeTarget(target)
	if !ok {
		descr := &ErrorDescriptor{ErrorType: string(KindInvokeFailed), ErrorMessage: fmt.Sprintf("no invoke target registered for %q", target)}
		c.rt.log.apply(OperationUpdate{
			OperationID: id, Kind: KindInvoke, Name: name, ParentID: c.selfID,
			Type: UpdateFail, Attempt: 1, ErrorDescriptor: descr, Invoke: &InvokeDetail{Target: target},
		})
		return "", newExecErr(KindInvokeFailed, id, descr.ErrorMessage, nil)
	}

	callCtx := c.std
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(c.std, cfg.timeout)
		defer cancel()
	}

	output, err := c.runInvokeThunk(callCtx, fn, input)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			descr := &ErrorDescriptor{ErrorType: string(KindInvokeTimedOut), ErrorMessage: err.Error()}
			c.rt.log.apply(OperationUpdate{
				OperationID: id, Kind: KindInvoke, Name: name, ParentID: c.selfID,
				Type: UpdateFail, Attempt: 1, ErrorDescriptor: descr, Invoke: &InvokeDetail{Target: target},
			})
			return "", newExecErr(KindInvokeTimedOut, id, "invoke exceeded its deadline", err)
		}
		descr := descriptorFromErr(err)
		c.rt.log.apply(OperationUpdate{
			OperationID: id, Kind: KindInvoke, Name: name, ParentID: c.selfID,
			Type: UpdateFail, Attempt: 1, ErrorDescriptor: descr, Invoke: &InvokeDetail{Target: target},
		})
		return "", newExecErr(KindInvokeFailed, id, err.Error(), err)
	}

	c.rt.log.apply(OperationUpdate{
		OperationID: id, Kind: KindInvoke, Name: name, ParentID: c.selfID,
		Type: UpdateSucceed, Attempt: 1, Invoke: &InvokeDetail{Target: target, InvokeResult: output},
	})
	return output, nil
}

func (c *Context) runInvokeThunk(ctx context.Context, fn InvokeFunc, input string) (string, error) {
	c.rt.sched.asyncStart()
	defer c.rt.sched.asyncEnd()

	done := make(chan struct{})
	var result string
	var err error
	go func() {
		defer close(done)
		result, err = fn(ctx, input)
	}()
	// Block on the root invocation context, not ctx: ctx may carry a
	// per-call timeout, and a timeout firing should surface as
	// DeadlineExceeded from fn, not as a whole-execution suspend.
	c.rt.sched.blockUntil(c.std, done)
	return result, err
}

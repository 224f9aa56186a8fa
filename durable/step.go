package durable

import (
	"context"

	"github.com/elipena/durable/telemetry"
)

// Semantics selects how a Step behaves if the process crashes after the
// side effect runs but before its result is checkpointed (§4.3.1).
type Semantics string

const (
	// AtLeastOnce re-runs the thunk on replay if no terminal result was
	// checkpointed; the default, suited to a thunk whose side effect is safe
	// to repeat.
	AtLeastOnce Semantics = "AT_LEAST_ONCE"
	// AtMostOnce refuses to re-run an interrupted thunk; Step instead
	// returns a StepInterrupted error so the handler can decide how to
	// recover, matching a thunk whose side effect is unsafe to repeat.
	AtMostOnce Semantics = "AT_MOST_ONCE"
)

type stepConfig struct {
	retry     RetryPolicy
	semantics Semantics
}

// StepOption configures a single Step call, overriding the Executor-wide
// defaults (§6).
type StepOption func(*stepConfig)

// WithRetry overrides the retry policy for one Step call.
func WithRetry(p RetryPolicy) StepOption {
	return func(c *stepConfig) { c.retry = p }
}

// WithSemantics overrides the at-least-once/at-most-once behavior for one
// Step call.
func WithSemantics(s Semantics) StepOption {
	return func(c *stepConfig) { c.semantics = s }
}

func (c *Context) stepConfig(opts []StepOption) stepConfig {
	cfg := stepConfig{retry: c.rt.defaultRetry, semantics: AtLeastOnce}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Step runs fn exactly once per successful attempt, checkpointing the
// outcome so replay returns the recorded result instead of re-running fn
// (C5.1, §4.3.1). fn receives a plain context.Context: it has no access to
// a durable Context, so it cannot itself start a nested durable operation.
func (c *Context) Step(name string, fn func(ctx context.Context) (string, error), opts ...StepOption) (string, error) {
	cfg := c.stepConfig(opts)
	id, existing, found := c.enter(KindStep, name)

	attempt := 1
	if found {
		switch existing.Status {
		case StatusSucceeded:
			return existing.ResultPayload, nil
		case StatusFailed:
			return "", decodeErr(KindStepFailed, id, existing.ErrorDescriptor)
		case StatusCancelled:
			return "", newExecErr(KindStepFailed, id, "step was cancelled", nil)
		case StatusStarted:
			if cfg.semantics == AtMostOnce {
				descr := &ErrorDescriptor{
					ErrorType:    string(KindStepInterrupted),
					ErrorMessage: "step was interrupted before completing and at-most-once semantics forbid re-running it",
				}
				c.rt.log.apply(OperationUpdate{
					OperationID: id, Kind: KindStep, Name: name, ParentID: c.selfID,
					Type: UpdateFail, Attempt: existing.Attempt, ErrorDescriptor: descr,
				})
				return "", newExecErr(KindStepInterrupted, id, descr.ErrorMessage, nil)
			}
			attempt = existing.Attempt
		case StatusPending:
			attempt = existing.Attempt + 1
		}
	}

	for {
		c.rt.log.apply(OperationUpdate{
			OperationID: id, Kind: KindStep, Name: name, ParentID: c.selfID,
			Type: UpdateStart, Attempt: attempt,
		})

		result, err := c.runStepThunk(fn)
		if err == nil {
			c.rt.log.apply(OperationUpdate{
				OperationID: id, Kind: KindStep, Name: name, ParentID: c.selfID,
				Type: UpdateSucceed, Attempt: attempt, ResultPayload: result,
			})
			return result, nil
		}

		descr := descriptorFromErr(err)
		decision := cfg.retry.Decide(err, attempt)
		if !decision.Retry {
			c.rt.log.apply(OperationUpdate{
				OperationID: id, Kind: KindStep, Name: name, ParentID: c.selfID,
				Type: UpdateFail, Attempt: attempt, ErrorDescriptor: descr,
			})
			return "", newExecErr(KindStepFailed, id, err.Error(), err)
		}

		c.rt.log.apply(OperationUpdate{
			OperationID: id, Kind: KindStep, Name: name, ParentID: c.selfID,
			Type: UpdateRetry, Attempt: attempt, ErrorDescriptor: descr, RetryDelay: decision.Delay,
		})
		c.rt.metrics.RecordStepRetry(name)
		c.rt.logEvent("step_retry", telemetry.F("step", name), telemetry.F("attempt", attempt), telemetry.F("delay", decision.Delay.String()))
		c.sleep(decision.Delay)
		attempt++
	}
}

// runStepThunk dispatches fn onto the worker pool and parks the calling
// logical thread until it completes, participating in suspend detection
// the same way any other blocking operation does (§5).
func (c *Context) runStepThunk(fn func(context.Context) (string, error)) (string, error) {
	c.rt.sched.asyncStart()
	defer c.rt.sched.asyncEnd()

	if c.rt.workers != nil {
		c.rt.workers <- struct{}{}
		defer func() { <-c.rt.workers }()
	}

	done := make(chan struct{})
	var result string
	var err error
	go func() {
		defer close(done)
		result, err = fn(c.std)
	}()
	c.rt.sched.blockUntil(c.std, done)
	return result, err
}

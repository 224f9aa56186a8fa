package durable_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elipena/durable"
	"github.com/elipena/durable/client"
	"github.com/elipena/durable/telemetry"
	"github.com/stretchr/testify/require"
)

// spyLogger records every message it receives, for asserting on replay
// suppression without parsing a text/JSON log stream.
type spyLogger struct {
	msgs []string
}

func (s *spyLogger) Log(_, msg string, _ ...telemetry.Field) {
	s.msgs = append(s.msgs, msg)
}

func newTestExecutor(t *testing.T, handler durable.Handler, opts ...durable.Option) (*durable.Executor, *client.MemoryClient) {
	t.Helper()
	mem := client.NewMemoryClient()
	allOpts := append([]durable.Option{durable.WithClient(mem)}, opts...)
	exec, err := durable.NewExecutor(handler, allOpts...)
	require.NoError(t, err)
	return exec, mem
}

func TestExecutor_SucceedsOnFirstInvocationWithNoSuspendingOps(t *testing.T) {
	handler := func(ctx *durable.Context, input string) (string, error) {
		return ctx.Step("greet", func(context.Context) (string, error) {
			return `"hello"`, nil
		})
	}
	exec, _ := newTestExecutor(t, handler)

	out, token, err := exec.Execute(context.Background(), "arn-1", "", `"world"`)
	require.NoError(t, err)
	require.Equal(t, durable.OutcomeSucceeded, out.Outcome)
	require.NotEmpty(t, token)
}

func TestExecutor_ReplayShortCircuitsSucceededStep(t *testing.T) {
	calls := 0
	handler := func(ctx *durable.Context, input string) (string, error) {
		result, err := ctx.Step("count", func(context.Context) (string, error) {
			calls++
			return "ok", nil
		})
		if err != nil {
			return "", err
		}
		return result, nil
	}
	exec, mem := newTestExecutor(t, handler)

	out1, token1, err := exec.Execute(context.Background(), "arn-2", "", `"in"`)
	require.NoError(t, err)
	require.Equal(t, durable.OutcomeSucceeded, out1.Outcome)
	require.Equal(t, 1, calls)

	// Second invocation against the exact same persisted log: the handler
	// runs again from the top, but the step's result is already terminal.
	out2, _, err := exec.Execute(context.Background(), "arn-2", token1, `"in"`)
	require.NoError(t, err)
	require.Equal(t, durable.OutcomeSucceeded, out2.Outcome)
	require.Equal(t, 1, calls, "a terminal step must not re-run on replay")
	_ = mem
}

func TestExecutor_WaitSuspendsUntilDeadlinePasses(t *testing.T) {
	handler := func(ctx *durable.Context, input string) (string, error) {
		if err := ctx.Wait("pause", 2*time.Second); err != nil {
			return "", err
		}
		return "resumed", nil
	}
	exec, mem := newTestExecutor(t, handler)

	out, token, err := exec.Execute(context.Background(), "arn-3", "", "")
	require.NoError(t, err)
	require.Equal(t, durable.OutcomePending, out.Outcome)

	out, _, err = exec.Execute(context.Background(), "arn-3", token, "")
	require.NoError(t, err)
	require.Equal(t, durable.OutcomePending, out.Outcome, "deadline has not elapsed yet")

	require.NotEmpty(t, mem.Token("arn-3"))
}

func TestExecutor_WaitResumesAfterDeadline(t *testing.T) {
	handler := func(ctx *durable.Context, input string) (string, error) {
		if err := ctx.Wait("pause", time.Second); err != nil {
			return "", err
		}
		return "resumed", nil
	}
	exec, _ := newTestExecutor(t, handler)

	_, token, err := exec.Execute(context.Background(), "arn-4", "", "")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	out, _, err := exec.Execute(context.Background(), "arn-4", token, "")
	require.NoError(t, err)
	require.Equal(t, durable.OutcomeSucceeded, out.Outcome)
	require.Equal(t, "resumed", out.Result)
}

func TestExecutor_StepRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	handler := func(ctx *durable.Context, input string) (string, error) {
		return ctx.Step("flaky", func(context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("transient failure")
			}
			return "recovered", nil
		}, durable.WithRetry(durable.FixedRetry(5, time.Second)))
	}
	exec, _ := newTestExecutor(t, handler)

	// A failed attempt with a retry decision leaves the step PENDING and, with
	// no other logical thread able to advance, suspends the invocation; each
	// re-invocation runs the next attempt.
	out, token, err := exec.Execute(context.Background(), "arn-5", "", "")
	require.NoError(t, err)
	require.Equal(t, durable.OutcomePending, out.Outcome)
	for i := 0; i < 5 && out.Outcome == durable.OutcomePending; i++ {
		out, token, err = exec.Execute(context.Background(), "arn-5", token, "")
		require.NoError(t, err)
	}
	require.Equal(t, durable.OutcomeSucceeded, out.Outcome)
	require.Equal(t, "recovered", out.Result)
	require.Equal(t, 3, attempts)
}

func TestExecutor_StepFailsAfterExhaustingRetries(t *testing.T) {
	handler := func(ctx *durable.Context, input string) (string, error) {
		return ctx.Step("always-fails", func(context.Context) (string, error) {
			return "", errors.New("permanent failure")
		}, durable.WithRetry(durable.NoneRetry()))
	}
	exec, _ := newTestExecutor(t, handler)

	out, _, err := exec.Execute(context.Background(), "arn-6", "", "")
	require.Error(t, err)
	require.Equal(t, durable.OutcomeFailed, out.Outcome)
	kind, ok := durable.ErrorKindOf(err)
	require.True(t, ok)
	require.Equal(t, durable.KindStepFailed, kind)
}

func TestExecutor_AtMostOnceStepInterruptedOnCrashReplay(t *testing.T) {
	mem := client.NewMemoryClient()

	// Simulate a crash: checkpoint a STARTED at-most-once step directly,
	// bypassing the executor, to model a process that died mid-thunk.
	token, _, err := mem.Checkpoint(context.Background(), "arn-7", "", []durable.OperationUpdate{
		{OperationID: "1", Kind: durable.KindExecution, Name: "execution", Type: durable.UpdateStart, Attempt: 1},
		{OperationID: "2", Kind: durable.KindStep, Name: "charge", Type: durable.UpdateStart, Attempt: 1},
	})
	require.NoError(t, err)

	handler := func(ctx *durable.Context, input string) (string, error) {
		return ctx.Step("charge", func(context.Context) (string, error) {
			t.Fatal("at-most-once step must not re-run after an interrupted attempt")
			return "", nil
		}, durable.WithSemantics(durable.AtMostOnce))
	}
	exec, err := durable.NewExecutor(handler, durable.WithClient(mem))
	require.NoError(t, err)

	out, _, err := exec.Execute(context.Background(), "arn-7", token, "")
	require.Error(t, err)
	require.Equal(t, durable.OutcomeFailed, out.Outcome)
	kind, ok := durable.ErrorKindOf(err)
	require.True(t, ok)
	require.Equal(t, durable.KindStepInterrupted, kind)
}

func TestExecutor_CallbackSuspendsThenSucceedsAfterExternalCompletion(t *testing.T) {
	handler := func(ctx *durable.Context, input string) (string, error) {
		return ctx.Callback("approval", time.Hour, 0)
	}
	exec, mem := newTestExecutor(t, handler)

	out, token, err := exec.Execute(context.Background(), "arn-8", "", "")
	require.NoError(t, err)
	require.Equal(t, durable.OutcomePending, out.Outcome)

	ops, _, err := mem.GetState(context.Background(), "arn-8", "")
	require.NoError(t, err)

	var callbackID string
	for _, o := range ops {
		if o.Kind == durable.KindCallback {
			callbackID = o.ID
		}
	}
	require.NotEmpty(t, callbackID)

	require.NoError(t, mem.CompleteCallback(context.Background(), "arn-8", callbackID, `"approved"`))

	out, _, err = exec.Execute(context.Background(), "arn-8", mem.Token("arn-8"), "")
	require.NoError(t, err)
	require.Equal(t, durable.OutcomeSucceeded, out.Outcome)
	require.Equal(t, `"approved"`, out.Result)
	_ = token
}

func TestExecutor_NonDeterministicReplayIsFatal(t *testing.T) {
	mem := client.NewMemoryClient()
	token, _, err := mem.Checkpoint(context.Background(), "arn-9", "", []durable.OperationUpdate{
		{OperationID: "1", Kind: durable.KindExecution, Name: "execution", Type: durable.UpdateStart, Attempt: 1},
		{OperationID: "2", Kind: durable.KindStep, Name: "first", Type: durable.UpdateSucceed, Attempt: 1, ResultPayload: "ok"},
	})
	require.NoError(t, err)

	handler := func(ctx *durable.Context, input string) (string, error) {
		// This invocation reaches a Wait where the log recorded a Step at
		// the same call site: a different (kind, name), which is fatal.
		return "", ctx.Wait("first", time.Second)
	}
	exec, err := durable.NewExecutor(handler, durable.WithClient(mem))
	require.NoError(t, err)

	out, _, err := exec.Execute(context.Background(), "arn-9", token, "")
	require.Error(t, err)
	require.Equal(t, durable.OutcomeFailed, out.Outcome)
	kind, ok := durable.ErrorKindOf(err)
	require.True(t, ok)
	require.Equal(t, durable.KindNonDeterministic, kind)
}

func TestExecutor_ReplayLoggingSuppressedUnlessVerbose(t *testing.T) {
	handler := func(ctx *durable.Context, input string) (string, error) {
		return ctx.Step("greet", func(context.Context) (string, error) {
			return `"hello"`, nil
		})
	}

	mem := client.NewMemoryClient()
	spy := &spyLogger{}
	exec, err := durable.NewExecutor(handler, durable.WithClient(mem), durable.WithLogger(spy))
	require.NoError(t, err)

	_, token, err := exec.Execute(context.Background(), "arn-12", "", `"world"`)
	require.NoError(t, err)
	require.Contains(t, spy.msgs, "invocation_SUCCEEDED", "a live invocation must log its outcome")

	// Re-invoke against the now fully-terminal execution: nothing new is
	// reached, so the whole invocation replays and the event must be
	// suppressed by default.
	spy.msgs = nil
	_, _, err = exec.Execute(context.Background(), "arn-12", token, `"world"`)
	require.NoError(t, err)
	require.NotContains(t, spy.msgs, "invocation_SUCCEEDED", "a purely-replayed invocation must not re-log")

	verboseSpy := &spyLogger{}
	verboseExec, err := durable.NewExecutor(handler,
		durable.WithClient(mem), durable.WithLogger(verboseSpy), durable.WithVerboseReplayLogging(true))
	require.NoError(t, err)
	_, _, err = verboseExec.Execute(context.Background(), "arn-12", mem.Token("arn-12"), `"world"`)
	require.NoError(t, err)
	require.Contains(t, verboseSpy.msgs, "invocation_SUCCEEDED", "VerboseReplayLogging must re-enable replay logging")
}

func TestExecutor_ChildContextComposesWithParent(t *testing.T) {
	handler := func(ctx *durable.Context, input string) (string, error) {
		result, err := ctx.Child("subtask", func(child *durable.Context) (string, error) {
			return child.Step("inner", func(context.Context) (string, error) {
				return "inner-done", nil
			})
		})
		if err != nil {
			return "", err
		}
		return result, nil
	}
	exec, _ := newTestExecutor(t, handler)

	out, _, err := exec.Execute(context.Background(), "arn-10", "", "")
	require.NoError(t, err)
	require.Equal(t, durable.OutcomeSucceeded, out.Outcome)
	require.Equal(t, "inner-done", out.Result)
}

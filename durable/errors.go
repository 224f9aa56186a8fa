package durable

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a durable-execution failure into the taxonomy of §7.
// Kinds, not concrete Go types, are what the spec asks implementations to
// distinguish — matching how the teacher distinguishes EngineError codes
// ("MAX_STEPS_EXCEEDED", "NODE_NOT_FOUND", ...) rather than defining one
// exported type per failure.
type ErrorKind string

const (
	// KindStepFailed marks a step that exhausted its retry policy.
	KindStepFailed ErrorKind = "STEP_FAILED"
	// KindStepInterrupted marks an at-most-once step whose STARTED record
	// survived a crash without reaching a terminal status.
	KindStepInterrupted ErrorKind = "STEP_INTERRUPTED"
	// KindCallbackFailed marks a callback explicitly failed by the external system.
	KindCallbackFailed ErrorKind = "CALLBACK_FAILED"
	// KindCallbackTimeout marks a callback whose timeout or heartbeat elapsed.
	KindCallbackTimeout ErrorKind = "CALLBACK_TIMEOUT"
	// KindInvokeFailed marks a remote invocation that completed with a failure.
	KindInvokeFailed ErrorKind = "INVOKE_FAILED"
	// KindInvokeTimedOut marks a remote invocation that exceeded its deadline.
	KindInvokeTimedOut ErrorKind = "INVOKE_TIMED_OUT"
	// KindInvokeStopped marks a remote invocation stopped by an external actor.
	KindInvokeStopped ErrorKind = "INVOKE_STOPPED"
	// KindNonDeterministic marks a call site that disagreed with the log on
	// (kind, name) at a given operation id. Fatal; never retried.
	KindNonDeterministic ErrorKind = "NON_DETERMINISTIC_EXECUTION"
	// KindIllegalOperation marks a forbidden use of the durable API, such as
	// a sub-second Wait, or a child context function that panicked. Fatal.
	KindIllegalOperation ErrorKind = "ILLEGAL_DURABLE_OPERATION"
)

// ExecutionError is the concrete error type durable returns for every kind
// in the taxonomy above. Catchable kinds (StepFailed, StepInterrupted,
// CallbackFailed, CallbackTimeout, Invoke*) are returned as ordinary errors
// from the operation calls (Step, Callback, Invoke, Child, ChildHandle.Wait)
// and may be inspected with errors.As / ErrorKindOf. Fatal kinds
// (NonDeterministic, IllegalOperation) are never constructed as return
// values; they unwind via the scheduler's recovered panic instead (see
// scheduler.go) and are surfaced to the caller of Executor.Execute already
// wrapped in this type.
type ExecutionError struct {
	Kind       ErrorKind
	Message    string
	OperationID string
	Cause      error
}

func (e *ExecutionError) Error() string {
	if e.OperationID != "" {
		return fmt.Sprintf("%s: %s (operation %s)", e.Kind, e.Message, e.OperationID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// ErrorKindOf extracts the ErrorKind carried by err, if any.
func ErrorKindOf(err error) (ErrorKind, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return "", false
}

// Sentinel errors for conditions that are programmer/configuration mistakes
// rather than execution-taxonomy failures, mirroring the teacher's top-level
// var-block sentinels (ErrReplayMismatch, ErrNoProgress, ...).
var (
	// ErrNilHandler is returned when NewExecutor is called without a handler.
	ErrNilHandler = errors.New("durable: handler is required")
	// ErrNilClient is returned when an Executor is constructed without a CheckpointClient.
	ErrNilClient = errors.New("durable: checkpoint client is required")
	// ErrNilCodec is returned when an Executor is constructed without a Codec.
	ErrNilCodec = errors.New("durable: codec is required")
	// ErrMissingExecutionRecord is returned when the seeded state has no EXECUTION record.
	ErrMissingExecutionRecord = errors.New("durable: seeded state is missing the EXECUTION record")
	// ErrInvalidRetryPolicy is returned by NewFixedRetry and NewExpRetry on bad parameters.
	ErrInvalidRetryPolicy = errors.New("durable: invalid retry policy parameters")
	// ErrSubSecondWait is returned when a Wait is constructed with a duration under 1s.
	ErrSubSecondWait = errors.New("durable: wait duration must be at least one second")
)

func newExecErr(kind ErrorKind, opID, msg string, cause error) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: msg, OperationID: opID, Cause: cause}
}

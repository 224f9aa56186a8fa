package durable

import "context"

// Client is the CheckpointClient contract of §6: the wire client to the
// external checkpoint service. durable's core only ever calls Checkpoint
// and GetState; reference backends (durable/client) additionally implement
// the callback-completion API below so an end-to-end example can run
// without a real host runtime.
//
// The interface lives in this package, not in durable/client, so that
// reference implementations can import durable for the Operation/
// OperationUpdate types without creating an import cycle — the same
// consumer-owns-the-interface shape Go favors over defining the interface
// next to its implementations.
type Client interface {
	// Checkpoint applies a batch of updates atomically and returns the new
	// token plus the full resulting state. Implementations must reject a
	// stale token.
	Checkpoint(ctx context.Context, arn, token string, updates []OperationUpdate) (newToken string, state []Operation, err error)

	// GetState performs a paginated read of the current state, used on
	// invocation entry. An empty nextMarker means the last page was read.
	GetState(ctx context.Context, arn string, marker string) (ops []Operation, nextMarker string, err error)
}

// CallbackTarget is the externally observable callback completion API of
// §6. Reference Client implementations that support callbacks (memory,
// redis) also implement this so examples and tests can simulate the
// external system completing a callback.
type CallbackTarget interface {
	CompleteCallback(ctx context.Context, arn, callbackID, payload string) error
	FailCallback(ctx context.Context, arn, callbackID string, descriptor ErrorDescriptor) error
	ExpireCallback(ctx context.Context, arn, callbackID string) error
	Heartbeat(ctx context.Context, arn, callbackID string) error
}

// InvokeDispatcher describes a component that runs named remote functions
// registered with RegisterInvokeTarget. No reference Client in
// durable/client implements it, and Context.Invoke does not consult the
// Client: it dispatches to targets registered on the Executor with
// WithInvokeTarget.
type InvokeDispatcher interface {
	RegisterInvokeTarget(name string, fn InvokeFunc)
}

// InvokeFunc is a named remote function an InvokeDispatcher can run.
type InvokeFunc func(ctx context.Context, input string) (output string, err error)

// LIMIT is the default per-checkpoint-call payload budget of §6 (~6 MiB).
const LIMIT = 6 * 1024 * 1024

package client

import (
	"context"
	"sync"
	"time"

	"github.com/elipena/durable"
	"github.com/google/uuid"
)

// MemoryClient is an in-memory durable.Client, the repo's own test double.
// Designed for:
//   - Unit and scenario tests that don't want a real database
//   - Short-lived local runs of handlers
//
// Limitations: all state is lost when the process exits, and there is no
// cross-process coordination — concurrent invocations of the same
// execution from two processes will see independent copies.
type MemoryClient struct {
	mu    sync.RWMutex
	execs map[string]*memExecution
}

type memExecution struct {
	token string
	ops   map[string]durable.Operation
	order []string
}

// NewMemoryClient constructs an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{execs: make(map[string]*memExecution)}
}

func (m *MemoryClient) execution(arn string, create bool) *memExecution {
	e, ok := m.execs[arn]
	if !ok && create {
		e = &memExecution{ops: make(map[string]durable.Operation)}
		m.execs[arn] = e
	}
	return e
}

// Checkpoint implements durable.Client.
func (m *MemoryClient) Checkpoint(_ context.Context, arn, token string, updates []durable.OperationUpdate) (string, []durable.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec := m.execution(arn, true)
	if exec.token != token {
		return "", nil, durable.ErrStaleCheckpointToken
	}

	for _, u := range updates {
		existing, exists := exec.ops[u.OperationID]
		op := applyUpdate(existing, exists, u)
		if !exists {
			exec.order = append(exec.order, u.OperationID)
		}
		exec.ops[u.OperationID] = op
	}

	exec.token = uuid.NewString()
	return exec.token, m.snapshotLocked(exec), nil
}

// GetState implements durable.Client. MemoryClient never paginates:
// everything is returned on the first call and nextMarker is always "".
func (m *MemoryClient) GetState(_ context.Context, arn string, _ string) ([]durable.Operation, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec := m.execution(arn, false)
	if exec == nil {
		return nil, "", nil
	}
	return m.snapshotLocked(exec), "", nil
}

func (m *MemoryClient) snapshotLocked(exec *memExecution) []durable.Operation {
	out := make([]durable.Operation, 0, len(exec.order))
	for _, id := range exec.order {
		out = append(out, exec.ops[id])
	}
	return out
}

// Token returns the current checkpoint token for arn, for callers that
// need to re-synchronize after an out-of-band CallbackTarget mutation
// before calling Executor.Execute again.
func (m *MemoryClient) Token(arn string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec := m.execution(arn, false)
	if exec == nil {
		return ""
	}
	return exec.token
}

// CompleteCallback implements durable.CallbackTarget.
func (m *MemoryClient) CompleteCallback(_ context.Context, arn, callbackID, payload string) error {
	return m.mutateCallback(arn, callbackID, func(op *durable.Operation) {
		op.Status = durable.StatusSucceeded
		op.ResultPayload = payload
	})
}

// FailCallback implements durable.CallbackTarget.
func (m *MemoryClient) FailCallback(_ context.Context, arn, callbackID string, descriptor durable.ErrorDescriptor) error {
	return m.mutateCallback(arn, callbackID, func(op *durable.Operation) {
		op.Status = durable.StatusFailed
		op.ErrorDescriptor = &descriptor
	})
}

// ExpireCallback implements durable.CallbackTarget.
func (m *MemoryClient) ExpireCallback(_ context.Context, arn, callbackID string) error {
	return m.mutateCallback(arn, callbackID, func(op *durable.Operation) {
		op.Status = durable.StatusTimedOut
	})
}

// Heartbeat implements durable.CallbackTarget.
func (m *MemoryClient) Heartbeat(_ context.Context, arn, callbackID string) error {
	return m.mutateCallback(arn, callbackID, func(op *durable.Operation) {
		if op.Callback != nil {
			op.Callback.LastHeartbeat = time.Now()
		}
	})
}

func (m *MemoryClient) mutateCallback(arn, callbackID string, mutate func(*durable.Operation)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec := m.execution(arn, false)
	if exec == nil {
		return ErrNotFound
	}
	op, ok := exec.ops[callbackID]
	if !ok || op.Kind != durable.KindCallback {
		return ErrNotFound
	}
	mutate(&op)
	exec.ops[callbackID] = op
	exec.token = uuid.NewString()
	return nil
}

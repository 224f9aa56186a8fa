// Package client collects reference CheckpointClient (durable.Client)
// implementations: an in-memory test double plus SQLite, MySQL and Redis
// backends for running handlers end to end. Each backend implements
// durable.Client directly; durable.Client lives in the root durable
// package rather than here so these backends can import durable
// one-way without a cycle (see durable/client.go).
package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elipena/durable"
)

// ErrNotFound is returned by the CallbackTarget methods of the backends when
// the execution or the callback operation is not found.
var ErrNotFound = errors.New("durable/client: not found")

// encodeOperation serializes an Operation for storage in a text/JSON column.
func encodeOperation(op durable.Operation) (string, error) {
	b, err := json.Marshal(op)
	if err != nil {
		return "", fmt.Errorf("durable/client: encode operation: %w", err)
	}
	return string(b), nil
}

func decodeOperation(raw string) (durable.Operation, error) {
	var op durable.Operation
	if err := json.Unmarshal([]byte(raw), &op); err != nil {
		return durable.Operation{}, fmt.Errorf("durable/client: decode operation: %w", err)
	}
	return op, nil
}

// applyUpdate mirrors the ExecutionLog.apply state machine (durable's
// oplog.go) so every backend persists exactly the same transitions the
// in-process log would compute, without durable exporting apply itself.
func applyUpdate(existing durable.Operation, exists bool, u durable.OperationUpdate) durable.Operation {
	op := existing
	if !exists {
		op = durable.Operation{ID: u.OperationID, Kind: u.Kind, Name: u.Name, ParentID: u.ParentID}
	}
	op.Attempt = u.Attempt
	switch u.Type {
	case durable.UpdateStart:
		op.Status = durable.StatusStarted
		if u.Wait != nil {
			op.Wait = u.Wait
		}
		if u.Callback != nil {
			op.Callback = u.Callback
		}
		if u.Invoke != nil {
			op.Invoke = u.Invoke
		}
		if u.Context != nil {
			op.Context = u.Context
		}
	case durable.UpdateSucceed:
		op.Status = durable.StatusSucceeded
		op.ResultPayload = u.ResultPayload
		if u.Invoke != nil {
			op.Invoke = u.Invoke
		}
		if u.Context != nil {
			op.Context = u.Context
		}
	case durable.UpdateFail:
		op.Status = durable.StatusFailed
		op.ErrorDescriptor = u.ErrorDescriptor
	case durable.UpdateRetry:
		op.Status = durable.StatusPending
		op.ErrorDescriptor = u.ErrorDescriptor
	case durable.UpdateCancel:
		op.Status = durable.StatusCancelled
	}
	return op
}

package durable

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// Hard protocol errors from the CheckpointClient are fatal (§4.5 item 3);
// every other error is surfaced as a retriable suspension instead of
// failing the execution outright.
var (
	ErrStaleCheckpointToken = errors.New("durable: stale checkpoint token")
	ErrCheckpointConflict   = errors.New("durable: checkpoint state conflict")
)

// checkpointCoordinator batches outstanding updates and drives them through
// the CheckpointClient, splitting oversize payloads per §4.5 (C7).
type checkpointCoordinator struct {
	mu     sync.Mutex
	client Client
	arn    string
	token  string
	log    *ExecutionLog
	limit  int
}

func newCheckpointCoordinator(client Client, arn, token string, log *ExecutionLog) *checkpointCoordinator {
	limit := LIMIT
	return &checkpointCoordinator{client: client, arn: arn, token: token, log: log, limit: limit}
}

// flushResult reports how a flush concluded.
type flushResult struct {
	// Suspend is true when a retriable client error means this invocation
	// cannot make further progress and should be reported PENDING.
	Suspend bool
	// Fatal is non-nil for a hard protocol error (stale token, conflict).
	Fatal error
}

// flush is a strict barrier: on return, every update enqueued before the
// call is durable (§4.5 "Flush must be a strict barrier").
func (c *checkpointCoordinator) flush(ctx context.Context) flushResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	updates := c.log.drainPending()
	if len(updates) == 0 {
		return flushResult{}
	}

	for _, batch := range splitOversize(updates, c.limit) {
		newToken, state, err := c.client.Checkpoint(ctx, c.arn, c.token, batch)
		if err != nil {
			if errors.Is(err, ErrStaleCheckpointToken) || errors.Is(err, ErrCheckpointConflict) {
				return flushResult{Fatal: err}
			}
			return flushResult{Suspend: true}
		}
		c.token = newToken
		c.log.seed(state)
	}
	return flushResult{}
}

// updateSize approximates the serialized size of an update for oversize
// accounting (§4.5, §6 LIMIT).
func updateSize(u OperationUpdate) int {
	b, err := json.Marshal(u)
	if err != nil {
		return len(u.ResultPayload)
	}
	return len(b)
}

// splitOversize implements the oversize-handling policy of §4.5, with the
// byte-budget split decided in SPEC_FULL.md §9:
//
//  1. If the aggregate serialized size fits under limit, send one batch.
//  2. Otherwise, EXECUTION/CONTEXT SUCCEED updates are always split into
//     their own dedicated calls (regardless of their individual size),
//     and any STEP SUCCEED update that alone exceeds limit is likewise
//     split into its own call.
//  3. If the remaining batch is still over limit after step 2, plain STEP
//     SUCCEED updates are peeled off one at a time, largest first, into
//     their own dedicated calls until the remainder fits.
func splitOversize(updates []OperationUpdate, limit int) [][]OperationUpdate {
	sizes := make([]int, len(updates))
	total := 0
	for i, u := range updates {
		sizes[i] = updateSize(u)
		total += sizes[i]
	}
	if total <= limit {
		return [][]OperationUpdate{updates}
	}

	var dedicated [][]OperationUpdate
	type remItem struct {
		u    OperationUpdate
		size int
	}
	var remaining []remItem
	remainingSize := 0

	for i, u := range updates {
		switch {
		case (u.Kind == KindExecution || u.Kind == KindContext) && u.Type == UpdateSucceed:
			dedicated = append(dedicated, []OperationUpdate{u})
		case u.Kind == KindStep && u.Type == UpdateSucceed && sizes[i] > limit:
			dedicated = append(dedicated, []OperationUpdate{u})
		default:
			remaining = append(remaining, remItem{u: u, size: sizes[i]})
			remainingSize += sizes[i]
		}
	}

	if remainingSize > limit {
		sort.Slice(remaining, func(i, j int) bool {
			iStep := remaining[i].u.Kind == KindStep && remaining[i].u.Type == UpdateSucceed
			jStep := remaining[j].u.Kind == KindStep && remaining[j].u.Type == UpdateSucceed
			if iStep != jStep {
				return iStep // peel step-succeeds before non-peelable entries
			}
			return remaining[i].size > remaining[j].size
		})
		for remainingSize > limit && len(remaining) > 0 {
			head := remaining[0]
			if head.u.Kind != KindStep || head.u.Type != UpdateSucceed {
				break // nothing left that's safe to peel off alone
			}
			dedicated = append(dedicated, []OperationUpdate{head.u})
			remainingSize -= head.size
			remaining = remaining[1:]
		}
	}

	if len(remaining) > 0 {
		batch := make([]OperationUpdate, 0, len(remaining))
		for _, r := range remaining {
			batch = append(batch, r.u)
		}
		dedicated = append(dedicated, batch)
	}
	return dedicated
}

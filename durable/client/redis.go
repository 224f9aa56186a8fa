package client

import (
	"context"
	"fmt"
	"time"

	"github.com/elipena/durable"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisClient is a Redis-backed durable.Client. Designed for:
//   - Low-latency checkpoint round trips across many concurrent executions
//   - Deployments that already run Redis for other coordination
//
// Each execution's operations live in a Redis hash keyed by arn, with one
// field per operation id; the execution's token lives alongside it as a
// reserved field. Checkpoint uses WATCH/MULTI to implement the same
// compare-and-swap the SQL backends get from a transaction.
type RedisClient struct {
	rdb *redis.Client
}

const tokenField = "__token__"

// NewRedisClient wraps an existing *redis.Client.
func NewRedisClient(rdb *redis.Client) *RedisClient {
	return &RedisClient{rdb: rdb}
}

func executionKey(arn string) string { return "durable:exec:" + arn }

// Checkpoint implements durable.Client.
func (c *RedisClient) Checkpoint(ctx context.Context, arn, token string, updates []durable.OperationUpdate) (string, []durable.Operation, error) {
	key := executionKey(arn)
	newToken := uuid.NewString()

	txf := func(tx *redis.Tx) error {
		currentToken, err := tx.HGet(ctx, key, tokenField).Result()
		if err == redis.Nil {
			currentToken = ""
		} else if err != nil {
			return fmt.Errorf("durable/client: read token: %w", err)
		}
		if currentToken != token {
			return durable.ErrStaleCheckpointToken
		}

		existing := make(map[string]durable.Operation, len(updates))
		for _, u := range updates {
			if _, seen := existing[u.OperationID]; seen {
				continue
			}
			raw, err := tx.HGet(ctx, key, u.OperationID).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return fmt.Errorf("durable/client: read operation: %w", err)
			}
			op, err := decodeOperation(raw)
			if err != nil {
				return err
			}
			existing[u.OperationID] = op
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, u := range updates {
				op, exists := existing[u.OperationID]
				merged := applyUpdate(op, exists, u)
				raw, err := encodeOperation(merged)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, key, u.OperationID, raw)
			}
			pipe.HSet(ctx, key, tokenField, newToken)
			return nil
		})
		return err
	}

	if err := c.rdb.Watch(ctx, txf, key); err != nil {
		if err == durable.ErrStaleCheckpointToken {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("durable/client: checkpoint: %w", err)
	}

	state, err := c.snapshot(ctx, key)
	if err != nil {
		return "", nil, err
	}
	return newToken, state, nil
}

// GetState implements durable.Client. RedisClient never paginates: the
// whole hash is read in one HGETALL.
func (c *RedisClient) GetState(ctx context.Context, arn string, _ string) ([]durable.Operation, string, error) {
	ops, err := c.snapshot(ctx, executionKey(arn))
	if err != nil {
		return nil, "", err
	}
	return ops, "", nil
}

func (c *RedisClient) snapshot(ctx context.Context, key string) ([]durable.Operation, error) {
	fields, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("durable/client: snapshot: %w", err)
	}
	out := make([]durable.Operation, 0, len(fields))
	for field, raw := range fields {
		if field == tokenField {
			continue
		}
		op, err := decodeOperation(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// CompleteCallback implements durable.CallbackTarget.
func (c *RedisClient) CompleteCallback(ctx context.Context, arn, callbackID, payload string) error {
	return c.mutateCallback(ctx, arn, callbackID, func(op *durable.Operation) {
		op.Status = durable.StatusSucceeded
		op.ResultPayload = payload
	})
}

// FailCallback implements durable.CallbackTarget.
func (c *RedisClient) FailCallback(ctx context.Context, arn, callbackID string, descriptor durable.ErrorDescriptor) error {
	return c.mutateCallback(ctx, arn, callbackID, func(op *durable.Operation) {
		op.Status = durable.StatusFailed
		op.ErrorDescriptor = &descriptor
	})
}

// ExpireCallback implements durable.CallbackTarget.
func (c *RedisClient) ExpireCallback(ctx context.Context, arn, callbackID string) error {
	return c.mutateCallback(ctx, arn, callbackID, func(op *durable.Operation) {
		op.Status = durable.StatusTimedOut
	})
}

// Heartbeat implements durable.CallbackTarget.
func (c *RedisClient) Heartbeat(ctx context.Context, arn, callbackID string) error {
	return c.mutateCallback(ctx, arn, callbackID, func(op *durable.Operation) {
		if op.Callback != nil {
			op.Callback.LastHeartbeat = time.Now()
		}
	})
}

func (c *RedisClient) mutateCallback(ctx context.Context, arn, callbackID string, mutate func(*durable.Operation)) error {
	key := executionKey(arn)
	raw, err := c.rdb.HGet(ctx, key, callbackID).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("durable/client: read callback: %w", err)
	}
	op, err := decodeOperation(raw)
	if err != nil {
		return err
	}
	if op.Kind != durable.KindCallback {
		return ErrNotFound
	}
	mutate(&op)
	encoded, err := encodeOperation(op)
	if err != nil {
		return err
	}
	if err := c.rdb.HSet(ctx, key, callbackID, encoded).Err(); err != nil {
		return fmt.Errorf("durable/client: write callback: %w", err)
	}
	return c.rdb.HSet(ctx, key, tokenField, uuid.NewString()).Err()
}

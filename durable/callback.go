package durable

import "time"

// Callback suspends the invocation awaiting external completion through the
// CheckpointClient's CallbackTarget API (§4.3.3, C5.3): CompleteCallback,
// FailCallback or ExpireCallback, called by whatever system owns the async
// work this callback represents. heartbeatTimeout, if non-zero, requires a
// Heartbeat call at least that often or the callback expires; timeout, if
// non-zero, expires the callback once that long has passed since its last
// recorded heartbeat (its creation, if it has had none).
func (c *Context) Callback(name string, timeout, heartbeatTimeout time.Duration) (string, error) {
	id, existing, found := c.enter(KindCallback, name)
	if found {
		switch existing.Status {
		case StatusSucceeded:
			return existing.ResultPayload, nil
		case StatusFailed:
			return "", decodeErr(KindCallbackFailed, id, existing.ErrorDescriptor)
		case StatusTimedOut:
			return "", newExecErr(KindCallbackTimeout, id, "callback timed out", nil)
		case StatusCancelled:
			return "", newExecErr(KindCallbackFailed, id, "callback was cancelled", nil)
		}

		if cb := existing.Callback; cb != nil && callbackExpired(cb) {
			descr := &ErrorDescriptor{ErrorType: string(KindCallbackTimeout), ErrorMessage: "callback timed out"}
			c.rt.log.apply(OperationUpdate{
				OperationID: id, Kind: KindCallback, Name: name, ParentID: c.selfID,
				Type: UpdateFail, Attempt: existing.Attempt, ErrorDescriptor: descr,
			})
			return "", newExecErr(KindCallbackTimeout, id, descr.ErrorMessage, nil)
		}
		c.rt.sched.blockUntil(c.std, nil)
		return "", nil
	}

	cb := &CallbackDetail{
		CallbackID:       id,
		Timeout:          timeout,
		HeartbeatTimeout: heartbeatTimeout,
		LastHeartbeat:    time.Now(),
	}
	c.rt.log.apply(OperationUpdate{
		OperationID: id, Kind: KindCallback, Name: name, ParentID: c.selfID,
		Type: UpdateStart, Attempt: 1, Callback: cb,
	})
	c.rt.sched.blockUntil(c.std, nil)
	return "", nil
}

// callbackExpired reports whether a STARTED callback has missed its
// heartbeat or overall deadline as of now.
func callbackExpired(cb *CallbackDetail) bool {
	now := time.Now()
	if cb.HeartbeatTimeout > 0 && now.Sub(cb.LastHeartbeat) > cb.HeartbeatTimeout {
		return true
	}
	if cb.Timeout > 0 && now.Sub(cb.LastHeartbeat) > cb.Timeout {
		return true
	}
	return false
}

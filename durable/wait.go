package durable

import "time"

// Wait suspends the invocation until d has elapsed since the operation was
// first reached, re-checkpointing a WAIT record with the computed deadline
// (§4.3.2, C5.2). Unlike Step's retry backoff, Wait always suspends rather
// than blocking the process: the delay is meant to be arbitrary (seconds to
// days), and a real host is expected to re-invoke the handler at or after
// the deadline rather than hold a worker idle.
func (c *Context) Wait(name string, d time.Duration) error {
	id, existing, found := c.enter(KindWait, name)
	if d < time.Second {
		c.illegal(id, ErrSubSecondWait.Error())
	}

	if found {
		if existing.Status == StatusSucceeded {
			return nil
		}
		if existing.Wait != nil && !time.Now().Before(existing.Wait.Deadline) {
			c.rt.log.apply(OperationUpdate{
				OperationID: id, Kind: KindWait, Name: name, ParentID: c.selfID,
				Type: UpdateSucceed, Attempt: existing.Attempt,
			})
			return nil
		}
		c.rt.sched.blockUntil(c.std, nil)
		return nil
	}

	deadline := time.Now().Add(d)
	c.rt.log.apply(OperationUpdate{
		OperationID: id, Kind: KindWait, Name: name, ParentID: c.selfID,
		Type: UpdateStart, Attempt: 1, Wait: &WaitDetail{Deadline: deadline},
	})
	c.rt.sched.blockUntil(c.std, nil)
	return nil
}

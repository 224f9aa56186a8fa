package durable

import (
	"context"
	"fmt"
)

// ChildHandle is a spawned child context's handle, returned by Go. Calling
// Wait blocks the calling logical thread the same way any other durable
// operation does, so a suspended child correctly suspends its parent too.
type ChildHandle struct {
	rt     *runtime
	std    context.Context
	done   chan struct{}
	result string
	err    error
}

// Wait blocks until the child context completes or the invocation
// suspends/cancels.
func (h *ChildHandle) Wait() (string, error) {
	h.rt.sched.blockUntil(h.std, h.done)
	return h.result, h.err
}

// Go spawns a child context (C10): a nested logical thread with its own id
// numbering rooted at this call site, composing independently with the
// parent's own operations. The child's completion is itself checkpointed
// as a CONTEXT operation, so replay short-circuits an already-finished
// child without re-running it.
func (c *Context) Go(name string, fn func(child *Context) (string, error)) *ChildHandle {
	id, existing, found := c.enter(KindContext, name)

	h := &ChildHandle{rt: c.rt, std: c.std, done: make(chan struct{})}
	if found && existing.Status.Terminal() {
		switch existing.Status {
		case StatusSucceeded:
			if existing.Context != nil {
				h.result = existing.Context.ResultPayload
			}
		default:
			h.err = decodeErr(KindStepFailed, id, existing.ErrorDescriptor)
		}
		close(h.done)
		return h
	}

	if !found {
		c.rt.log.apply(OperationUpdate{
			OperationID: id, Kind: KindContext, Name: name, ParentID: c.selfID, Type: UpdateStart, Attempt: 1,
		})
	}

	child := &Context{std: c.std, rt: c.rt, ids: newIDAllocator(id), selfID: id}
	c.rt.sched.threadStart()

	go func() {
		defer c.rt.sched.threadEnd()
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			switch sig := r.(type) {
			case suspendSignal:
				// The child itself suspended; whoever raised it already
				// triggered the broadcast. Nothing further to do here.
			case fatalSignal:
				c.rt.sched.reportFatal(sig.err)
			default:
				c.rt.sched.reportFatal(newExecErr(KindIllegalOperation, id,
					fmt.Sprintf("child context %q panicked: %v", name, r), nil))
			}
		}()

		result, err := fn(child)
		if err != nil {
			descr := descriptorFromErr(err)
			c.rt.log.apply(OperationUpdate{
				OperationID: id, Kind: KindContext, Name: name, ParentID: c.selfID,
				Type: UpdateFail, Attempt: 1, ErrorDescriptor: descr,
			})
			h.err = err
		} else {
			c.rt.log.apply(OperationUpdate{
				OperationID: id, Kind: KindContext, Name: name, ParentID: c.selfID,
				Type: UpdateSucceed, Attempt: 1, ResultPayload: result,
				Context: &ContextDetail{ResultPayload: result},
			})
			h.result = result
		}
		close(h.done)
	}()

	return h
}

// Child runs fn as a child context and blocks for its result, the
// synchronous convenience form of Go+Wait.
func (c *Context) Child(name string, fn func(child *Context) (string, error)) (string, error) {
	return c.Go(name, fn).Wait()
}

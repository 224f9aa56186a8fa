package durable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestScheduler_ParkedThreadDoesNotSuspendWhileAsyncOpInFlight guards the
// Wait/Callback suspend path: parking a logical thread (what Wait and
// Callback do on every first encounter) must not force the whole execution
// to suspend while a sibling step thunk is still running on the worker
// pool, or that thunk's result would never reach the checkpoint log.
func TestScheduler_ParkedThreadDoesNotSuspendWhileAsyncOpInFlight(t *testing.T) {
	s := newScheduler()
	s.asyncStart()

	suspended := make(chan struct{})
	go func() {
		defer func() {
			if recover() != nil {
				close(suspended)
			}
		}()
		s.blockUntil(context.Background(), nil)
	}()

	select {
	case <-suspended:
		t.Fatal("blockUntil must not suspend the execution while an async step is still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	s.asyncEnd()
	s.triggerSuspend()

	select {
	case <-suspended:
	case <-time.After(time.Second):
		t.Fatal("blockUntil should unblock once the execution is actually suspended")
	}
}

// TestScheduler_BlockUntilReturnsWhenDoneFiresFirst confirms the ordinary,
// non-suspending path still works: a thread parked on a specific done
// channel resumes normally when that channel fires, without ever touching
// suspendCh.
func TestScheduler_BlockUntilReturnsWhenDoneFiresFirst(t *testing.T) {
	s := newScheduler()
	s.threadStart() // a sibling thread keeps activeThreads above zero

	done := make(chan struct{})
	returned := make(chan struct{})
	go func() {
		s.blockUntil(context.Background(), done)
		close(returned)
	}()

	close(done)
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("blockUntil should return once its done channel fires")
	}
}

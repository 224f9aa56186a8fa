package durable

import "testing"

import "github.com/stretchr/testify/require"

func TestIDAllocator_SequentialFromRoot(t *testing.T) {
	a := newIDAllocator("")
	require.Equal(t, "1", a.next())
	require.Equal(t, "2", a.next())
	require.Equal(t, "3", a.next())
}

func TestIDAllocator_SequentialFromParent(t *testing.T) {
	a := newIDAllocator("3")
	require.Equal(t, "3.1", a.next())
	require.Equal(t, "3.2", a.next())
}

func TestReplayCursor_LiveFromStart(t *testing.T) {
	c := newReplayCursor(false)
	require.False(t, c.isReplaying())
}

func TestReplayCursor_GoesLiveOnMissingRecord(t *testing.T) {
	log := newExecutionLog()
	c := newReplayCursor(true)
	require.True(t, c.isReplaying())

	_, found := c.getAndUpdateReplayState(log, "1")
	require.False(t, found)
	require.False(t, c.isReplaying())
}

func TestReplayCursor_StaysReplayingOnTerminalRecord(t *testing.T) {
	log := newExecutionLog()
	log.apply(OperationUpdate{OperationID: "1", Kind: KindStep, Name: "a", Type: UpdateSucceed, Attempt: 1})

	c := newReplayCursor(true)
	_, found := c.getAndUpdateReplayState(log, "1")
	require.True(t, found)
	require.True(t, c.isReplaying())
}

func TestReplayCursor_GoesLiveOnNonTerminalRecord(t *testing.T) {
	log := newExecutionLog()
	log.apply(OperationUpdate{OperationID: "1", Kind: KindStep, Name: "a", Type: UpdateStart, Attempt: 1})

	c := newReplayCursor(true)
	_, found := c.getAndUpdateReplayState(log, "1")
	require.True(t, found)
	require.False(t, c.isReplaying())
}

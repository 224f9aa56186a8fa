package durable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecutionLog_ApplyStartThenSucceed(t *testing.T) {
	log := newExecutionLog()

	log.apply(OperationUpdate{OperationID: "1", Kind: KindStep, Name: "charge", Type: UpdateStart, Attempt: 1})
	op, ok := log.get("1")
	require.True(t, ok)
	require.Equal(t, StatusStarted, op.Status)

	log.apply(OperationUpdate{OperationID: "1", Kind: KindStep, Name: "charge", Type: UpdateSucceed, Attempt: 1, ResultPayload: `"ok"`})
	op, ok = log.get("1")
	require.True(t, ok)
	require.Equal(t, StatusSucceeded, op.Status)
	require.Equal(t, `"ok"`, op.ResultPayload)
}

func TestExecutionLog_ApplyRetryThenFail(t *testing.T) {
	log := newExecutionLog()
	log.apply(OperationUpdate{OperationID: "1", Kind: KindStep, Name: "charge", Type: UpdateStart, Attempt: 1})
	log.apply(OperationUpdate{OperationID: "1", Kind: KindStep, Name: "charge", Type: UpdateRetry, Attempt: 1,
		ErrorDescriptor: &ErrorDescriptor{ErrorMessage: "timeout"}})

	op, _ := log.get("1")
	require.Equal(t, StatusPending, op.Status)

	log.apply(OperationUpdate{OperationID: "1", Kind: KindStep, Name: "charge", Type: UpdateFail, Attempt: 2,
		ErrorDescriptor: &ErrorDescriptor{ErrorMessage: "exhausted"}})
	op, _ = log.get("1")
	require.Equal(t, StatusFailed, op.Status)
	require.Equal(t, 2, op.Attempt)
	require.Equal(t, "exhausted", op.ErrorDescriptor.ErrorMessage)
}

func TestExecutionLog_GetClonesResult(t *testing.T) {
	log := newExecutionLog()
	log.apply(OperationUpdate{
		OperationID: "1", Kind: KindStep, Name: "charge", Type: UpdateSucceed, Attempt: 1,
		ErrorDescriptor: &ErrorDescriptor{StackFrames: []string{"a", "b"}},
	})
	op, _ := log.get("1")
	op.ErrorDescriptor.StackFrames[0] = "mutated"

	again, _ := log.get("1")
	require.Equal(t, "a", again.ErrorDescriptor.StackFrames[0])
}

func TestExecutionLog_ByName(t *testing.T) {
	log := newExecutionLog()
	log.apply(OperationUpdate{OperationID: "1", Kind: KindStep, Name: "charge", Type: UpdateStart, Attempt: 1})
	log.apply(OperationUpdate{OperationID: "2", Kind: KindStep, Name: "notify", Type: UpdateStart, Attempt: 1})

	op, ok := log.byName("notify")
	require.True(t, ok)
	require.Equal(t, "2", op.ID)

	_, ok = log.byName("missing")
	require.False(t, ok)
}

func TestExecutionLog_DrainPendingClearsQueue(t *testing.T) {
	log := newExecutionLog()
	log.apply(OperationUpdate{OperationID: "1", Kind: KindStep, Name: "charge", Type: UpdateStart, Attempt: 1})
	log.apply(OperationUpdate{OperationID: "1", Kind: KindStep, Name: "charge", Type: UpdateSucceed, Attempt: 1})

	pending := log.drainPending()
	require.Len(t, pending, 2)
	require.Empty(t, log.drainPending())
}

func TestExecutionLog_SeedIsIdempotentOnOrder(t *testing.T) {
	log := newExecutionLog()
	log.seed([]Operation{{ID: "1", Kind: KindExecution, Name: "execution", Status: StatusStarted}})
	log.seed([]Operation{{ID: "1", Kind: KindExecution, Name: "execution", Status: StatusSucceeded, ResultPayload: "done"}})

	all := log.all()
	require.Len(t, all, 1)
	require.Equal(t, StatusSucceeded, all[0].Status)
}

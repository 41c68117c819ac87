package safekernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcess_StackReserveStartsFull(t *testing.T) {
	p := newProcess(1, 1024)
	require.Equal(t, uint32(1024), p.StackReserve())
}

func TestProcess_StackReserveShrinksAfterTouch(t *testing.T) {
	p := newProcess(1, 1024)
	p.touchStack(100)
	require.Equal(t, uint32(1024-100), p.StackReserve())

	// A shallower subsequent call must not grow the reserve back: the
	// high-water mark only moves down.
	p.touchStack(40)
	require.Equal(t, uint32(1024-100), p.StackReserve())

	p.touchStack(200)
	require.Equal(t, uint32(1024-200), p.StackReserve())
}

func TestProcess_FailureCountersCountTotalAndPerCause(t *testing.T) {
	p := newProcess(1, 64)
	p.recordFailure(CauseMPUViolation)
	p.recordFailure(CauseMPUViolation)
	p.recordFailure(CauseUserAbort)

	require.Equal(t, uint32(3), p.TotalFailures())
	require.Equal(t, uint32(2), p.Failures(CauseMPUViolation))
	require.Equal(t, uint32(1), p.Failures(CauseUserAbort))
	require.Equal(t, uint32(0), p.Failures(CauseDeadlineExceeded))
}

func TestProcess_SuspendFlag(t *testing.T) {
	p := newProcess(1, 64)
	require.False(t, p.IsSuspended())
	p.Suspend()
	require.True(t, p.IsSuspended())
}

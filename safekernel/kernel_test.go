package safekernel

import (
	"testing"

	"github.com/embedded-go/rtkernel/kernel"
	"github.com/stretchr/testify/require"
)

func TestKernel_RegisterUserTaskAndTick(t *testing.T) {
	k := NewKernel(2)

	var runs int
	eid, err := k.CreateEvent(10, 10, 5, 0)
	require.NoError(t, err)
	require.NoError(t, k.RegisterUserTask(eid, func(pid int, param int32) int32 {
		runs++
		return 0
	}, 1, 0, 0))
	k.Start()

	for i := 0; i < 10; i++ {
		k.Tick()
	}
	require.Equal(t, 1, runs)
}

func TestKernel_TerminateTaskRecordsUserAbort(t *testing.T) {
	k := NewKernel(1)

	eid, err := k.CreateEvent(0, 0, 5, 0)
	require.NoError(t, err)
	require.NoError(t, k.RegisterUserTask(eid, func(pid int, param int32) int32 {
		TerminateTask(42)
		panic("unreachable")
	}, 1, 0, 0))
	k.Start()

	ok, err := k.TriggerEvent(eid, 0)
	require.NoError(t, err)
	require.True(t, ok)

	failures, err := k.GetTaskFailures(1, CauseUserAbort)
	require.NoError(t, err)
	require.Equal(t, uint32(1), failures)
}

func TestKernel_MPUViolationContainsFault(t *testing.T) {
	k := NewKernel(3)

	eid, err := k.CreateEvent(0, 0, 5, 0)
	require.NoError(t, err)
	// PID 2's task reaches for an address inside PID 3's region.
	base3, _ := k.region(3)
	k.WriteOwnMemory(3, base3, []byte{0x42})

	require.NoError(t, k.RegisterUserTask(eid, func(pid int, param int32) int32 {
		k.WriteOwnMemory(pid, base3, []byte{0xff}) // pid here is 2; base3 is out of its region
		return 0
	}, 2, 0, 0))
	k.Start()

	ok, err := k.TriggerEvent(eid, 0)
	require.NoError(t, err)
	require.True(t, ok)

	total, err := k.GetTotalTaskFailures(2)
	require.NoError(t, err)
	require.Equal(t, uint32(1), total)
	mpu, err := k.GetTaskFailures(2, CauseMPUViolation)
	require.NoError(t, err)
	require.Equal(t, uint32(1), mpu)

	// PID 3's memory must be unchanged.
	unchanged := k.ReadOwnMemory(3, base3, 1)
	require.Equal(t, byte(0x42), unchanged[0])
}

func TestKernel_ProcessSuspensionDiscardsActivations(t *testing.T) {
	k := NewKernel(3)

	var ran bool
	eid, err := k.CreateEvent(0, 0, 5, 0)
	require.NoError(t, err)
	require.NoError(t, k.RegisterUserTask(eid, func(pid int, param int32) int32 {
		ran = true
		return 0
	}, 2, 0, 0))
	require.NoError(t, k.GrantPermissionSuspendProcess(3, 2))
	k.Start()

	require.NoError(t, k.SuspendProcess(3, 2))
	suspended, err := k.IsProcessSuspended(2)
	require.NoError(t, err)
	require.True(t, suspended)

	ok, err := k.TriggerEvent(eid, 0)
	require.NoError(t, err)
	require.False(t, ok, "activating a task whose process is suspended must be discarded")
	require.False(t, ran)
}

func TestKernel_SuspendProcessRequiresGrant(t *testing.T) {
	k := NewKernel(3)
	err := k.SuspendProcess(3, 2)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestKernel_RunTaskCrossProcessRequiresGrant(t *testing.T) {
	k := NewKernel(3)

	eid, err := k.CreateEvent(0, 0, 5, 0)
	require.NoError(t, err)
	require.NoError(t, k.RegisterUserTask(eid, func(pid int, param int32) int32 {
		return param * 2
	}, 2, 0, 0))

	cfg := UserTaskConfig{EventID: eid}

	_, err = k.RunTask(cfg, 21, 3)
	require.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, k.GrantPermissionRunTask(3, 2))
	k.Start()

	result, err := k.RunTask(cfg, 21, 3)
	require.NoError(t, err)
	require.Equal(t, int32(42), result)
}

func TestKernel_GrantsLockedAfterStart(t *testing.T) {
	k := NewKernel(2)
	k.Start()
	require.ErrorIs(t, k.GrantPermissionRunTask(1, 2), ErrBadArgument)
	require.ErrorIs(t, k.GrantPermissionSuspendProcess(1, 2), ErrBadArgument)
}

func TestKernel_InitTaskRunsOnceAtStart(t *testing.T) {
	k := NewKernel(1)
	var runs int
	require.NoError(t, k.RegisterInitTask(func(pid int, param int32) int32 {
		runs++
		return 0
	}, 1, 5, 0, 0))

	require.Zero(t, runs)
	k.Start()
	require.Equal(t, 1, runs)
}

func TestKernel_TriggerEventRequiresMinPID(t *testing.T) {
	k := NewKernel(2)
	eid, err := k.CreateEvent(0, 0, 5, 2)
	require.NoError(t, err)
	require.NoError(t, k.RegisterUserTask(eid, func(int, int32) int32 { return 0 }, 1, 0, 0))
	k.Start()

	_, err = k.TriggerEvent(eid, 1)
	require.ErrorIs(t, err, ErrPermissionDenied)

	ok, err := k.TriggerEvent(eid, 2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestKernel_StackReserveReflectsDepthHint(t *testing.T) {
	k := NewKernel(1, WithStackSize(512))

	eid, err := k.CreateEvent(0, 0, 5, 0)
	require.NoError(t, err)
	require.NoError(t, k.RegisterUserTask(eid, func(int, int32) int32 { return 0 }, 1, 0, 200))
	k.Start()

	before, err := k.GetStackReserve(1)
	require.NoError(t, err)
	require.Equal(t, uint32(512), before)

	ok, err := k.TriggerEvent(eid, 0)
	require.NoError(t, err)
	require.True(t, ok)

	after, err := k.GetStackReserve(1)
	require.NoError(t, err)
	require.Equal(t, uint32(512-200), after)
}

func TestKernel_RegisterOSTaskIsUnprotected(t *testing.T) {
	k := NewKernel(1)
	var ran bool
	eid, err := k.CreateEvent(0, 0, 5, 0)
	require.NoError(t, err)
	require.NoError(t, k.RegisterOSTask(eid, func() { ran = true }))
	k.Start()

	ok, err := k.TriggerEvent(eid, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ran)
}

func TestKernel_EngineAccessorExposesPriorityGate(t *testing.T) {
	k := NewKernel(1)
	require.Equal(t, kernel.PriorityNone, k.Engine().Controller().CurrentPriority())
}

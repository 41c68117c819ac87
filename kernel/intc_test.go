package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestController_SuspendResumeIdempotent(t *testing.T) {
	c := newController(NewSlotPool(MaxSlots))

	prior := c.SuspendUpTo(5)
	require.Equal(t, PriorityNone, prior)
	require.Equal(t, Priority(5), c.CurrentPriority())

	// Raising to a lower-or-equal level while already above it is a no-op.
	prior2 := c.SuspendUpTo(3)
	require.Equal(t, Priority(5), prior2)
	require.Equal(t, Priority(5), c.CurrentPriority())

	c.ResumeDownTo(prior)
	require.Equal(t, PriorityNone, c.CurrentPriority())
}

func TestController_DrainDispatchesHighestFirst(t *testing.T) {
	pool := NewSlotPool(MaxSlots)
	c := newController(pool)

	var order []int
	mustRegister := func(id int, pri Priority) {
		require.NoError(t, c.registerHandler(id, func() { order = append(order, id) }, pri, true, true))
	}
	mustRegister(0, 5)
	mustRegister(1, 10)
	mustRegister(2, 3)

	require.True(t, pool.request(0))
	require.True(t, pool.request(1))
	require.True(t, pool.request(2))

	c.kick()

	require.Equal(t, []int{1, 0, 2}, order)
	require.False(t, pool.IsPending(0))
	require.False(t, pool.IsPending(1))
	require.False(t, pool.IsPending(2))
}

func TestController_NonPreemptableHandlerBlocksReentrantDispatch(t *testing.T) {
	pool := NewSlotPool(MaxSlots)
	c := newController(pool)

	var order []int
	require.NoError(t, c.registerHandler(0, func() {
		order = append(order, 0)
		// Attempting to activate a higher-priority slot from within a
		// non-preemptable handler must not dispatch it until this handler
		// returns, since invoke pins the register to PriorityMax for its
		// duration.
		pool.request(1)
		c.kick()
	}, 5, false, true))
	require.NoError(t, c.registerHandler(1, func() { order = append(order, 1) }, 10, true, true))

	require.True(t, pool.request(0))
	c.kick()

	require.Equal(t, []int{0, 1}, order, "slot 1 must not run until the non-preemptable handler at slot 0 returns")
}

func TestController_PreemptableHandlerAllowsReentrantDispatch(t *testing.T) {
	pool := NewSlotPool(MaxSlots)
	c := newController(pool)

	var order []int
	require.NoError(t, c.registerHandler(0, func() {
		order = append(order, 0)
		pool.request(1)
		c.kick()
		order = append(order, 100)
	}, 5, true, true))
	require.NoError(t, c.registerHandler(1, func() { order = append(order, 1) }, 10, true, true))

	require.True(t, pool.request(0))
	c.kick()

	require.Equal(t, []int{0, 1, 100}, order, "a preemptable handler must be interrupted by a higher-priority activation")
}

func TestController_UnhandledVectorReportsAndPanicsInDebugMode(t *testing.T) {
	pool := NewSlotPool(MaxSlots)
	c := newController(pool)

	prevDebug := Debug.Load()
	Debug.Store(true)
	defer Debug.Store(prevDebug)
	UnhandledVector.Store(-1)

	require.NoError(t, c.registerHandler(2, func() {}, 5, true, true))
	// Overwrite the registration to simulate a pool-backed vector with no
	// installed handler is not directly constructible via the public API, so
	// instead exercise the codepath through a never-registered vector index.
	require.Panics(t, func() {
		c.invoke(7)
	})
	require.Equal(t, int32(7), UnhandledVector.Load())
}

func TestController_RegisterHandlerValidation(t *testing.T) {
	c := newController(NewSlotPool(MaxSlots))

	require.ErrorIs(t, c.registerHandler(-1, func() {}, 5, true, true), ErrBadArgument)
	require.ErrorIs(t, c.registerHandler(300, func() {}, 5, true, true), ErrBadArgument)
	require.ErrorIs(t, c.registerHandler(0, func() {}, 0, true, true), ErrBadPriority)
	require.ErrorIs(t, c.registerHandler(0, func() {}, 16, true, true), ErrBadPriority)
	require.ErrorIs(t, c.registerHandler(0, nil, 5, true, true), ErrBadArgument)
}

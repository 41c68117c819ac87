package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlotPool_RequestReleaseCycle(t *testing.T) {
	p := NewSlotPool(MaxSlots)
	require.Equal(t, MaxSlots, p.Capacity())

	require.False(t, p.IsPending(3))
	require.True(t, p.request(3), "first request on an idle slot must be accepted")
	require.True(t, p.IsPending(3))

	require.False(t, p.request(3), "a second request against a pending slot must be rejected")
	require.True(t, p.IsPending(3))

	p.release(3)
	require.False(t, p.IsPending(3))
	require.True(t, p.request(3), "a released slot must accept a new request")
}

func TestSlotPool_SiblingSlotsIndependent(t *testing.T) {
	p := NewSlotPool(MaxSlots)

	require.True(t, p.request(0))
	require.True(t, p.request(1))
	require.True(t, p.request(4)) // second register

	require.True(t, p.IsPending(0))
	require.True(t, p.IsPending(1))
	require.True(t, p.IsPending(4))
	require.False(t, p.IsPending(2))

	p.release(1)
	require.True(t, p.IsPending(0), "releasing slot 1 must not disturb slot 0")
	require.False(t, p.IsPending(1))
	require.True(t, p.IsPending(4), "releasing slot 1 must not disturb the other register")
}

func TestNewSlotPool_ClampsInvalidCapacity(t *testing.T) {
	require.Equal(t, MaxSlots, NewSlotPool(0).Capacity())
	require.Equal(t, MaxSlots, NewSlotPool(-1).Capacity())
	require.Equal(t, MaxSlots, NewSlotPool(MaxSlots+1).Capacity())
	require.Equal(t, 3, NewSlotPool(3).Capacity())
}

package kernel

import "errors"

// Sentinel errors for the kernel's closed error-code enum, minus no_error
// (the Go zero value: a nil error) and permission_denied (defined in the
// safekernel package, which is the only variant with permission grants).
var (
	// ErrBadArgument reports a nil task body, an invalid pointer, or any
	// other structurally invalid argument to a registration or syscall API.
	ErrBadArgument = errors.New("kernel: bad argument")

	// ErrOutOfSlots reports that the task slot pool has no free capacity.
	ErrOutOfSlots = errors.New("kernel: out of slots")

	// ErrBadPriority reports a priority outside 1..15.
	ErrBadPriority = errors.New("kernel: bad priority")

	// ErrBadCycle reports a cycle or first-activation offset that does not
	// fit in 30 bits.
	ErrBadCycle = errors.New("kernel: bad cycle")

	// ErrNotRegistered reports a reference to a task, vector, or syscall
	// index that was never registered.
	ErrNotRegistered = errors.New("kernel: not registered")
)

// Registration after Engine.Start reports ErrBadArgument: the closed error
// enum has no dedicated code for it, and runtime re-registration is
// technically feasible but intentionally unsupported (see DESIGN.md Open
// Question 1) — it is treated the same as any other configuration error
// that must be fixed before Start, not as a distinct failure mode.

package safekernel

import (
	"errors"

	"github.com/embedded-go/rtkernel/kernel"
)

// Re-exported sentinels from kernel, since registration/activation errors in
// the safe variant are the same closed enum plus one additional code this
// variant alone can produce.
var (
	ErrBadArgument   = kernel.ErrBadArgument
	ErrOutOfSlots    = kernel.ErrOutOfSlots
	ErrBadPriority   = kernel.ErrBadPriority
	ErrBadCycle      = kernel.ErrBadCycle
	ErrNotRegistered = kernel.ErrNotRegistered

	// ErrPermissionDenied reports a privileged call whose target PID was
	// never granted to the calling PID during initialization. Grants are
	// write-once: none can be issued once the kernel has started.
	ErrPermissionDenied = errors.New("safekernel: permission denied")
)

package safekernel

import (
	"sync"

	"github.com/embedded-go/rtkernel/kernel"
)

// ConformanceClass is one of the three system-call conformance classes the
// reference kernel's syscall gate distinguishes between.
type ConformanceClass int

const (
	// ConformanceBasic calls are reserved for the lowest-level primitives
	// (e.g. terminate_task): on real hardware they are raw assembly, fully
	// responsible for their own stack handling and return. In this
	// simulation they differ from Full only in documented intent — both
	// run at the caller's prevailing priority — since Go gives every call a
	// managed stack regardless of conformance class.
	ConformanceBasic ConformanceClass = iota

	// ConformanceSimple calls run with external interrupts disabled (the
	// priority register pinned to PriorityMax for the call's duration) and
	// must complete in O(µs); used for short reads/writes of kernel state.
	ConformanceSimple

	// ConformanceFull calls run under normal conditions, preemptable by
	// higher-priority tasks; used for non-time-critical services such as
	// run_task.
	ConformanceFull
)

// SyscallHandler is a system-call implementation: callerPID identifies the
// invoking task's owning process, args is the call's argument payload.
type SyscallHandler func(callerPID int, args []byte) (int32, error)

type syscallDescriptor struct {
	handler    SyscallHandler
	class      ConformanceClass
	registered bool
}

// syscallTableSize is the reference implementation's typical descriptor
// table capacity: a fixed-size array, not a growable one, so a bad index
// is rejected in constant time rather than walking a table.
const syscallTableSize = 64

// SyscallGate is C6: a fixed-size descriptor table dispatched by call
// index, read-only after boot.
type SyscallGate struct {
	k     *Kernel
	mu    sync.Mutex
	table [syscallTableSize]syscallDescriptor
}

// Register installs a descriptor at index. Must be called before the
// owning Kernel's Start.
func (g *SyscallGate) Register(index int, class ConformanceClass, handler SyscallHandler) error {
	if index < 0 || index >= len(g.table) {
		return ErrBadArgument
	}
	if handler == nil {
		return ErrBadArgument
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.table[index] = syscallDescriptor{handler: handler, class: class, registered: true}
	return nil
}

// Invoke dispatches call index on behalf of callerPID, applying the
// descriptor's conformance-class environment around the handler. An index
// with no registered descriptor aborts the calling task as an
// unknown-system-call failure, mirroring a real CPU's unimplemented-trap
// exception.
func (g *SyscallGate) Invoke(index int, callerPID int, args []byte) (int32, error) {
	if index < 0 || index >= len(g.table) {
		getLogger().Notice().Int("caller", callerPID).Int("index", index).
			Log("safekernel: syscall index out of range")
		faultCurrentTask(CauseUnknownSyscall)
	}
	g.mu.Lock()
	d := g.table[index]
	g.mu.Unlock()
	if !d.registered {
		getLogger().Notice().Int("caller", callerPID).Int("index", index).
			Log("safekernel: syscall index not registered")
		faultCurrentTask(CauseUnknownSyscall)
	}

	if d.class == ConformanceSimple {
		prior := g.k.engine.SuspendAllInterruptsByPriority(kernel.PriorityMax)
		defer g.k.engine.ResumeAllInterruptsByPriority(prior)
	}
	return d.handler(callerPID, args)
}

package safekernel

import (
	"math"
	"sync"
	"sync/atomic"
)

// FailureCause enumerates the per-process, per-cause failure counters the
// kernel tracks for a task's fault history.
type FailureCause int

const (
	CauseDeadlineExceeded FailureCause = iota
	CauseUserAbort
	CauseMPUViolation
	CausePrivilegedInstruction
	CauseMisalignedAccess
	CauseUnknownSyscall
	causeCount
)

// fillPattern is the boot-time stack fill byte; StackReserve scans for the
// first byte that no longer matches it.
const fillPattern byte = 0xaa

// Address is an offset into a process's memory region, standing in for the
// reference hardware's flat physical address space that the MPU's region
// descriptors carve up.
type Address uint32

// Process is one memory-protected process: PID 0 is reserved for the
// kernel and OS tasks, and is never constructed by newProcess.
type Process struct {
	pid   int
	stack []byte

	totalFailures atomic.Uint32
	causes        [causeCount]atomic.Uint32
	suspended     atomic.Bool

	// mu guards stack: StackReserve runs concurrently with a running task's
	// own stack usage.
	mu sync.Mutex
}

func newProcess(pid, stackSize int) *Process {
	stack := make([]byte, stackSize)
	for i := range stack {
		stack[i] = fillPattern
	}
	return &Process{pid: pid, stack: stack}
}

// PID returns the process's identifier.
func (p *Process) PID() int { return p.pid }

// StackReserve scans the stack region from the bottom (index 0, the
// lowest-address end the reference hardware's stack grows toward) for the
// first byte that no longer matches the boot fill pattern, and returns the
// count of bytes never touched. The value only ever falls or holds steady
// between calls, the same way a real stack's high-water mark never
// recovers once a deeper call has reached it.
func (p *Process) StackReserve() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, b := range p.stack {
		if b != fillPattern {
			return uint32(i)
		}
	}
	return uint32(len(p.stack))
}

// touchStack marks the deepest depth bytes of the stack region as used,
// standing in for a real CPU stack pointer's descent during a task's
// execution — a Go simulation has no observable call stack of its own to
// scan. Index 0 is the bottom (the lowest-address end a descending stack
// pointer approaches on deep recursion), so depth bytes of usage touch
// indices [len(stack)-depth, len(stack)), leaving the untouched prefix at
// the bottom as StackReserve's fill-pattern count. depth is clamped to the
// stack's size.
func (p *Process) touchStack(depth int) {
	if depth <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if depth > len(p.stack) {
		depth = len(p.stack)
	}
	for i := len(p.stack) - depth; i < len(p.stack); i++ {
		p.stack[i] = 0
	}
}

// incSaturating32 increments c by one, clamping at math.MaxUint32 instead
// of wrapping, so a long-running failure counter never rolls back over to
// a deceptively small value.
func incSaturating32(c *atomic.Uint32) {
	for {
		old := c.Load()
		if old == math.MaxUint32 {
			return
		}
		if c.CompareAndSwap(old, old+1) {
			return
		}
	}
}

// recordFailure increments both the total and per-cause counters.
func (p *Process) recordFailure(cause FailureCause) {
	incSaturating32(&p.totalFailures)
	incSaturating32(&p.causes[cause])
	getLogger().Notice().Int("pid", p.pid).Int("cause", int(cause)).Log("safekernel: task failure recorded")
}

// TotalFailures returns the cumulative failure counter.
func (p *Process) TotalFailures() uint32 { return p.totalFailures.Load() }

// Failures returns the per-cause failure counter.
func (p *Process) Failures(cause FailureCause) uint32 { return p.causes[cause].Load() }

// Suspend marks the process suspended: subsequent activations of any of its
// tasks are silently discarded by the tick handler and the software
// activation path.
func (p *Process) Suspend() { p.suspended.Store(true) }

// IsSuspended reports the process's suspended flag.
func (p *Process) IsSuspended() bool { return p.suspended.Load() }

package safekernel

import (
	"sync"
	"sync/atomic"

	"github.com/embedded-go/rtkernel/kernel"
)

// EventID identifies an event slot created by CreateEvent, to be bound to
// exactly one task body by a following RegisterUserTask, RegisterOSTask, or
// RegisterInitTask call. Splitting allocation from binding lets the cycle,
// priority, and trigger permission of a slot be fixed before the code that
// will run in it is known, mirroring how the reference kernel's OIL-style
// configuration declares events and tasks as separate objects.
type EventID int

// UserTaskBody is a user or init task's entry point. pid is the owning
// process; param carries the caller-supplied argument for a RunTask
// cross-process synchronous invocation, and is always 0 for a tick- or
// software-triggered activation.
type UserTaskBody func(pid int, param int32) int32

type eventSlot struct {
	cycleMS       uint32
	firstOffsetMS uint32
	priority      kernel.Priority
	minPID        int

	bound     bool
	ownerPID  int // 0 for OS tasks
	taskID    kernel.TaskID
	proc      *Process // nil for OS tasks
	body      UserTaskBody
	maxExecUS uint32
	depthHint int
}

// Option configures a Kernel at construction, following the same
// functional-option shape as kernel.Option.
type Option func(*kernelOptions)

type kernelOptions struct {
	stackSize  int
	regionSize int
	engineOpts []kernel.Option
}

// WithStackSize overrides the per-process simulated stack size (default
// 4096 bytes).
func WithStackSize(n int) Option {
	return func(o *kernelOptions) { o.stackSize = n }
}

// WithMemoryRegionSize overrides the per-process simulated memory region
// size (default 4096 bytes).
func WithMemoryRegionSize(n int) Option {
	return func(o *kernelOptions) { o.regionSize = n }
}

// WithSlotCapacity overrides the underlying kernel.Engine's slot capacity.
func WithSlotCapacity(n int) Option {
	return func(o *kernelOptions) { o.engineOpts = append(o.engineOpts, kernel.WithSlotCapacity(n)) }
}

// Kernel is the safe variant's C5/C6 layer: processes, a two-phase event/
// task registration API, permission grants, and checked cross-process
// memory access, all wrapping one bare kernel.Engine rather than
// reimplementing scheduling.
type Kernel struct {
	engine *kernel.Engine

	nproc      int
	regionSize int
	processes  []*Process // index 0 unused; 1..nproc
	memory     []byte     // flat simulated address space, regionSize bytes per PID incl. 0

	mu      sync.Mutex
	events  []*eventSlot
	started atomic.Bool

	grantsLocked  atomic.Bool
	runGrants     map[[2]int]bool
	suspendGrants map[[2]int]bool

	initEvents []EventID

	gate SyscallGate
}

// NewKernel constructs a Kernel for PIDs 1..nproc (PID 0 is reserved for
// the kernel itself and its OS tasks).
func NewKernel(nproc int, opts ...Option) *Kernel {
	cfg := kernelOptions{stackSize: 4096, regionSize: 4096}
	for _, opt := range opts {
		opt(&cfg)
	}

	k := &Kernel{
		engine:        kernel.NewEngine(cfg.engineOpts...),
		nproc:         nproc,
		regionSize:    cfg.regionSize,
		processes:     make([]*Process, nproc+1),
		memory:        make([]byte, (nproc+1)*cfg.regionSize),
		runGrants:     make(map[[2]int]bool),
		suspendGrants: make(map[[2]int]bool),
	}
	for pid := 1; pid <= nproc; pid++ {
		k.processes[pid] = newProcess(pid, cfg.stackSize)
	}
	k.gate.k = k
	return k
}

// Engine exposes the underlying bare kernel, for tests and for wiring a
// tick source / raw interrupt handlers alongside the safe variant's own
// API.
func (k *Kernel) Engine() *kernel.Engine { return k.engine }

// Syscalls exposes the system-call gate (C6).
func (k *Kernel) Syscalls() *SyscallGate { return &k.gate }

func (k *Kernel) process(pid int) (*Process, error) {
	if pid < 1 || pid > k.nproc {
		return nil, ErrBadArgument
	}
	return k.processes[pid], nil
}

// region returns the [base, limit) address range owned by pid (pid 0
// included, for OS/kernel-owned memory).
func (k *Kernel) region(pid int) (Address, Address) {
	base := Address(pid * k.regionSize)
	return base, base + Address(k.regionSize)
}

// CheckUserReadPtr and CheckUserWritePtr validate that [addr, addr+size)
// lies entirely within pid's own mapped region. This simulation does not
// model shared read-only ROM a real MPU config might also grant; every
// process's read access is scoped to its own region, same as its write
// access.
func (k *Kernel) CheckUserReadPtr(pid int, addr Address, size uint32) bool {
	return k.checkRange(pid, addr, size)
}

func (k *Kernel) CheckUserWritePtr(pid int, addr Address, size uint32) bool {
	return k.checkRange(pid, addr, size)
}

func (k *Kernel) checkRange(pid int, addr Address, size uint32) bool {
	if pid < 0 || pid > k.nproc {
		return false
	}
	base, limit := k.region(pid)
	end := uint64(addr) + uint64(size)
	return uint64(addr) >= uint64(base) && end <= uint64(limit)
}

// ReadOwnMemory and WriteOwnMemory are the checked memory accessors a task
// body uses instead of touching Go memory directly: a failed range check
// terminates the calling task as an MPU-violation failure, containing a
// stray pointer the way a real MPU abort would rather than letting it
// silently corrupt another process's region. Must be called from within a
// running task body installed by RegisterUserTask/RegisterInitTask.
func (k *Kernel) ReadOwnMemory(pid int, addr Address, size uint32) []byte {
	if !k.CheckUserReadPtr(pid, addr, size) {
		faultCurrentTask(CauseMPUViolation)
	}
	out := make([]byte, size)
	copy(out, k.memory[addr:uint32(addr)+size])
	return out
}

func (k *Kernel) WriteOwnMemory(pid int, addr Address, data []byte) {
	if !k.CheckUserWritePtr(pid, addr, uint32(len(data))) {
		faultCurrentTask(CauseMPUViolation)
	}
	copy(k.memory[addr:], data)
}

// CreateEvent allocates an unbound event slot. Must be called before
// Start.
func (k *Kernel) CreateEvent(cycleMS, firstOffsetMS uint32, priority kernel.Priority, minPID int) (EventID, error) {
	if priority < kernel.PriorityMin || priority > kernel.PriorityMax {
		return -1, ErrBadPriority
	}
	if minPID < 0 || minPID > k.nproc {
		return -1, ErrBadArgument
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started.Load() {
		return -1, ErrBadArgument
	}
	id := EventID(len(k.events))
	k.events = append(k.events, &eventSlot{
		cycleMS:       cycleMS,
		firstOffsetMS: firstOffsetMS,
		priority:      priority,
		minPID:        minPID,
	})
	return id, nil
}

func (k *Kernel) slot(eid EventID) (*eventSlot, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if eid < 0 || int(eid) >= len(k.events) {
		return nil, ErrNotRegistered
	}
	return k.events[eid], nil
}

// RegisterUserTask binds body to eid as a memory-protected, fault-bounded
// user task owned by pid. depthHint is the worst-case stack depth the body
// is expected to reach; see Process.touchStack.
func (k *Kernel) RegisterUserTask(eid EventID, body UserTaskBody, pid int, maxExecUS uint32, depthHint int) error {
	s, err := k.slot(eid)
	if err != nil {
		return err
	}
	proc, err := k.process(pid)
	if err != nil {
		return err
	}
	if body == nil {
		return ErrBadArgument
	}

	k.mu.Lock()
	if s.bound {
		k.mu.Unlock()
		return ErrBadArgument
	}
	s.bound, s.ownerPID, s.proc, s.body, s.maxExecUS, s.depthHint = true, pid, proc, body, maxExecUS, depthHint
	k.mu.Unlock()

	wrapped := func() {
		runTrampoline(proc, func() int32 { return body(pid, 0) }, maxExecUS, depthHint)
	}
	gate := func() bool { return !proc.IsSuspended() }

	taskID, err := k.engine.RegisterTask(kernel.TaskDescriptor{
		Body:     wrapped,
		CycleMS:  s.cycleMS,
		Priority: s.priority,
		Gate:     gate,
	}, s.firstOffsetMS)
	if err != nil {
		k.mu.Lock()
		s.bound = false
		k.mu.Unlock()
		return err
	}
	k.mu.Lock()
	s.taskID = taskID
	k.mu.Unlock()
	return nil
}

// RegisterOSTask binds body to eid as trusted kernel-owned code (PID 0): no
// memory protection, no execution budget, no fault boundary. The
// fault-catching trampoline is reserved for user tasks; OS code is assumed
// to already be correct and privileged.
func (k *Kernel) RegisterOSTask(eid EventID, body func()) error {
	s, err := k.slot(eid)
	if err != nil {
		return err
	}
	if body == nil {
		return ErrBadArgument
	}

	k.mu.Lock()
	if s.bound {
		k.mu.Unlock()
		return ErrBadArgument
	}
	s.bound, s.ownerPID = true, 0
	k.mu.Unlock()

	wrapped := func() { runOSTrampoline(body) }
	taskID, err := k.engine.RegisterTask(kernel.TaskDescriptor{
		Body:     wrapped,
		CycleMS:  s.cycleMS,
		Priority: s.priority,
	}, s.firstOffsetMS)
	if err != nil {
		k.mu.Lock()
		s.bound = false
		k.mu.Unlock()
		return err
	}
	k.mu.Lock()
	s.taskID = taskID
	k.mu.Unlock()
	return nil
}

// RegisterInitTask registers a one-shot user task (cycle 0, offset 0) that
// Start activates exactly once, standing in for the reference kernel's
// boot-time initialization tasks.
func (k *Kernel) RegisterInitTask(body UserTaskBody, pid int, priority kernel.Priority, maxExecUS uint32, depthHint int) error {
	eid, err := k.CreateEvent(0, 0, priority, 0)
	if err != nil {
		return err
	}
	if err := k.RegisterUserTask(eid, body, pid, maxExecUS, depthHint); err != nil {
		return err
	}
	k.mu.Lock()
	k.initEvents = append(k.initEvents, eid)
	k.mu.Unlock()
	return nil
}

// Start closes registration, starts the underlying engine, and fires every
// registered init task once.
func (k *Kernel) Start() {
	k.started.Store(true)
	k.grantsLocked.Store(true)
	k.engine.Start()
	k.mu.Lock()
	initEvents := append([]EventID(nil), k.initEvents...)
	k.mu.Unlock()
	for _, eid := range initEvents {
		k.TriggerEvent(eid, 0)
	}
}

// Tick drives the due-time scheduler, same as kernel.Engine.Tick.
func (k *Kernel) Tick() { k.engine.Tick() }

// TriggerEvent activates the task bound to eid on behalf of callerPID,
// which must meet or exceed the event's configured minimum triggering PID
// — this kernel's convention is that a higher PID carries higher
// privilege, so only sufficiently privileged callers may raise an event.
func (k *Kernel) TriggerEvent(eid EventID, callerPID int) (bool, error) {
	s, err := k.slot(eid)
	if err != nil {
		return false, err
	}
	if !s.bound {
		return false, ErrNotRegistered
	}
	if callerPID < s.minPID {
		return false, ErrPermissionDenied
	}
	return k.engine.ActivateTask(s.taskID), nil
}

// UserTaskConfig identifies a registered user task for RunTask.
type UserTaskConfig struct {
	EventID EventID
}

// RunTask is a full-conformance-class, cross-process synchronous
// invocation of a user task, gated by a standing GrantPermissionRunTask
// grant. It runs the task's trampoline directly, bypassing the slot pool
// and activation accounting entirely — the caller blocks until the target
// task body returns.
func (k *Kernel) RunTask(cfg UserTaskConfig, param int32, callerPID int) (int32, error) {
	s, err := k.slot(cfg.EventID)
	if err != nil {
		return 0, err
	}
	if !s.bound || s.proc == nil {
		return 0, ErrNotRegistered
	}
	if !k.runGrants[[2]int{callerPID, s.ownerPID}] {
		return 0, ErrPermissionDenied
	}
	if s.proc.IsSuspended() {
		return 0, ErrBadArgument
	}
	return runTrampoline(s.proc, func() int32 { return s.body(s.ownerPID, param) }, s.maxExecUS, s.depthHint), nil
}

// GetStackReserve reports the unused portion of pid's simulated stack.
// Implemented only in the safe variant, since the bare kernel has no
// per-process stack of its own to measure (see DESIGN.md Open Question 3).
func (k *Kernel) GetStackReserve(pid int) (uint32, error) {
	proc, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	return proc.StackReserve(), nil
}

// GetTotalTaskFailures reports the cumulative failure count for pid.
func (k *Kernel) GetTotalTaskFailures(pid int) (uint32, error) {
	proc, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	return proc.TotalFailures(), nil
}

// GetTaskFailures reports pid's per-cause failure count.
func (k *Kernel) GetTaskFailures(pid int, cause FailureCause) (uint32, error) {
	proc, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	return proc.Failures(cause), nil
}

// SuspendProcess suspends targetPID, gated by a standing
// GrantPermissionSuspendProcess grant from callerPID.
func (k *Kernel) SuspendProcess(callerPID, targetPID int) error {
	proc, err := k.process(targetPID)
	if err != nil {
		return err
	}
	if !k.suspendGrants[[2]int{callerPID, targetPID}] {
		getLogger().Notice().Int("caller", callerPID).Int("target", targetPID).
			Log("safekernel: suspend_process rejected, no grant")
		return ErrPermissionDenied
	}
	proc.Suspend()
	getLogger().Notice().Int("caller", callerPID).Int("target", targetPID).
		Log("safekernel: process suspended")
	return nil
}

// IsProcessSuspended reports whether pid is currently suspended.
func (k *Kernel) IsProcessSuspended(pid int) (bool, error) {
	proc, err := k.process(pid)
	if err != nil {
		return false, err
	}
	return proc.IsSuspended(), nil
}

// GrantPermissionRunTask and GrantPermissionSuspendProcess install a
// permission grant. Both are init-time-only — grants may only be issued
// during initialization and are immutable afterwards — and reject any call
// once Start has run.
func (k *Kernel) GrantPermissionRunTask(callerPID, targetPID int) error {
	if k.grantsLocked.Load() {
		return ErrBadArgument
	}
	if _, err := k.process(callerPID); err != nil {
		return err
	}
	if _, err := k.process(targetPID); err != nil {
		return err
	}
	k.mu.Lock()
	k.runGrants[[2]int{callerPID, targetPID}] = true
	k.mu.Unlock()
	return nil
}

func (k *Kernel) GrantPermissionSuspendProcess(callerPID, targetPID int) error {
	if k.grantsLocked.Load() {
		return ErrBadArgument
	}
	if _, err := k.process(callerPID); err != nil {
		return err
	}
	if _, err := k.process(targetPID); err != nil {
		return err
	}
	k.mu.Lock()
	k.suspendGrants[[2]int{callerPID, targetPID}] = true
	k.mu.Unlock()
	return nil
}

package kernel

import (
	"math"
	"sync"
	"sync/atomic"
)

// TaskID identifies a registered task. It equals the task's slot index and
// its INTC vector index.
type TaskID int

// TaskBody is a task's entry point. It runs to completion each time it is
// dispatched; the kernel offers no blocking/yield primitive, matching the
// reference hardware's priority-preemptive, run-to-completion scheduling
// model.
type TaskBody func()

// TaskDescriptor is the immutable-after-registration configuration of one
// task.
type TaskDescriptor struct {
	// Body is the task's entry point. Must not be nil.
	Body TaskBody

	// CycleMS is the activation period in milliseconds. Zero means
	// event-only: the task is never activated by the tick, only by
	// ActivateTask.
	CycleMS uint32

	// Priority is the INTC priority the task is dispatched at, 1..15.
	Priority Priority

	// NonPreemptable pins the priority register to PriorityMax for the
	// task body's duration, so it runs to completion without a nested
	// dispatch preempting it (see Controller.invoke). The zero value
	// (false) is the common case: a task is preemptable by default, so a
	// higher-priority activation always wins a priority dispute unless a
	// caller opts out explicitly.
	NonPreemptable bool

	// Gate, if non-nil, is consulted before every tick-driven or
	// software-triggered activation; returning false silently discards the
	// activation without incrementing the loss counter. This is the hook
	// the safe kernel variant uses to implement process suspension without
	// kernel needing to know what a process is.
	Gate func() bool
}

type taskRuntime struct {
	desc    TaskDescriptor
	dueTime atomic.Uint32
	loss    atomic.Uint32
}

func (rt *taskRuntime) allowed() bool {
	return rt.desc.Gate == nil || rt.desc.Gate()
}

func incrementSaturating(counter *atomic.Uint32) {
	for {
		old := counter.Load()
		if old == math.MaxUint32 {
			return
		}
		if counter.CompareAndSwap(old, old+1) {
			return
		}
	}
}

// maxCycleValue is the 30-bit ceiling on cycle and first-activation
// offsets, leaving headroom for the signed cyclic due-time comparison in
// Tick.
const maxCycleValue = 1 << 30

// Engine is the Activation Engine (C4): it owns the tick counter and the
// array of task runtime state, and drives the SlotPool and Controller it is
// constructed with.
type Engine struct {
	pool    *SlotPool
	ctl     *Controller
	mu      sync.Mutex
	tasks   []*taskRuntime
	started atomic.Bool
	tick    atomic.Uint32
}

// Option configures an Engine at construction using the functional-options
// pattern.
type Option func(*engineOptions)

type engineOptions struct {
	slotCapacity int
}

// WithSlotCapacity overrides the task slot pool capacity (default, and the
// reference hardware's fixed value, is MaxSlots).
func WithSlotCapacity(n int) Option {
	return func(o *engineOptions) { o.slotCapacity = n }
}

// NewEngine constructs an Engine with its own SlotPool and Controller.
func NewEngine(opts ...Option) *Engine {
	cfg := engineOptions{slotCapacity: MaxSlots}
	for _, opt := range opts {
		opt(&cfg)
	}
	pool := NewSlotPool(cfg.slotCapacity)
	return &Engine{
		pool: pool,
		ctl:  newController(pool),
	}
}

// RegisterTask validates and appends desc, installing its trampoline at
// vector index = task id. Registration is only valid before Start is
// called.
func (e *Engine) RegisterTask(desc TaskDescriptor, firstOffsetMS uint32) (TaskID, error) {
	if desc.Body == nil {
		return -1, ErrBadArgument
	}
	if !validPriority(desc.Priority) {
		return -1, ErrBadPriority
	}
	if desc.CycleMS >= maxCycleValue || firstOffsetMS >= maxCycleValue {
		return -1, ErrBadCycle
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started.Load() {
		return -1, ErrBadArgument
	}
	if len(e.tasks) >= e.pool.Capacity() {
		return -1, ErrOutOfSlots
	}

	id := TaskID(len(e.tasks))
	rt := &taskRuntime{desc: desc}
	rt.dueTime.Store(firstOffsetMS)
	e.tasks = append(e.tasks, rt)

	if err := e.ctl.registerHandler(int(id), e.makeTrampoline(id), desc.Priority, !desc.NonPreemptable, true); err != nil {
		e.tasks = e.tasks[:len(e.tasks)-1]
		return -1, err
	}
	return id, nil
}

func (e *Engine) makeTrampoline(id TaskID) HandlerFunc {
	return func() {
		e.tasks[id].desc.Body()
	}
}

// RegisterInterruptHandler installs a raw interrupt handler at an arbitrary
// vector index, for the bare-kernel API surface. These vectors are not
// pool-backed, and this simulation's dispatch loop only auto-vectors
// pool-backed (task) slots, so a handler registered here is stored but
// never dispatched (see Controller.registerHandler).
func (e *Engine) RegisterInterruptHandler(isr HandlerFunc, vectorIndex int, priority Priority, preemptable bool) error {
	return e.ctl.registerHandler(vectorIndex, isr, priority, preemptable, false)
}

// Start closes registration. It must be called after all tasks are
// registered and before the first call to Tick or ActivateTask.
func (e *Engine) Start() {
	e.started.Store(true)
}

// Tick runs the due-time scheduler. It is the clock-tick entry point the
// caller's 1 ms tick source (external to this package) invokes; it runs at
// schedulerPriority, which by construction cannot be preempted, since no
// task may be registered at a priority above PriorityMax.
func (e *Engine) Tick() {
	prior := e.ctl.SuspendUpTo(schedulerPriority)
	defer e.ctl.ResumeDownTo(prior)

	now := e.tick.Add(1)

	e.mu.Lock()
	tasks := e.tasks
	e.mu.Unlock()

	for id, rt := range tasks {
		if rt.desc.CycleMS == 0 {
			continue
		}
		due := rt.dueTime.Load()
		if int32(due-now) > 0 {
			continue
		}
		if rt.allowed() {
			if !e.pool.request(id) {
				incrementSaturating(&rt.loss)
				getLogger().Debug().Int("task", id).Log("kernel: activation lost, slot already pending")
			}
		}
		rt.dueTime.Store(due + rt.desc.CycleMS)
	}
}

// ActivateTask is the software activation path: if the task's slot is idle,
// it is requested and dispatch is attempted immediately; if not, the
// activation is lost and the saturated counter is incremented under a
// PCP-style critical section at schedulerPriority, since Tick may be
// racing the same counter.
func (e *Engine) ActivateTask(id TaskID) bool {
	e.mu.Lock()
	rt := e.tasks[id]
	e.mu.Unlock()

	if !rt.allowed() {
		return false
	}

	if e.pool.request(int(id)) {
		e.ctl.kick()
		return true
	}

	prior := e.ctl.SuspendUpTo(schedulerPriority)
	incrementSaturating(&rt.loss)
	e.ctl.ResumeDownTo(prior)
	getLogger().Debug().Int("task", int(id)).Log("kernel: activation lost, slot already pending")
	return false
}

// GetActivationLossCount returns the saturated activation-loss counter for
// a task.
func (e *Engine) GetActivationLossCount(id TaskID) uint32 {
	e.mu.Lock()
	rt := e.tasks[id]
	e.mu.Unlock()
	return rt.loss.Load()
}

// SuspendAllInterruptsByPriority is the bare-kernel PCP entry point: it
// raises the handled priority to at least p and returns the prior level.
func (e *Engine) SuspendAllInterruptsByPriority(p Priority) Priority {
	return e.ctl.SuspendUpTo(p)
}

// ResumeAllInterruptsByPriority lowers the handled priority back to level,
// which must be the value SuspendAllInterruptsByPriority returned to the
// same caller: lowering past it would let a lower-priority task run inside
// what was meant to be a higher-priority critical section.
func (e *Engine) ResumeAllInterruptsByPriority(level Priority) {
	e.ctl.ResumeDownTo(level)
}

// Controller exposes the underlying INTC Facade, for the safe kernel
// variant's system-call gate (which needs to raise/lower priority around
// "simple" conformance-class calls) and for tests.
func (e *Engine) Controller() *Controller { return e.ctl }

// TaskCount returns the number of registered tasks.
func (e *Engine) TaskCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

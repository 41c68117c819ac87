package kernel

import (
	"sync"
	"sync/atomic"
)

// HandlerFunc is a registered interrupt/task body. It takes no arguments and
// returns nothing: on real hardware, return from the handler is what
// triggers the INTC end-of-interrupt sequence, so termination is implicit
// rather than an explicit call the handler makes.
type HandlerFunc func()

// UnhandledVector is a well-known diagnostic global: the vector index of the
// most recent dispatch attempt against an unregistered vector, or -1 if
// none has occurred. It mirrors the reference hardware's default handler
// reporting the offending vector index.
var UnhandledVector atomic.Int32

func init() { UnhandledVector.Store(-1) }

// Debug controls whether an unhandled-vector dispatch panics (true,
// matching the reference "halts in debug mode") or is silently inert (false,
// matching "production... effectively unreachable"). Defaults to true.
var Debug atomic.Bool

func init() { Debug.Store(true) }

type vectorEntry struct {
	handler     HandlerFunc
	priority    Priority
	preemptable bool
	poolBacked  bool
	registered  bool
}

// Controller is the INTC Facade (C2), and also implements the Priority Gate
// (C1): on the reference hardware, suspend/resume operate directly on the
// same priority register the INTC uses to decide what may preempt what, so
// the two are one type here rather than two types sharing state.
type Controller struct {
	mu       sync.Mutex
	current  Priority
	vectors  [256]vectorEntry
	pool     *SlotPool
	numTasks int // number of pool-backed vectors currently registered
}

func newController(pool *SlotPool) *Controller {
	return &Controller{pool: pool}
}

// CurrentPriority returns the priority level currently being handled (0 if
// idle). It is a diagnostic accessor; PCP users should rely on the value
// returned by SuspendUpTo, not on reading this concurrently.
func (c *Controller) CurrentPriority() Priority {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SuspendUpTo raises the handled priority to at least p and returns the
// prior level, atomically with respect to every other Controller operation.
// It is idempotent when p does not exceed the current level: no write
// occurs and the current level is returned unchanged, which is what makes
// nested PCP-style lock acquisition safe.
func (c *Controller) SuspendUpTo(p Priority) Priority {
	c.mu.Lock()
	defer c.mu.Unlock()
	prior := c.current
	if p > prior {
		c.current = p
	}
	return prior
}

// ResumeDownTo lowers the handled priority to p, then drains: it dispatches,
// highest priority first, any pending slot whose priority exceeds p,
// exactly as end-of-interrupt on real hardware auto-vectors to the next
// pending source. Callers must never pass a p below their own static
// priority: doing so is a programming error this package does not defend
// against, the same way the reference hardware does not.
func (c *Controller) ResumeDownTo(p Priority) {
	c.mu.Lock()
	c.current = p
	c.mu.Unlock()
	c.drain()
}

// drain repeatedly dispatches the highest-priority pending, pool-backed
// vector above the current level until none remains.
func (c *Controller) drain() {
	for {
		c.mu.Lock()
		id, pri, ok := c.highestPendingAboveLocked(c.current)
		if !ok {
			c.mu.Unlock()
			return
		}
		saved := c.current
		c.current = pri
		c.mu.Unlock()

		c.invoke(id)

		c.mu.Lock()
		c.current = saved
		c.mu.Unlock()
	}
}

// highestPendingAboveLocked must be called with mu held.
func (c *Controller) highestPendingAboveLocked(floor Priority) (id int, pri Priority, ok bool) {
	best := -1
	var bestPri Priority
	for i := 0; i < MaxSlots; i++ {
		e := &c.vectors[i]
		if !e.registered || !e.poolBacked {
			continue
		}
		if e.priority <= floor {
			continue
		}
		if !c.pool.IsPending(i) {
			continue
		}
		if best == -1 || e.priority > bestPri {
			best, bestPri = i, e.priority
		}
	}
	if best == -1 {
		return 0, 0, false
	}
	return best, bestPri, true
}

// invoke runs the handler registered at vector id and then releases its
// slot (the end-of-interrupt step). A non-preemptable handler runs with the
// priority register pinned at PriorityMax for its duration, standing in for
// leaving external interrupts disabled for the handler's whole run; a
// preemptable handler runs at its own dispatched priority, so a reentrant
// call from within it (activating a higher-priority task, or taking a PCP
// lock) can still preempt it.
func (c *Controller) invoke(id int) {
	c.mu.Lock()
	e := c.vectors[id]
	c.mu.Unlock()

	if !e.registered || e.handler == nil {
		c.reportUnhandled(id)
		if e.poolBacked {
			c.pool.release(id)
		}
		return
	}

	if !e.preemptable {
		c.mu.Lock()
		saved := c.current
		c.current = PriorityMax
		c.mu.Unlock()

		e.handler()

		c.mu.Lock()
		c.current = saved
		c.mu.Unlock()
	} else {
		e.handler()
	}

	if e.poolBacked {
		c.pool.release(id)
	}
}

func (c *Controller) reportUnhandled(id int) {
	UnhandledVector.Store(int32(id))
	getLogger().Warning().Int("vector", id).Log("kernel: dispatch against unregistered vector")
	if Debug.Load() {
		panic("kernel: unhandled interrupt vector")
	}
}

// registerHandler installs isr at vectorIndex with the given priority and
// preemptable flag. poolBacked marks vectors whose readiness is tracked by
// a SlotPool slot (task activations); other vectors are registered for
// completeness with the bare-kernel RegisterInterruptHandler API but are
// outside this simulation's dispatch loop, since nothing in this package
// models the hardware interrupt lines that would trigger them.
func (c *Controller) registerHandler(vectorIndex int, isr HandlerFunc, priority Priority, preemptable, poolBacked bool) error {
	if vectorIndex < 0 || vectorIndex >= len(c.vectors) {
		return ErrBadArgument
	}
	if !validPriority(priority) {
		return ErrBadPriority
	}
	if isr == nil {
		return ErrBadArgument
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[vectorIndex] = vectorEntry{
		handler:     isr,
		priority:    priority,
		preemptable: preemptable,
		poolBacked:  poolBacked,
		registered:  true,
	}
	if poolBacked {
		c.numTasks++
	}
	return nil
}

// kick attempts to dispatch immediately without changing the resting
// priority level: it is what a software write to a request register does
// on real hardware (the INTC evaluates readiness as soon as the bit is
// set, not only at the next end-of-interrupt). Used by ActivateTask.
func (c *Controller) kick() {
	c.drain()
}

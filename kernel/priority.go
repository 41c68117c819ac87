package kernel

// Priority is an INTC priority level. The hardware supports 16 levels;
// level 0 means "no interrupt in service" and is never a valid task
// priority.
type Priority uint8

const (
	// PriorityNone is the INTC's idle level: no interrupt in service.
	PriorityNone Priority = 0

	// PriorityMin is the lowest priority a task or interrupt handler may
	// be registered at.
	PriorityMin Priority = 1

	// PriorityMax is the highest priority a task or interrupt handler may
	// be registered at. It is also used internally to saturate the
	// priority register for the duration of a non-preemptable handler.
	PriorityMax Priority = 15

	// schedulerPriority is the fixed priority the tick handler runs at: the
	// highest level, so the scheduler itself is never preempted.
	schedulerPriority Priority = PriorityMax
)

func validPriority(p Priority) bool {
	return p >= PriorityMin && p <= PriorityMax
}

package safekernel

import "time"

// abortSignal is how a task aborts early — either by calling TerminateTask
// itself, or by a checked memory accessor detecting a fault — without a
// real CPU exception to field. The task trampoline recovers it and turns it
// into the normal "task returned" control flow plus a failure count, so a
// fault leaves the task looking as if it had simply returned early rather
// than crashing the process hosting it.
type abortSignal struct {
	cause FailureCause
	code  int32
}

// currentTask is the running task's abort/termination context, valid only
// for the duration of a trampoline-wrapped call. There is exactly one
// logical "current task" per call stack in this simulation's single
// synchronous-dispatch model (see kernel package doc); a goroutine-local
// would be needed for genuine concurrent task execution, which this
// simulation does not provide (see DESIGN.md Open Question 4).
type currentTask struct {
	process *Process
}

// activeTask is set by the trampoline around each task body invocation.
// Nil outside of one.
var activeTask *currentTask

// TerminateTask aborts the currently-running task with the given error
// code, as if it had returned normally but early. It must be called from
// within a task body installed via RegisterUserTask or RegisterInitTask;
// calling it elsewhere panics, since there is no task to terminate. An OS
// task body (RegisterOSTask) runs without a task context, so calling it
// there panics as well.
func TerminateTask(errorCode int32) {
	if activeTask == nil {
		panic("safekernel: TerminateTask called outside a task body")
	}
	panic(abortSignal{cause: CauseUserAbort, code: errorCode})
}

// faultCurrentTask is called by the checked memory accessors on a detected
// MPU-style violation. It aborts the running task the same way TerminateTask
// does, but with the fault's cause instead of CauseUserAbort.
func faultCurrentTask(cause FailureCause) {
	panic(abortSignal{cause: cause, code: -1})
}

// runTrampoline is the user-task entry trampoline: it installs the
// per-call task context, runs body, recovers an abort signal or a deadline
// overrun, and records failures against proc. depthHint stands in for the
// real stack-pointer depth a hardware trampoline would observe; see
// Process.touchStack. The return value is body's result on normal
// completion, or the abort signal's code on early termination
// (TerminateTask's caller-supplied error code, or -1 for a fault with no
// such code) — this is also what RunTask's result comes from.
func runTrampoline(proc *Process, body func() int32, maxExecUS uint32, depthHint int) (result int32) {
	prevActive := activeTask
	activeTask = &currentTask{process: proc}
	defer func() { activeTask = prevActive }()

	proc.touchStack(depthHint)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(abortSignal)
			if !ok {
				// Not one of our own control-flow signals: an actual bug in
				// the task body. On real hardware this would be an illegal
				// instruction or program exception; treat it the same way,
				// rather than letting it crash the whole kernel simulation.
				proc.recordFailure(CausePrivilegedInstruction)
				result = -1
				return
			}
			proc.recordFailure(sig.cause)
			result = sig.code
			return
		}
		if maxExecUS != 0 && time.Since(start) > time.Duration(maxExecUS)*time.Microsecond {
			proc.recordFailure(CauseDeadlineExceeded)
		}
	}()

	result = body()
	return
}

// runOSTrampoline is the trusted-code path for OS tasks (PID 0): no memory
// protection, no budget check, no fault boundary — the kernel's own code is
// assumed correct, and only user tasks go through the fault-catching
// trampoline.
func runOSTrampoline(body func()) {
	body()
}

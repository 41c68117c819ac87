// Package safekernel layers memory-protected processes, a fault-catching
// task trampoline, and a system-call gate (spec components C5 and C6) on
// top of the bare kernel package's scheduling core (C1-C4). A Kernel owns
// one kernel.Engine plus the process table, permission grants, and the
// simulated flat address space that CheckUserReadPtr/CheckUserWritePtr and
// the checked memory accessors validate against.
//
// As in kernel, memory protection, CPU exceptions, and the syscall trap are
// simulated rather than enforced by real hardware: a Go task body that
// reaches into another process's backing array directly (instead of going
// through ReadOwnMemory/WriteOwnMemory) is not stopped by anything in this
// package, the same way a real MPU configuration is outside this
// simulation's reach. The fault paths this package offers are the ones a
// cooperating task body calls into, not ones it can be forced through.
package safekernel

// Package kernel implements the scheduler and concurrency core shared by the
// bare and safe kernel variants: the mapping of tasks onto hardware-style
// interrupt priority lanes, the clock-tick-driven due-time scheduler for
// periodic activations, the software-triggered activation path, the
// priority ceiling protocol (PCP) used for mutual exclusion, and the
// interrupt-controller entry/exit contract.
//
// # Hardware vs. simulation
//
// The reference hardware is a single-core 32-bit microcontroller with a
// vectored interrupt controller (INTC) offering 16 software-selectable
// priority levels and a small pool of software-triggered interrupt sources.
// This package does not run on that hardware; it models the INTC's priority
// register, the slot pool's set/clear request registers, and the
// end-of-interrupt bookkeeping as ordinary Go values, so that the same
// scheduling guarantees can be exercised, tested, and reused from a host
// process. Task bodies are plain Go functions; the 1 ms tick source, the
// LED/button driver, and the serial diagnostic sink are supplied by the
// caller (see cmd/demo for a wiring example) rather than owned by this
// package.
//
// # Concurrency model
//
// All dispatch decisions and priority-register mutations are serialized by
// Controller's internal mutex, standing in for the hardware's global
// external-interrupt disable; the slot pool's request registers are updated
// with lock-free atomics outside that mutex. Task bodies, however, run with that mutex
// released (mirroring an interrupt body running with interrupts
// re-enabled), so a task body is free to call back into the kernel (to
// activate another task, or to take a PCP lock) from the same goroutine; a
// reentrant call of that kind dispatches a higher-priority task immediately,
// before the calling body's call frame resumes, exactly as a real INTC
// would preempt it.
//
// What this package does not model is a genuinely concurrent external
// interrupt source forcibly suspending a task body that is already running
// on a different goroutine — Go has no mechanism to preempt an arbitrary
// running goroutine mid-instruction the way a CPU fields a hardware
// interrupt. Callers that need strict single-core fidelity should drive
// Engine.Tick and Engine.ActivateTask from a single synchronous context, the
// same way the reference hardware only ever has one program counter.
package kernel

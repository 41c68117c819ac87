// Command demo wires a simulated 1 ms tick source, an LED sink, and a
// serial sink around one bare-kernel periodic task and one safe-kernel
// process pair, standing in for the reference hardware's blinking-LED demo
// application. None of the three collaborators are real hardware: the tick
// source is a time.Ticker, and LED/serial are io.Writer-backed stubs, since
// actual GPIO and UART drivers are out of scope for a software simulation
// of the kernel.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/embedded-go/rtkernel/kernel"
	"github.com/embedded-go/rtkernel/safekernel"
)

// ledSink stands in for the reference demo's red LED, toggled once per
// blink-task activation.
type ledSink struct {
	w microstreamer
	on bool
}

// microstreamer is the minimal io.Writer surface this demo needs; kept as
// an interface so a test can substitute a buffer for os.Stderr.
type microstreamer interface {
	io.Writer
}

func (l *ledSink) toggle() {
	l.on = !l.on
	state := "off"
	if l.on {
		state = "on"
	}
	fmt.Fprintf(l.w, "led: %s\n", state)
}

func main() {
	led := &ledSink{w: os.Stderr}
	serial := os.Stderr

	eng := kernel.NewEngine()

	blinkID, err := eng.RegisterTask(kernel.TaskDescriptor{
		Body:     led.toggle,
		CycleMS:  500,
		Priority: 5,
	}, 0)
	if err != nil {
		fmt.Fprintf(serial, "demo: register blink task: %v\n", err)
		os.Exit(1)
	}
	eng.Start()

	sk := safekernel.NewKernel(2)

	eid, err := sk.CreateEvent(1000, 0, 6, 0)
	if err != nil {
		fmt.Fprintf(serial, "demo: create event: %v\n", err)
		os.Exit(1)
	}
	if err := sk.RegisterUserTask(eid, func(pid int, _ int32) int32 {
		fmt.Fprintf(serial, "demo: pid %d heartbeat, stack reserve %d, failures %d\n",
			pid, mustReserve(sk, pid), mustFailures(sk, pid))
		return 0
	}, 1, 2000, 64); err != nil {
		fmt.Fprintf(serial, "demo: register user task: %v\n", err)
		os.Exit(1)
	}

	if err := sk.GrantPermissionSuspendProcess(2, 1); err != nil {
		fmt.Fprintf(serial, "demo: grant: %v\n", err)
		os.Exit(1)
	}
	sk.Start()

	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()

	for range tick.C {
		eng.Tick()
		sk.Tick()
		if eng.GetActivationLossCount(blinkID) > 0 {
			fmt.Fprintln(serial, "demo: blink task lost an activation")
		}
	}
}

func mustReserve(sk *safekernel.Kernel, pid int) uint32 {
	v, _ := sk.GetStackReserve(pid)
	return v
}

func mustFailures(sk *safekernel.Kernel, pid int) uint32 {
	v, _ := sk.GetTotalTaskFailures(pid)
	return v
}

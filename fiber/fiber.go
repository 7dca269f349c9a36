// Package fiber implements a cooperative execution context: make/switch/exit
// for hand-rolled green threads that never run concurrently with each other.
//
// A native implementation saves the running registers onto the current
// fiber's own machine stack, stores the stack pointer and a resume address,
// and jumps into the destination fiber's saved stack pointer and address. Go
// gives user code no way to save or restore a goroutine's machine stack, so
// this package gets the same effect from a goroutine parked on a dedicated
// channel: "switching" to a fiber is sending it a baton (with its next
// register frame); "switching away" is blocking on receipt of the next
// baton. Exactly one fiber ever holds the baton, so the fibers of one
// work-group run exactly as serialized as a raw stack switch would — only
// one ever executes, and control passes in a strict, caller-specified
// hand-off.
package fiber

import "cpudevice/kernel"

// Fiber is a cooperatively scheduled execution context.
type Fiber struct {
	baton chan kernel.RegisterFrame
}

// NewMainFiber returns the fiber representing the calling goroutine itself
// (a work-group's driving loop). It is never started as a separate
// goroutine — SwitchFiber blocks directly in whatever goroutine holds it.
func NewMainFiber() *Fiber {
	return &Fiber{baton: make(chan kernel.RegisterFrame)}
}

// MakeFiberWithFrame prepares a fiber to start at entry with item as its
// argument frame. The return trampoline is exit, called automatically when
// entry returns, mirroring a return address pointed at an exit routine.
func MakeFiberWithFrame(entry kernel.Func, item *kernel.WorkItem, exit func()) *Fiber {
	f := &Fiber{baton: make(chan kernel.RegisterFrame)}
	go func() {
		item.Registers = <-f.baton
		entry(item)
		exit()
	}()
	return f
}

// MakeFiberWithInts prepares a fiber to start at entry with an integer
// argument vector pushed onto its (simulated) stack. Falling off the end of
// entry without reaching a barrier is a normal, deterministic termination:
// done is called when entry returns, in the role exit plays for
// MakeFiberWithFrame. No work-item metadata is involved for this variant.
func MakeFiberWithInts(entry func(args []int), args []int, done func()) *Fiber {
	f := &Fiber{baton: make(chan kernel.RegisterFrame)}
	argsCopy := append([]int(nil), args...)
	go func() {
		<-f.baton
		entry(argsCopy)
		done()
	}()
	return f
}

// SwitchFiber atomically hands control (and regs, if non-nil) to dest,
// then blocks until some other call to SwitchFiber hands control back to
// current.
//
// current and dest must be non-nil — passing nil is a programmer error and
// panics immediately.
func SwitchFiber(current, dest *Fiber, regs *kernel.RegisterFrame) {
	if current == nil || dest == nil {
		panic("fiber: switch_fiber: current or dest is nil")
	}
	var rf kernel.RegisterFrame
	if regs != nil {
		rf = *regs
	}
	dest.baton <- rf
	<-current.baton
}

// ExitFiber is the trampoline a kernel's fiber runs when its entry point
// returns. It hands control to main and never returns to its own goroutine,
// which is about to terminate for good — unlike SwitchFiber, it does not
// block waiting to be resumed again.
func ExitFiber(main *Fiber) {
	if main == nil {
		panic("fiber: exit_fiber: main is nil")
	}
	main.baton <- kernel.RegisterFrame{}
}

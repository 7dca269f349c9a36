// Package device implements the worker pool and coordinator: one goroutine
// per CPU core, each polling for a kernel to run, claiming work-groups from
// that kernel's dispatcher until none remain, and reporting back when the
// whole device has drained a kernel.
package device

import (
	"fmt"
	"sync"

	"cpudevice/dispatch"
	"cpudevice/kernel"
	"cpudevice/ndrange"
	"cpudevice/workgroup"
)

// ExecRecord describes one kernel launch submitted to the device: the
// index space to cover, the compiled entry point, its local-memory and
// register requirements, and the dispatcher workers claim groups from.
type ExecRecord struct {
	NDRange            ndrange.NDRange
	Kernel             kernel.Func
	LocalReservedBytes int
	Frame              kernel.Frame
	Registers          *kernel.RegisterFrame
	WorkGroupStart     [3]uint32
	Dispatcher         *dispatch.Dispatcher
}

// Device is the worker pool for one CPU-hosted compute device. One
// goroutine runs per core; all of them share exactly one in-flight
// ExecRecord at a time, handed off through a kernel counter and a
// condition variable.
type Device struct {
	// runMu serializes Run calls: the device holds exactly one exec record
	// at a time, so two host-side submissions racing here would overwrite
	// each other's exec before either drained. host.RunAll fans out
	// independent submissions concurrently at the host layer; this is what
	// keeps them from corrupting one another's kernel launch at the device
	// layer.
	runMu sync.Mutex

	mu    sync.Mutex
	ready *sync.Cond
	done  *sync.Cond

	numCores   int
	numKernels int
	numDone    int
	exec       *ExecRecord
	shutdown   bool

	workers sync.WaitGroup

	// maxItemsPerGroup bounds the per-core work-group control block.
	maxItemsPerGroup int
}

// New creates a device with numCores worker goroutines, each pinned to its
// own core where the platform supports it.
func New(numCores, maxItemsPerGroup int) *Device {
	if numCores <= 0 {
		panic(fmt.Sprintf("device: numCores %d must be positive", numCores))
	}
	d := &Device{
		numCores:         numCores,
		maxItemsPerGroup: maxItemsPerGroup,
	}
	d.ready = sync.NewCond(&d.mu)
	d.done = sync.NewCond(&d.mu)

	for i := 0; i < numCores; i++ {
		d.workers.Add(1)
		go d.coreFunc(i)
	}
	return d
}

// NumCores returns the number of worker goroutines backing this device,
// which is also its preferred work-group count.
func (d *Device) NumCores() int { return d.numCores }

// Run submits exec to the device and blocks until every worker has
// finished draining its dispatcher. Submission is synchronous — there is
// no asynchronous queue ahead of the device itself; that is the host
// layer's job, see the host package's RunAll.
func (d *Device) Run(exec *ExecRecord) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.mu.Lock()
	d.exec = exec
	d.numKernels++
	d.numDone = 0
	d.ready.Broadcast()
	for d.numDone < d.numCores {
		d.done.Wait()
	}
	d.mu.Unlock()
}

// Shutdown signals every worker to exit its poll loop and waits for them
// to tear down their per-core control blocks.
func (d *Device) Shutdown() {
	d.mu.Lock()
	d.shutdown = true
	d.numKernels++
	d.ready.Broadcast()
	d.mu.Unlock()
	d.workers.Wait()
}

// coreFunc is the body of one per-core worker goroutine: it owns one Core
// for its entire lifetime, polls for a kernel, prepares the Core once per
// kernel, then claims and runs work-groups until the kernel's dispatcher
// is exhausted.
func (d *Device) coreFunc(coreIndex int) {
	defer d.workers.Done()

	pinToCore(coreIndex)

	core := workgroup.NewCore(d.maxItemsPerGroup)
	defer core.Close()

	seen := 0
	for {
		d.mu.Lock()
		for d.numKernels == seen {
			d.ready.Wait()
		}
		seen++
		exec := d.exec
		shuttingDown := d.shutdown
		d.mu.Unlock()

		if shuttingDown {
			return
		}

		d.runExec(core, exec)

		d.mu.Lock()
		d.numDone++
		if d.numDone == d.numCores {
			d.done.Signal()
		}
		d.mu.Unlock()
	}
}

// runExec prepares core for exec once, then claims and launches
// work-groups from exec's dispatcher until it is exhausted.
func (d *Device) runExec(core *workgroup.Core, exec *ExecRecord) {
	core.Prepare(exec.NDRange, exec.LocalReservedBytes, exec.Frame)
	defer core.Teardown()

	for {
		num := exec.Dispatcher.ClaimNextGroup()
		if num >= exec.Dispatcher.NumGroups() {
			return
		}

		groupID := ndrange.Address(exec.NDRange.WorkDim, num, exec.NDRange.WorkGroupCount)
		groupGlobal3 := ndrange.GroupGlobal(exec.NDRange, groupID, exec.WorkGroupStart)
		var groupID3 [3]uint32
		copy(groupID3[:], groupID[:])

		core.LaunchGroup(exec.Kernel, exec.NDRange, groupID3, groupGlobal3, exec.Registers)
	}
}

// Package workgroup implements the work-group control block and the
// work-item launcher's barrier loop: the per-core state that is allocated
// once and reused across every work-group a worker runs, plus the
// per-group setup/launch/teardown cycle.
package workgroup

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"cpudevice/fiber"
	"cpudevice/internal/slab"
	"cpudevice/kernel"
	"cpudevice/ndrange"
)

// MaxItemsPerGroup bounds the number of work-items in a single work-group.
const MaxItemsPerGroup = 1024

// Core is the per-worker control block, allocated once and reused across
// every work-group that worker executes.
type Core struct {
	slab *slab.Arena

	items  []*kernel.WorkItem
	fibers []*fiber.Fiber
	main   *fiber.Fiber

	maxItems int

	// Per-kernel state, valid only between Prepare and Teardown.
	numItems      int
	numDone       atomic.Int64
	currentItem   int
	localReserved []byte
	frame         kernel.Frame
}

func init() {
	kernel.SetBarrierImpl(dispatchBarrier)
}

// NewCore allocates the stack slab and the parallel fiber/metadata arrays
// for one worker.
func NewCore(maxItems int) *Core {
	if maxItems <= 0 || maxItems > MaxItemsPerGroup {
		panic(fmt.Sprintf("workgroup: maxItems %d out of range [1,%d]", maxItems, MaxItemsPerGroup))
	}
	c := &Core{
		slab:     slab.New(maxItems),
		items:    make([]*kernel.WorkItem, maxItems),
		fibers:   make([]*fiber.Fiber, maxItems),
		main:     fiber.NewMainFiber(),
		maxItems: maxItems,
	}
	for i := 0; i < maxItems; i++ {
		item := &kernel.WorkItem{}
		item.BindSlab(c.slab.SlotAddr(i))
		c.slab.SetOwner(i, unsafe.Pointer(c))
		c.items[i] = item
	}
	return c
}

// Close frees the slab and the parallel arrays. The Core must not be used
// afterwards.
func (c *Core) Close() {
	c.slab = nil
	c.items = nil
	c.fibers = nil
}

// Prepare sets up the state shared by every work-group this Core will run
// for one kernel launch: computes the item count, allocates group-local
// reserved memory if the kernel declares any, and clones the kernel's
// argument frame with fresh backing for every local-memory parameter. It
// runs once per (worker, kernel) pair — the same reserved memory and frame
// are then reused, unmodified, across every work-group this worker claims
// in turn, since one worker only ever runs one group at a time.
func (c *Core) Prepare(nd ndrange.NDRange, localReservedBytes int, frame kernel.Frame) {
	numItems := nd.NumItemsPerGroup()
	if numItems > c.maxItems {
		panic(fmt.Sprintf("workgroup: num_items %d exceeds core capacity %d", numItems, c.maxItems))
	}
	c.numItems = numItems

	if localReservedBytes > 0 {
		c.localReserved = make([]byte, localReservedBytes)
	} else {
		c.localReserved = nil
	}

	var localReservedPtr unsafe.Pointer
	if c.localReserved != nil {
		localReservedPtr = unsafe.Pointer(&c.localReserved[0])
	}

	for i := 0; i < numItems; i++ {
		item := c.items[i]
		*item = kernel.WorkItem{}
		item.BindSlab(c.slab.SlotAddr(i))
		c.slab.SetOwner(i, unsafe.Pointer(c))

		for j := 0; j < 4; j++ {
			item.GlobalSize[j] = 1
			item.LocalSize[j] = 1
		}
		item.WorkDim = nd.WorkDim
		item.LocalReserved = localReservedPtr
		for j := 0; j < nd.WorkDim; j++ {
			item.GlobalSize[j] = nd.GlobalSize[j]
			item.LocalSize[j] = nd.LocalSize[j]
			item.GlobalOffset[j] = nd.GlobalOffset[j]
		}
	}

	c.frame = frame.Clone()
	for i := 0; i < numItems; i++ {
		c.items[i].BindFrame(&c.frame)
	}
}

// Teardown releases the per-kernel local-memory allocation and frame copy.
// Called once after this worker has claimed and run its last group for a
// kernel.
func (c *Core) Teardown() {
	c.frame = kernel.Frame{}
	c.localReserved = nil
}

// NumItems returns the number of work-items in the group currently set up.
func (c *Core) NumItems() int { return c.numItems }

// Frame returns the per-kernel argument frame (already cloned by Prepare).
func (c *Core) Frame() kernel.Frame { return c.frame }

// Item returns the metadata block for local item index i.
func (c *Core) Item(i int) *kernel.WorkItem { return c.items[i] }

// LaunchGroup runs one claimed work-group to completion: it stamps the
// group id and every item's global/local id for this group's coordinates,
// builds fresh fibers over the already-Prepared metadata blocks, and drives
// the barrier dispatch loop until every item has exited. regs is the fixed
// register frame re-established on every switch (nil for none).
func (c *Core) LaunchGroup(entry kernel.Func, nd ndrange.NDRange, groupID [3]uint32, groupGlobal [3]uint32, regs *kernel.RegisterFrame) {
	c.numDone.Store(0)
	c.currentItem = 0

	for i := 0; i < c.numItems; i++ {
		item := c.items[i]
		item.GroupID = [4]uint32{groupID[0], groupID[1], groupID[2], 0}
		c.setItemIndices(i, nd, groupGlobal)
		c.fibers[i] = fiber.MakeFiberWithFrame(entry, item, c.exitFiber)
	}

	for c.numDone.Load() < int64(c.numItems) {
		for c.currentItem = 0; c.currentItem < c.numItems; c.currentItem++ {
			fiber.SwitchFiber(c.main, c.fibers[c.currentItem], regs)
		}
	}
}

// setItemIndices fills the global/local id for item i, given its flat
// local index and the work-group's global coordinates.
func (c *Core) setItemIndices(i int, nd ndrange.NDRange, groupGlobal [3]uint32) {
	local := ndrange.Address(nd.WorkDim, i, nd.LocalSize)
	item := c.items[i]
	for j := 0; j < 3; j++ {
		var lid, gg uint32
		if j < ndrange.MaxDims {
			lid = local[j]
			gg = groupGlobal[j]
		}
		item.LocalID[j] = lid
		item.GlobalID[j] = gg + lid
	}
}

// exitFiber is the trampoline installed as every fiber's return address: it
// increments the done count and hands control back to the main fiber
// unconditionally, without touching currentItem — the driving for-loop in
// LaunchGroup is what advances past it.
func (c *Core) exitFiber() {
	c.numDone.Add(1)
	fiber.ExitFiber(c.main)
}

// dispatchBarrier is installed once as the kernel package's global barrier
// indirection cell. It recovers the owning Core via the slab-mask trick and
// performs the round-robin hand-off: the calling item parks and the next
// item in group order resumes, so a full round wakes every item exactly
// once before any of them proceeds past the barrier.
func dispatchBarrier(item *kernel.WorkItem) {
	c := GroupFromItem(item)
	sleep := c.currentItem
	c.currentItem = (c.currentItem + 1) % c.numItems
	wake := c.currentItem
	fiber.SwitchFiber(c.fibers[sleep], c.fibers[wake], nil)
}

// GroupFromItem recovers the owning Core from a work-item's metadata block
// via the stack-pointer-mask trick, exactly the lookup a kernel performs
// through item.AsAddr() without ever being handed a direct pointer.
func GroupFromItem(item *kernel.WorkItem) *Core {
	return (*Core)(slab.OwnerFromAddr(item.AsAddr()))
}

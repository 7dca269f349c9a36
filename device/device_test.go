package device_test

import (
	"sync/atomic"
	"testing"

	"cpudevice/device"
	"cpudevice/dispatch"
	"cpudevice/kernel"
	"cpudevice/ndrange"
)

func TestRunDrainsAllGroupsExactlyOnce(t *testing.T) {
	const numCores = 4
	dev := device.New(numCores, 64)
	defer dev.Shutdown()

	nd := ndrange.New(1, []uint32{32}, []uint32{4}, []uint32{0})
	var claimed [8]atomic.Int32

	exec := &device.ExecRecord{
		NDRange: nd,
		Kernel: func(item *kernel.WorkItem) {
			claimed[item.GroupID[0]].Add(1)
		},
		Dispatcher: dispatch.New(nd.NumGroups),
	}
	dev.Run(exec)

	for g := 0; g < nd.NumGroups; g++ {
		got := claimed[g].Load()
		want := int32(nd.NumItemsPerGroup())
		if got != want {
			t.Errorf("group %d: %d items ran, want %d", g, got, want)
		}
	}
}

func TestRunBlocksUntilEveryWorkerDone(t *testing.T) {
	dev := device.New(2, 16)
	defer dev.Shutdown()

	nd := ndrange.New(1, []uint32{8}, []uint32{4}, []uint32{0})
	var done atomic.Int32

	exec := &device.ExecRecord{
		NDRange: nd,
		Kernel: func(item *kernel.WorkItem) {
			done.Add(1)
		},
		Dispatcher: dispatch.New(nd.NumGroups),
	}
	dev.Run(exec)

	if got, want := done.Load(), int32(nd.NumItemsPerGroup()*nd.NumGroups); got != want {
		t.Errorf("ran %d items after Run returned, want %d", got, want)
	}
}

func TestPreferredWorkgroupCountMatchesCoreCount(t *testing.T) {
	dev := device.New(3, 16)
	defer dev.Shutdown()

	if got := dev.NumCores(); got != 3 {
		t.Errorf("NumCores() = %d, want 3", got)
	}
}

func TestShutdownTwiceDoesNotHang(t *testing.T) {
	dev := device.New(2, 16)
	dev.Shutdown()
	// A second Shutdown call should not hang the test (workers already gone).
	dev.Shutdown()
}

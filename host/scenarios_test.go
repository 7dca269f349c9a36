package host_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"cpudevice/host"
	"cpudevice/kernel"
	"cpudevice/mem"
	"cpudevice/ndrange"
)

func putU32(buf []byte, i int, v uint32) { binary.LittleEndian.PutUint32(buf[i*4:], v) }
func getU32(buf []byte, i int) uint32    { return binary.LittleEndian.Uint32(buf[i*4:]) }

func readAll(dev *host.Device, h mem.Handle, n int) []uint32 {
	buf := dev.MemBytes(h)
	out := make([]uint32, n)
	for i := range out {
		out[i] = getU32(buf, i)
	}
	return out
}

// Identity kernel, 1D: out[global_id[0]] = global_id[0].
func TestIdentity1D(t *testing.T) {
	dev := host.Create(4)
	defer dev.Close()

	outHandle := dev.MemAlloc(8 * 4)
	defer dev.MemFree(outHandle)

	nd := ndrange.New(1, []uint32{8}, []uint32{4}, []uint32{0})
	require.Equal(t, 2, nd.NumGroups)

	k := host.Kernel{
		Func: func(item *kernel.WorkItem) {
			putU32(dev.MemBytes(outHandle), int(item.GlobalID[0]), item.GlobalID[0])
		},
	}
	require.NoError(t, dev.Run(k, nd, nil))

	require.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7}, readAll(dev, outHandle, 8))
}

// Barrier reduction: every fiber must cross the barrier before any of them
// reads scratch[], or the sum would observe a partial write.
func TestBarrierReduction(t *testing.T) {
	dev := host.Create(4)
	defer dev.Close()

	outHandle := dev.MemAlloc(4)
	defer dev.MemFree(outHandle)

	nd := ndrange.New(1, []uint32{4}, []uint32{4}, []uint32{0})
	k := host.Kernel{
		LocalReservedBytes: 4 * 4,
		Func: func(item *kernel.WorkItem) {
			scratch := (*[4]uint32)(item.LocalReserved)
			lid := item.LocalID[0]
			scratch[lid] = lid
			kernel.Barrier(item)
			if lid == 0 {
				var sum uint32
				for _, v := range scratch {
					sum += v
				}
				putU32(dev.MemBytes(outHandle), 0, sum)
			}
		},
	}
	require.NoError(t, dev.Run(k, nd, nil))
	require.Equal(t, []uint32{6}, readAll(dev, outHandle, 1))
}

// Double barrier: verifies round-robin fairness across two consecutive
// barrier sweeps on the same work-group.
func TestDoubleBarrier(t *testing.T) {
	dev := host.Create(4)
	defer dev.Close()

	outHandle := dev.MemAlloc(4 * 4)
	defer dev.MemFree(outHandle)

	nd := ndrange.New(1, []uint32{4}, []uint32{4}, []uint32{0})
	k := host.Kernel{
		LocalReservedBytes: 4 * 4,
		Func: func(item *kernel.WorkItem) {
			scratch := (*[4]uint32)(item.LocalReserved)
			lid := item.LocalID[0]
			scratch[lid] = lid
			kernel.Barrier(item)
			next := scratch[(lid+1)%4]
			kernel.Barrier(item)
			putU32(dev.MemBytes(outHandle), int(lid), next)
		},
	}
	require.NoError(t, dev.Run(k, nd, nil))
	require.Equal(t, []uint32{1, 2, 3, 0}, readAll(dev, outHandle, 4))
}

// Multi-group local memory isolation: every group must observe its own
// group_id through local memory, regardless of which worker ran it.
func TestLocalMemoryIsolation(t *testing.T) {
	dev := host.Create(4)
	defer dev.Close()

	outHandle := dev.MemAlloc(8 * 4)
	defer dev.MemFree(outHandle)

	nd := ndrange.New(1, []uint32{8}, []uint32{4}, []uint32{0})
	k := host.Kernel{
		LocalReservedBytes: 4,
		Func: func(item *kernel.WorkItem) {
			cell := (*uint32)(item.LocalReserved)
			*cell = item.GroupID[0]
			kernel.Barrier(item)
			putU32(dev.MemBytes(outHandle), int(item.GlobalID[0]), *cell)
		},
	}
	require.NoError(t, dev.Run(k, nd, nil))
	require.Equal(t, []uint32{0, 0, 0, 0, 1, 1, 1, 1}, readAll(dev, outHandle, 8))
}

// 2D indexing: out[global_id[1]*4+global_id[0]] == flat index.
func TestIndexing2D(t *testing.T) {
	dev := host.Create(4)
	defer dev.Close()

	outHandle := dev.MemAlloc(16 * 4)
	defer dev.MemFree(outHandle)

	nd := ndrange.New(2, []uint32{4, 4}, []uint32{2, 2}, []uint32{0, 0})
	k := host.Kernel{
		Func: func(item *kernel.WorkItem) {
			idx := item.GlobalID[1]*4 + item.GlobalID[0]
			putU32(dev.MemBytes(outHandle), int(idx), idx)
		},
	}
	require.NoError(t, dev.Run(k, nd, nil))

	got := readAll(dev, outHandle, 16)
	for i, v := range got {
		require.Equalf(t, uint32(i), v, "index %d", i)
	}
}

// Worker-count sanity: preferred_workgroup_count equals the requested
// core count, and a launch of that many groups runs every one of them.
func TestWorkerCountSanity(t *testing.T) {
	const cores = 4
	dev := host.Create(cores)
	defer dev.Close()

	require.Equal(t, cores, dev.PreferredWorkgroupCount())

	outHandle := dev.MemAlloc(cores * 4)
	defer dev.MemFree(outHandle)

	nd := ndrange.New(1, []uint32{cores * 4}, []uint32{4}, []uint32{0})
	k := host.Kernel{
		Func: func(item *kernel.WorkItem) {
			if item.LocalID[0] == 0 {
				putU32(dev.MemBytes(outHandle), int(item.GroupID[0]), 1)
			}
		},
	}
	require.NoError(t, dev.Run(k, nd, nil))
	require.Equal(t, []uint32{1, 1, 1, 1}, readAll(dev, outHandle, cores))
}

func TestRunAllFanOut(t *testing.T) {
	dev := host.Create(4)
	defer dev.Close()

	h1 := dev.MemAlloc(8 * 4)
	h2 := dev.MemAlloc(8 * 4)
	defer dev.MemFree(h1)
	defer dev.MemFree(h2)

	nd := ndrange.New(1, []uint32{8}, []uint32{4}, []uint32{0})
	subs := []host.Submission{
		{Kernel: host.Kernel{Func: func(item *kernel.WorkItem) {
			putU32(dev.MemBytes(h1), int(item.GlobalID[0]), item.GlobalID[0])
		}}, NDRange: nd},
		{Kernel: host.Kernel{Func: func(item *kernel.WorkItem) {
			putU32(dev.MemBytes(h2), int(item.GlobalID[0]), item.GlobalID[0]*2)
		}}, NDRange: nd},
	}

	require.NoError(t, host.RunAll(context.Background(), dev, subs))
	require.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7}, readAll(dev, h1, 8))
	require.Equal(t, []uint32{0, 2, 4, 6, 8, 10, 12, 14}, readAll(dev, h2, 8))
}

package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"cpudevice/host"
	"cpudevice/kernel"
	"cpudevice/mem"
	"cpudevice/ndrange"
)

func main() {
	cores := flag.Int("cores", 0, "number of worker cores (0 = autodetect)")
	scenario := flag.String("scenario", "identity", "scenario to run: identity, barrier-reduction, double-barrier, local-memory-isolation, indexing-2d, preferred-workgroups")
	flag.Parse()

	if flag.NArg() != 0 {
		fmt.Println("Usage: cpudevice [-cores N] [-scenario NAME]")
		fmt.Println()
		fmt.Println("Demonstrates the CPU-hosted data-parallel execution core with a")
		fmt.Println("handful of small example kernels.")
		os.Exit(1)
	}

	dev := host.Create(*cores)
	defer dev.Close()

	fmt.Printf("device ready: %d worker cores\n", dev.PreferredWorkgroupCount())

	var out []uint32
	var err error
	switch *scenario {
	case "identity":
		out, err = runIdentity1D(dev)
	case "barrier-reduction":
		out, err = runBarrierReduction(dev)
	case "double-barrier":
		out, err = runDoubleBarrier(dev)
	case "local-memory-isolation":
		out, err = runLocalMemoryIsolation(dev)
	case "indexing-2d":
		out, err = runIndexing2D(dev)
	case "preferred-workgroups":
		fmt.Printf("preferred_workgroup_count = %d\n", dev.PreferredWorkgroupCount())
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", *scenario)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("out = %v\n", out)
}

func putU32(buf []byte, i int, v uint32) {
	binary.LittleEndian.PutUint32(buf[i*4:], v)
}

func getU32(buf []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(buf[i*4:])
}

func readU32s(dev *host.Device, h mem.Handle, n int) []uint32 {
	buf := dev.MemBytes(h)
	out := make([]uint32, n)
	for i := range out {
		out[i] = getU32(buf, i)
	}
	return out
}

func runIdentity1D(dev *host.Device) ([]uint32, error) {
	const n = 8
	outHandle := dev.MemAlloc(n * 4)
	defer dev.MemFree(outHandle)

	nd := ndrange.New(1, []uint32{n}, []uint32{4}, []uint32{0})
	k := host.Kernel{
		Func: func(item *kernel.WorkItem) {
			putU32(dev.MemBytes(outHandle), int(item.GlobalID[0]), item.GlobalID[0])
		},
	}
	if err := dev.Run(k, nd, nil); err != nil {
		return nil, err
	}
	return readU32s(dev, outHandle, n), nil
}

func runBarrierReduction(dev *host.Device) ([]uint32, error) {
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
	if err := dev.Run(k, nd, nil); err != nil {
		return nil, err
	}
	return readU32s(dev, outHandle, 1), nil
}

func runDoubleBarrier(dev *host.Device) ([]uint32, error) {
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
	if err := dev.Run(k, nd, nil); err != nil {
		return nil, err
	}
	return readU32s(dev, outHandle, 4), nil
}

func runLocalMemoryIsolation(dev *host.Device) ([]uint32, error) {
	const n = 8
	outHandle := dev.MemAlloc(n * 4)
	defer dev.MemFree(outHandle)

	nd := ndrange.New(1, []uint32{n}, []uint32{4}, []uint32{0})
	k := host.Kernel{
		LocalReservedBytes: 4,
		Func: func(item *kernel.WorkItem) {
			cell := (*uint32)(item.LocalReserved)
			*cell = item.GroupID[0]
			kernel.Barrier(item)
			putU32(dev.MemBytes(outHandle), int(item.GlobalID[0]), *cell)
		},
	}
	if err := dev.Run(k, nd, nil); err != nil {
		return nil, err
	}
	return readU32s(dev, outHandle, n), nil
}

func runIndexing2D(dev *host.Device) ([]uint32, error) {
	const n = 16
	outHandle := dev.MemAlloc(n * 4)
	defer dev.MemFree(outHandle)

	nd := ndrange.New(2, []uint32{4, 4}, []uint32{2, 2}, []uint32{0, 0})
	k := host.Kernel{
		Func: func(item *kernel.WorkItem) {
			idx := item.GlobalID[1]*4 + item.GlobalID[0]
			putU32(dev.MemBytes(outHandle), int(idx), idx)
		},
	}
	if err := dev.Run(k, nd, nil); err != nil {
		return nil, err
	}
	return readU32s(dev, outHandle, n), nil
}

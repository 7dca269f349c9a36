// Package host implements the host-facing surface of one compute device:
// creation, memory management, and synchronous kernel submission, wrapping
// the device and mem packages behind the boundary between host and device
// concerns.
package host

import (
	"fmt"

	"cpudevice/device"
	"cpudevice/dispatch"
	"cpudevice/kernel"
	"cpudevice/mem"
	"cpudevice/ndrange"
)

// MaxWorkGroupSize bounds the number of work-items in one work-group.
const MaxWorkGroupSize = 1024

// Device is the host's handle to one CPU-hosted compute device.
type Device struct {
	core *device.Device
	mem  *mem.Arena
}

// Create spins up a device with one worker per discovered CPU core.
// numCores <= 0 means "ask the platform".
func Create(numCores int) *Device {
	if numCores <= 0 {
		numCores = device.NumCores()
	}
	return &Device{
		core: device.New(numCores, MaxWorkGroupSize),
		mem:  mem.NewArena(),
	}
}

// Close shuts down every worker goroutine. The Device must not be used
// afterwards.
func (d *Device) Close() {
	d.core.Shutdown()
}

// PreferredWorkgroupCount reports the device's core count, so a host
// program can size its NDRange for one group per core.
func (d *Device) PreferredWorkgroupCount() int {
	return d.core.NumCores()
}

// MemAlloc allocates size bytes of device memory.
func (d *Device) MemAlloc(size int) mem.Handle { return d.mem.Alloc(size) }

// MemFree releases a device allocation.
func (d *Device) MemFree(h mem.Handle) { d.mem.Free(h) }

// MemRead copies n bytes from device memory at src into host.
func (d *Device) MemRead(hostBuf []byte, src mem.Handle, n int) { d.mem.Read(hostBuf, src, n) }

// MemWrite copies n bytes from host into device memory at dst.
func (d *Device) MemWrite(dst mem.Handle, hostBuf []byte, n int) { d.mem.Write(dst, hostBuf, n) }

// MemCopy copies n bytes from device memory at src to device memory at
// dst.
func (d *Device) MemCopy(dst, src mem.Handle, n int) { d.mem.Copy(dst, src, n) }

// MemBytes exposes the raw backing slice for a handle, for kernels and
// tests that read/write device memory directly rather than round-tripping
// through MemRead/MemWrite.
func (d *Device) MemBytes(h mem.Handle) []byte { return d.mem.Bytes(h) }

// Kernel is a host-visible compiled kernel: its entry point plus the
// per-argument metadata the work-group control block needs to build a
// fresh, non-aliasing frame for every worker.
type Kernel struct {
	Func               kernel.Func
	LocalReservedBytes int
	Params             []any
	ParamInfo          []kernel.ParamInfo
}

// Run submits one kernel launch over nd and blocks until every work-group
// has completed.
func (d *Device) Run(k Kernel, nd ndrange.NDRange, regs *kernel.RegisterFrame) error {
	if nd.NumItemsPerGroup() > MaxWorkGroupSize {
		return fmt.Errorf("host: work-group size %d exceeds device maximum %d",
			nd.NumItemsPerGroup(), MaxWorkGroupSize)
	}

	exec := &device.ExecRecord{
		NDRange:            nd,
		Kernel:             k.Func,
		LocalReservedBytes: k.LocalReservedBytes,
		Frame:              kernel.Frame{Params: k.Params, Info: k.ParamInfo},
		Registers:          regs,
		Dispatcher:         dispatch.New(nd.NumGroups),
	}
	d.core.Run(exec)
	return nil
}

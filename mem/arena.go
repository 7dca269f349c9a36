// Package mem implements the device's memory surface: allocation, and
// byte-for-byte host/device read, write, and copy. On a CPU-hosted target
// host memory *is* device memory, so every operation here is a plain copy
// over Go byte slices.
package mem

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// AlignBytes is the minimum alignment for every device allocation,
// matching the size of a 4-wide float vector.
const AlignBytes = 16

// Handle identifies one allocation in an Arena.
type Handle uint64

// Arena is the device-memory allocator. All device allocations are
// aligned to AlignBytes; Read/Write/Copy are memmove-equivalent.
type Arena struct {
	mu      sync.Mutex
	blocks  map[Handle][]byte
	nextID  atomic.Uint64
	allocs  atomic.Uint64
	frees   atomic.Uint64
	current atomic.Int64
}

// NewArena creates an empty device-memory arena.
func NewArena() *Arena {
	return &Arena{blocks: make(map[Handle][]byte)}
}

// Alloc returns a new AlignBytes-aligned allocation of size bytes.
// Out-of-memory is fatal to the launch — Go's allocator reports that by
// panicking, which propagates rather than being swallowed here.
func (a *Arena) Alloc(size int) Handle {
	if size < 0 {
		panic(fmt.Sprintf("mem: negative allocation size %d", size))
	}
	buf := make([]byte, size+AlignBytes)
	off := alignOffset(buf)
	aligned := buf[off : off+size : off+size]

	id := Handle(a.nextID.Add(1))
	a.mu.Lock()
	a.blocks[id] = aligned
	a.mu.Unlock()

	a.allocs.Add(1)
	a.current.Add(int64(size))
	return id
}

// Free releases an allocation. Freeing an unknown or already-freed handle
// is a programmer contract violation and panics.
func (a *Arena) Free(h Handle) {
	a.mu.Lock()
	buf, ok := a.blocks[h]
	if ok {
		delete(a.blocks, h)
	}
	a.mu.Unlock()

	if !ok {
		panic(fmt.Sprintf("mem: free of unknown handle %d", h))
	}
	a.frees.Add(1)
	a.current.Add(-int64(len(buf)))
}

// bytes returns the backing slice for h, or panics if h is unknown.
func (a *Arena) bytes(h Handle) []byte {
	a.mu.Lock()
	buf, ok := a.blocks[h]
	a.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("mem: unknown handle %d", h))
	}
	return buf
}

// Read copies n bytes from device memory at src into host.
func (a *Arena) Read(host []byte, src Handle, n int) {
	copy(host[:n], a.bytes(src)[:n])
}

// Write copies n bytes from host into device memory at dst.
func (a *Arena) Write(dst Handle, host []byte, n int) {
	copy(a.bytes(dst)[:n], host[:n])
}

// Copy copies n bytes from device memory at src to device memory at dst.
func (a *Arena) Copy(dst, src Handle, n int) {
	copy(a.bytes(dst)[:n], a.bytes(src)[:n])
}

// Bytes exposes the raw backing slice for a handle, for callers (kernels,
// tests) that need direct access rather than a copy in/out.
func (a *Arena) Bytes(h Handle) []byte {
	return a.bytes(h)
}

// Stats reports allocation counters.
type Stats struct {
	Allocs       uint64
	Frees        uint64
	CurrentBytes int64
}

// Stats returns a snapshot of the arena's allocation counters.
func (a *Arena) Stats() Stats {
	return Stats{
		Allocs:       a.allocs.Load(),
		Frees:        a.frees.Load(),
		CurrentBytes: a.current.Load(),
	}
}

func alignOffset(buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	addr := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (addr + AlignBytes - 1) &^ uintptr(AlignBytes-1)
	return int(aligned - addr)
}

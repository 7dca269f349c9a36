//go:build linux

package device

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore pins the calling goroutine's underlying OS thread to CPU
// coreIndex, one worker thread per core. A failure to pin is not fatal —
// the worker still runs, just without the locality guarantee.
func pinToCore(coreIndex int) {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Set(coreIndex)
	_ = unix.SchedSetaffinity(0, &set)
}

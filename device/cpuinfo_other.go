//go:build !linux

package device

import "runtime"

// NumCores falls back to runtime.NumCPU on platforms with no
// /proc/cpuinfo to parse.
func NumCores() int {
	return runtime.NumCPU()
}

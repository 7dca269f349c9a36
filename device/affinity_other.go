//go:build !linux

package device

// pinToCore is a no-op on platforms without Linux-style thread affinity.
func pinToCore(coreIndex int) {}

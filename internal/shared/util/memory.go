package util

import (
	"runtime"
)

// HeapAllocMB reports the live heap in MiB for health output.
func HeapAllocMB() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc / 1024 / 1024
}

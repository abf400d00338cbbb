// Package hostinfo collects the host-level counters reported to the compute
// manager's scheduler: memory, disk, processor count and uptime.
package hostinfo

import (
	"os"
	"runtime"
)

// Memory is the host memory usage in bytes.
type Memory struct {
	Total int64
	Used  int64
}

// Disk is the usage of the filesystem backing the engine's data root,
// in bytes.
type Disk struct {
	Total     int64
	Used      int64
	Available int64
}

func Hostname() (string, error) {
	return os.Hostname()
}

// NumCPU returns the number of host processors visible to the driver.
func NumCPU() int {
	return runtime.NumCPU()
}

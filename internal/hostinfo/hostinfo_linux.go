//go:build linux

package hostinfo

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// MemoryUsage reads the host memory counters. Buffers and caches count as
// free, matching what a scheduler wants to know about placeable memory.
func MemoryUsage() (Memory, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return Memory{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := int64(si.Unit)
	total := int64(si.Totalram) * unit
	free := (int64(si.Freeram) + int64(si.Bufferram)) * unit
	return Memory{Total: total, Used: total - free}, nil
}

// DiskUsage reports the usage of the filesystem holding path, typically the
// engine's data root directory.
func DiskUsage(path string) (Disk, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Disk{}, fmt.Errorf("statfs %q: %w", path, err)
	}
	bsize := int64(st.Bsize)
	total := int64(st.Blocks) * bsize
	free := int64(st.Bfree) * bsize
	available := int64(st.Bavail) * bsize
	return Disk{Total: total, Used: total - free, Available: available}, nil
}

// Uptime returns how long the host has been up.
func Uptime() (time.Duration, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	return time.Duration(si.Uptime) * time.Second, nil
}

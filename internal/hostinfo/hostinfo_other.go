//go:build !linux

package hostinfo

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("host statistics are only supported on linux")

func MemoryUsage() (Memory, error) { return Memory{}, errUnsupported }

func DiskUsage(path string) (Disk, error) { return Disk{}, errUnsupported }

func Uptime() (time.Duration, error) { return 0, errUnsupported }

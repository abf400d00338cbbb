//go:build linux

package network

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// NetnsDir manages network namespace symlinks under a mount directory,
// conventionally /var/run/netns, so the namespaces are addressable by
// container ID.
type NetnsDir struct {
	Dir string
}

func NewNetnsDir(dir string) *NetnsDir {
	return &NetnsDir{Dir: dir}
}

func (n *NetnsDir) path(containerID string) string {
	return filepath.Join(n.Dir, containerID)
}

// Link symlinks the process's network namespace under the container ID,
// replacing a stale link from a previous container with the same ID.
func (n *NetnsDir) Link(pid int, containerID string) error {
	if err := os.MkdirAll(n.Dir, 0o755); err != nil {
		return fmt.Errorf("create netns dir %q: %w", n.Dir, err)
	}
	dst := n.path(containerID)
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale netns link %q: %w", dst, err)
	}
	src := fmt.Sprintf("/proc/%d/ns/net", pid)
	if err := os.Symlink(src, dst); err != nil {
		return fmt.Errorf("link netns %q -> %q: %w", dst, src, err)
	}
	return nil
}

func (n *NetnsDir) Unlink(containerID string) error {
	if err := os.Remove(n.path(containerID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SetLoopbackUp brings the loopback interface up inside the container's
// network namespace.
func (n *NetnsDir) SetLoopbackUp(containerID string) error {
	nsHandle, err := netns.GetFromPath(n.path(containerID))
	if err != nil {
		return fmt.Errorf("open netns of container %q: %w", containerID, err)
	}
	defer nsHandle.Close()

	handle, err := netlink.NewHandleAt(nsHandle)
	if err != nil {
		return fmt.Errorf("netlink handle in netns of container %q: %w", containerID, err)
	}
	defer handle.Close()

	lo, err := handle.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("find loopback in container %q: %w", containerID, err)
	}
	if err = handle.LinkSetUp(lo); err != nil {
		return fmt.Errorf("set loopback up in container %q: %w", containerID, err)
	}
	return nil
}

//go:build !linux

package network

import (
	"context"
	"errors"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

var errUnsupported = errors.New("network namespaces are only supported on linux")

type NetnsDir struct {
	Dir string
}

func NewNetnsDir(dir string) *NetnsDir {
	return &NetnsDir{Dir: dir}
}

func (n *NetnsDir) Link(pid int, containerID string) error { return errUnsupported }
func (n *NetnsDir) Unlink(containerID string) error        { return errUnsupported }
func (n *NetnsDir) SetLoopbackUp(containerID string) error { return errUnsupported }

type VethDriver struct {
	NetnsDir string
}

func NewVethDriver(netnsDir string) *VethDriver {
	return &VethDriver{NetnsDir: netnsDir}
}

func (d *VethDriver) Plug(ctx context.Context, instance *virt.Instance, vif *virt.VIF) error {
	return errUnsupported
}

func (d *VethDriver) Unplug(ctx context.Context, instance *virt.Instance, vif *virt.VIF) error {
	return errUnsupported
}

func (d *VethDriver) Attach(ctx context.Context, instance *virt.Instance, vif *virt.VIF, containerID string, secondary bool) error {
	return errUnsupported
}

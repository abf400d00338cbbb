package network

import (
	"context"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

// NoopVIFDriver is the backend for hosts whose interfaces are provisioned
// entirely outside this driver. All operations succeed without side effects.
type NoopVIFDriver struct{}

func (NoopVIFDriver) Plug(ctx context.Context, instance *virt.Instance, vif *virt.VIF) error {
	return nil
}

func (NoopVIFDriver) Unplug(ctx context.Context, instance *virt.Instance, vif *virt.VIF) error {
	return nil
}

func (NoopVIFDriver) Attach(ctx context.Context, instance *virt.Instance, vif *virt.VIF, containerID string, secondary bool) error {
	return nil
}

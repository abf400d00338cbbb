package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

// keepAliveCommand keeps a container alive when its image declares no process
// to run. A VM is expected to stay up until told otherwise, unlike a container
// that exits with its entrypoint.
var keepAliveCommand = []string{"sh", "-c", "while true; do sleep 10; done"}

// containerSpec builds the engine container configuration for an instance.
// Networking is always created detached ("none"): interfaces are attached
// after start by the network sequencer.
func (d *Driver) containerSpec(
	ctx context.Context,
	instance *virt.Instance,
	imageMeta *virt.ImageMeta,
	img image.InspectResponse,
	imageName string,
	networkInfo virt.NetworkInfo,
) (*container.Config, *container.HostConfig, error) {
	plan, err := d.planner.Compute(ctx, instance)
	if err != nil {
		return nil, nil, err
	}

	cfg := &container.Config{
		Image:    imageName,
		Hostname: instance.Hostname,
		Cmd:      instanceCommand(imageMeta, img),
	}

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Privileged:  d.cfg.Privileged,
		DNS:         networkInfo.DNS(),
		Resources: container.Resources{
			Memory:     plan.MemoryBytes,
			CPUShares:  plan.CPUShares,
			CpusetCpus: plan.CPUSet,
		},
	}
	return cfg, hostCfg, nil
}

// instanceCommand decides what the container runs. An explicit command-line
// image property wins over the image's own Cmd/Entrypoint; an image declaring
// neither gets the keep-alive loop.
func instanceCommand(imageMeta *virt.ImageMeta, img image.InspectResponse) []string {
	if cl := imageMeta.Property(virt.PropCommandLine); cl != "" {
		return strings.Fields(cl)
	}
	if img.Config != nil && (len(img.Config.Cmd) > 0 || len(img.Config.Entrypoint) > 0) {
		return nil
	}
	return keepAliveCommand
}

// imageNameFor validates the image is usable as a container rootfs and returns
// the engine-side reference it must be available under.
func imageNameFor(instance *virt.Instance, imageMeta *virt.ImageMeta) (string, error) {
	if imageMeta == nil {
		return "", fmt.Errorf("instance %q has no image metadata", instance.Name)
	}
	if imageMeta.ContainerFormat != "docker" {
		return "", &virt.ImageFormatError{Format: imageMeta.ContainerFormat}
	}
	return imageMeta.Name, nil
}

// engineImageID shortens a dashed image store ID to the 12 leading hex digits
// the engine uses as an image identifier.
func engineImageID(id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	if len(hex) > 12 {
		hex = hex[:12]
	}
	return hex
}

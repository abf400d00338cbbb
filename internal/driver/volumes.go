package driver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

// volumeSuffix names the companion container holding an instance's persistent
// bind mounts. The companion survives rebuilds of the instance container.
const volumeSuffix = "_vol"

// volumeRoles maps the recognized volume image properties to the host
// directory role each one binds under.
var volumeRoles = []struct {
	role string
	prop string
}{
	{"log", virt.PropLogVolume},
	{"data", virt.PropDataVolume},
	{"other", virt.PropOtherVolume},
}

func volumeContainerName(instance *virt.Instance) string {
	return instance.Name + volumeSuffix
}

// hostVolumeDir is the per-instance host directory for one volume role. The
// first assigned IP is part of the name so a rebuilt instance with a new
// address starts with fresh directories.
func (d *Driver) hostVolumeDir(role string, instance *virt.Instance, networkInfo virt.NetworkInfo) string {
	return filepath.Join(d.cfg.VolumeDir, role, instance.Name+"_"+networkInfo.FirstIP())
}

// ensureVolumeContainer creates the companion volume container when the image
// declares volume properties. Returns whether a companion exists to mount
// from. Already-existing companions are reused as is: their binds carry the
// instance's persistent data.
func (d *Driver) ensureVolumeContainer(
	ctx context.Context,
	instance *virt.Instance,
	imageMeta *virt.ImageMeta,
	imageName string,
	networkInfo virt.NetworkInfo,
) (bool, error) {
	var binds []string
	volumes := map[string]struct{}{}
	for _, r := range volumeRoles {
		containerPath := imageMeta.Property(r.prop)
		if containerPath == "" {
			continue
		}
		hostDir := d.hostVolumeDir(r.role, instance, networkInfo)
		if err := os.MkdirAll(hostDir, 0o755); err != nil {
			return false, fmt.Errorf("create volume directory %q: %w", hostDir, err)
		}
		volumes[containerPath] = struct{}{}
		binds = append(binds, hostDir+":"+containerPath)
	}
	if len(binds) == 0 {
		return false, nil
	}

	name := volumeContainerName(instance)
	exists, err := d.engine.ContainerExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("check volume container %q: %w", name, err)
	}
	if exists {
		return true, nil
	}

	cfg := &container.Config{
		Image:           imageName,
		Volumes:         volumes,
		NetworkDisabled: true,
	}
	hostCfg := &container.HostConfig{Binds: binds}
	if _, err = d.engine.CreateContainer(ctx, name, cfg, hostCfg); err != nil {
		return false, fmt.Errorf("create volume container %q: %w", name, err)
	}
	return true, nil
}

// destroyVolumeContainer removes the companion container and the host
// directories of all roles, declared or not: the image metadata at destroy
// time may differ from what the instance was spawned with.
func (d *Driver) destroyVolumeContainer(ctx context.Context, instance *virt.Instance, networkInfo virt.NetworkInfo) error {
	name := volumeContainerName(instance)
	exists, err := d.engine.ContainerExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check volume container %q: %w", name, err)
	}
	if !exists {
		return nil
	}

	if err = d.engine.RemoveContainer(ctx, name, true); err != nil {
		return fmt.Errorf("remove volume container %q: %w", name, err)
	}
	for _, r := range volumeRoles {
		hostDir := d.hostVolumeDir(r.role, instance, networkInfo)
		if err = os.RemoveAll(hostDir); err != nil {
			slog.Warn("Failed to remove volume directory.",
				"instance", instance.Name, "dir", hostDir, "err", err)
		}
	}
	return nil
}

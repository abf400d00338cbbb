package driver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/image"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

// minStopTimeout is the floor for the engine's graceful stop wait. A VM guest
// gets at least this long to shut down before the engine kills it.
const minStopTimeout = 10 * time.Second

// Spawn creates and starts the instance's container. The image is made
// available locally first, the companion volume container is created when the
// image declares volumes, and interfaces are attached after start. Any failure
// past container creation kills the container so no half-deployed instance is
// left running.
func (d *Driver) Spawn(ctx context.Context, instance *virt.Instance, imageMeta *virt.ImageMeta, networkInfo virt.NetworkInfo) error {
	imageName, err := imageNameFor(instance, imageMeta)
	if err != nil {
		return err
	}
	img, err := d.ensureImage(ctx, imageMeta, imageName)
	if err != nil {
		return &virt.DeployError{Instance: instance.Name, Cause: err}
	}

	cfg, hostCfg, err := d.containerSpec(ctx, instance, imageMeta, img, imageName, networkInfo)
	if err != nil {
		return &virt.DeployError{Instance: instance.Name, Cause: err}
	}

	hasVolumes, err := d.ensureVolumeContainer(ctx, instance, imageMeta, imageName, networkInfo)
	if err != nil {
		return &virt.DeployError{Instance: instance.Name, Cause: err}
	}
	if hasVolumes {
		hostCfg.VolumesFrom = []string{volumeContainerName(instance)}
	}

	id, err := d.engine.CreateContainer(ctx, instance.Name, cfg, hostCfg)
	if err != nil {
		return &virt.DeployError{Instance: instance.Name, Cause: fmt.Errorf("create container: %w", err)}
	}

	if err = d.engine.StartContainer(ctx, id); err != nil {
		if kerr := d.engine.KillContainer(ctx, id); kerr != nil {
			slog.Warn("Failed to kill container after start failure.",
				"instance", instance.Name, "container", id, "err", kerr)
		}
		return &virt.DeployError{Instance: instance.Name, Cause: fmt.Errorf("start container: %w", err)}
	}

	return d.seq.Setup(ctx, instance, id, networkInfo)
}

// ensureImage makes imageName available in the engine, fetching it from the
// image store (or the registry when no store is configured) if missing. An
// engine image export is addressed by its engine image ID, so it is tagged
// with imageName before the container references it.
func (d *Driver) ensureImage(ctx context.Context, imageMeta *virt.ImageMeta, imageName string) (image.InspectResponse, error) {
	img, found, err := d.engine.InspectImage(ctx, imageName)
	if err != nil {
		return img, fmt.Errorf("inspect image %q: %w", imageName, err)
	}

	if !found {
		if d.store == nil {
			if err = d.engine.PullImage(ctx, imageName); err != nil {
				return img, fmt.Errorf("pull image %q: %w", imageName, err)
			}
		} else {
			if err = d.fetchStoreImage(ctx, imageMeta, imageName); err != nil {
				return img, err
			}
		}
	}

	if imageMeta.Property(virt.PropImageType) == "image" {
		if err = d.engine.TagImage(ctx, engineImageID(imageMeta.ID), imageName); err != nil {
			return img, fmt.Errorf("tag image %q: %w", imageName, err)
		}
	}
	if found {
		return img, nil
	}

	img, found, err = d.engine.InspectImage(ctx, imageName)
	if err != nil {
		return img, fmt.Errorf("inspect image %q: %w", imageName, err)
	}
	if !found {
		return img, fmt.Errorf("image %q not present after fetch", imageName)
	}
	return img, nil
}

// fetchStoreImage downloads the image blob from the store and loads it into
// the engine.
func (d *Driver) fetchStoreImage(ctx context.Context, imageMeta *virt.ImageMeta, imageName string) error {
	if err := os.MkdirAll(d.cfg.SnapshotsDir, 0o755); err != nil {
		return fmt.Errorf("create snapshots directory: %w", err)
	}
	tmp := filepath.Join(d.cfg.SnapshotsDir, engineImageID(imageMeta.ID)+".tar")
	defer func() {
		if err := os.Remove(tmp); err != nil {
			slog.Warn("Failed to remove fetched image archive.", "path", tmp, "err", err)
		}
	}()

	if err := d.store.Fetch(ctx, imageMeta.ID, tmp); err != nil {
		return fmt.Errorf("fetch image %q from store: %w", imageMeta.ID, err)
	}
	if err := d.engine.LoadImageFromFile(ctx, tmp); err != nil {
		return fmt.Errorf("load image %q: %w", imageName, err)
	}
	return nil
}

// Destroy stops and removes the instance's container, tears down its network
// state and deletes the companion volume container. A no-op when no container
// exists.
func (d *Driver) Destroy(ctx context.Context, instance *virt.Instance, networkInfo virt.NetworkInfo) error {
	id, err := d.containerID(ctx, instance)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}

	if err = d.stopInstance(ctx, instance, id); err != nil {
		slog.Warn("Failed to stop container before removal, removing by force.",
			"instance", instance.Name, "err", err)
	}
	if err = d.engine.RemoveContainer(ctx, id, true); err != nil {
		return fmt.Errorf("remove container for instance %q: %w", instance.Name, err)
	}
	d.teardownNetwork(ctx, instance, id, networkInfo)
	return d.destroyVolumeContainer(ctx, instance, networkInfo)
}

// Cleanup removes the container if one still exists and always releases
// host-side VIF state, even when the container is already gone.
func (d *Driver) Cleanup(ctx context.Context, instance *virt.Instance, networkInfo virt.NetworkInfo) error {
	id, err := d.containerID(ctx, instance)
	if err != nil {
		return err
	}
	if id != "" {
		if err = d.engine.RemoveContainer(ctx, id, true); err != nil {
			return fmt.Errorf("remove container for instance %q: %w", instance.Name, err)
		}
	}
	d.teardownNetwork(ctx, instance, id, networkInfo)
	return nil
}

func (d *Driver) teardownNetwork(ctx context.Context, instance *virt.Instance, containerID string, networkInfo virt.NetworkInfo) {
	if err := d.seq.Teardown(ctx, instance, containerID, networkInfo); err != nil {
		slog.Warn("Failed to tear down instance networking.",
			"instance", instance.Name, "err", err)
	}
}

// Reboot stops the container and starts it again with networking re-attached.
func (d *Driver) Reboot(ctx context.Context, instance *virt.Instance, networkInfo virt.NetworkInfo) error {
	id, err := d.containerID(ctx, instance)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	if err = d.stopInstance(ctx, instance, id); err != nil {
		return err
	}
	d.teardownNetwork(ctx, instance, id, networkInfo)
	return d.startInstance(ctx, instance, id, networkInfo)
}

func (d *Driver) PowerOn(ctx context.Context, instance *virt.Instance, networkInfo virt.NetworkInfo) error {
	id, err := d.containerID(ctx, instance)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	return d.startInstance(ctx, instance, id, networkInfo)
}

func (d *Driver) PowerOff(ctx context.Context, instance *virt.Instance) error {
	id, err := d.containerID(ctx, instance)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	return d.stopInstance(ctx, instance, id)
}

func (d *Driver) Pause(ctx context.Context, instance *virt.Instance) error {
	st, id, err := d.state(ctx, instance)
	if err != nil {
		return err
	}
	if st != virt.StateRunning {
		return &virt.InvalidStateError{Instance: instance.Name, Op: "pause", State: st}
	}
	if err = d.engine.PauseContainer(ctx, id); err != nil {
		return fmt.Errorf("pause instance %q: %w", instance.Name, err)
	}
	return nil
}

func (d *Driver) Unpause(ctx context.Context, instance *virt.Instance) error {
	st, id, err := d.state(ctx, instance)
	if err != nil {
		return err
	}
	if st != virt.StatePaused {
		return &virt.InvalidStateError{Instance: instance.Name, Op: "unpause", State: st}
	}
	if err = d.engine.UnpauseContainer(ctx, id); err != nil {
		return fmt.Errorf("unpause instance %q: %w", instance.Name, err)
	}
	return nil
}

// Restore starts a stopped instance without touching its networking, used
// when host-side interfaces survived the stop.
func (d *Driver) Restore(ctx context.Context, instance *virt.Instance) error {
	id, err := d.containerID(ctx, instance)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	if err = d.engine.StartContainer(ctx, id); err != nil {
		return &virt.DeployError{Instance: instance.Name, Cause: fmt.Errorf("start container: %w", err)}
	}
	return nil
}

// Snapshot commits the instance's container and publishes the result to the
// image store under imageRef. Without a store the committed image stays local.
func (d *Driver) Snapshot(ctx context.Context, instance *virt.Instance, imageRef string) error {
	id, err := d.containerID(ctx, instance)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("snapshot instance %q: %w", instance.Name, virt.ErrNotFound)
	}

	if _, err = d.engine.CommitContainer(ctx, id, imageRef); err != nil {
		return fmt.Errorf("commit container for instance %q: %w", instance.Name, err)
	}
	if d.store == nil {
		return nil
	}

	if err = os.MkdirAll(d.cfg.SnapshotsDir, 0o755); err != nil {
		return fmt.Errorf("create snapshots directory: %w", err)
	}
	archive := filepath.Join(d.cfg.SnapshotsDir, instance.Name+".tar")
	defer func() {
		if rerr := os.Remove(archive); rerr != nil {
			slog.Warn("Failed to remove snapshot archive.", "path", archive, "err", rerr)
		}
	}()
	if err = d.engine.SaveImageToFile(ctx, imageRef, archive); err != nil {
		return fmt.Errorf("export snapshot of instance %q: %w", instance.Name, err)
	}

	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open snapshot archive: %w", err)
	}
	defer f.Close()

	meta := &virt.ImageMeta{
		Name:            imageRef,
		ContainerFormat: "docker",
		DiskFormat:      "raw",
		Status:          "active",
		Properties: map[string]string{
			"image_location":   "snapshot",
			"image_state":      "available",
			"owner_id":         instance.ProjectID,
			virt.PropImageType: "image",
		},
	}
	if err = d.store.Update(ctx, imageRef, meta, f); err != nil {
		return fmt.Errorf("upload snapshot of instance %q: %w", instance.Name, err)
	}
	return nil
}

// startInstance starts the container and attaches its interfaces.
func (d *Driver) startInstance(ctx context.Context, instance *virt.Instance, containerID string, networkInfo virt.NetworkInfo) error {
	if err := d.engine.StartContainer(ctx, containerID); err != nil {
		return &virt.DeployError{Instance: instance.Name, Cause: fmt.Errorf("start container: %w", err)}
	}
	return d.seq.Setup(ctx, instance, containerID, networkInfo)
}

// stopInstance gracefully stops the container. A paused container cannot stop;
// the engine tells us so, and one unpause-and-retry resolves it.
func (d *Driver) stopInstance(ctx context.Context, instance *virt.Instance, containerID string) error {
	err := d.engine.StopContainer(ctx, containerID, minStopTimeout)
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "unpause the container before stopping") {
		if uerr := d.engine.UnpauseContainer(ctx, containerID); uerr != nil {
			return fmt.Errorf("unpause instance %q before stop: %w", instance.Name, uerr)
		}
		if err = d.engine.StopContainer(ctx, containerID, minStopTimeout); err == nil {
			return nil
		}
	}
	return fmt.Errorf("stop container for instance %q: %w", instance.Name, err)
}

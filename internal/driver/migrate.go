package driver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

// Migration staging directories under the snapshots directory. The source
// host exports into migrateSrcDir; the archive lands in migrateDestDir on the
// destination.
const (
	migrateSrcDir  = "migrate_src"
	migrateDestDir = "migrate_dest"
)

func (d *Driver) migrationSrcArchive(instance *virt.Instance) string {
	return filepath.Join(d.cfg.SnapshotsDir, migrateSrcDir, instance.Name+".tar")
}

func (d *Driver) migrationDestArchive(instance *virt.Instance) string {
	return filepath.Join(d.cfg.SnapshotsDir, migrateDestDir, instance.Name+".tar")
}

// MigrateDiskAndPowerOff exports the instance as an image archive, powers it
// off and ships the archive to destHost. Shrinking the allocated disk is
// rejected before any side effect. On failure all staged state on this host
// is rolled back and the original error returned.
func (d *Driver) MigrateDiskAndPowerOff(ctx context.Context, instance *virt.Instance, destHost string, flavor *virt.Flavor) error {
	if flavor.RootGB < instance.RootGB || flavor.EphemeralGB < instance.EphemeralGB {
		return fmt.Errorf("resize instance %q to a smaller disk: %w", instance.Name, virt.ErrResizeDown)
	}

	id, err := d.containerID(ctx, instance)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("migrate instance %q: %w", instance.Name, virt.ErrNotFound)
	}

	archive := d.migrationSrcArchive(instance)
	if err = d.exportAndShip(ctx, instance, id, destHost, archive); err != nil {
		d.rollbackMigrationSource(ctx, instance, archive)
		return fmt.Errorf("migrate disk of instance %q: %w", instance.Name, err)
	}
	return nil
}

func (d *Driver) exportAndShip(ctx context.Context, instance *virt.Instance, containerID, destHost, archive string) error {
	if d.transfer == nil {
		return fmt.Errorf("no archive transfer configured")
	}
	if err := os.MkdirAll(filepath.Dir(archive), 0o755); err != nil {
		return fmt.Errorf("create migration directory: %w", err)
	}
	if _, err := d.engine.CommitContainer(ctx, containerID, instance.Name); err != nil {
		return fmt.Errorf("commit container: %w", err)
	}
	if err := d.engine.SaveImageToFile(ctx, instance.Name, archive); err != nil {
		return fmt.Errorf("export image: %w", err)
	}
	if err := d.stopInstance(ctx, instance, containerID); err != nil {
		return err
	}

	remote := path.Join(d.cfg.SnapshotsDir, migrateDestDir, instance.Name+".tar")
	if err := d.transfer.Copy(ctx, archive, destHost, remote); err != nil {
		return fmt.Errorf("transfer archive to %q: %w", destHost, err)
	}
	return nil
}

// rollbackMigrationSource deletes the staged archive and the committed image.
// Rollback failures are logged, never returned: the migration error is what
// the caller must see.
func (d *Driver) rollbackMigrationSource(ctx context.Context, instance *virt.Instance, archive string) {
	if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove migration archive during rollback.",
			"instance", instance.Name, "path", archive, "err", err)
	}
	if err := d.engine.RemoveImage(ctx, instance.Name); err != nil {
		slog.Warn("Failed to remove committed migration image during rollback.",
			"instance", instance.Name, "err", err)
	}
}

// FinishMigration loads the shipped archive on the destination host and
// builds and starts the instance's container from it.
func (d *Driver) FinishMigration(ctx context.Context, instance *virt.Instance, imageMeta *virt.ImageMeta, networkInfo virt.NetworkInfo) error {
	archive := d.migrationDestArchive(instance)
	if err := d.engine.LoadImageFromFile(ctx, archive); err != nil {
		return fmt.Errorf("load migration archive for instance %q: %w", instance.Name, err)
	}

	img, found, err := d.engine.InspectImage(ctx, instance.Name)
	if err != nil {
		return fmt.Errorf("inspect migrated image for instance %q: %w", instance.Name, err)
	}
	if !found {
		return fmt.Errorf("migrated image for instance %q not present after load", instance.Name)
	}

	cfg, hostCfg, err := d.containerSpec(ctx, instance, imageMeta, img, instance.Name, networkInfo)
	if err != nil {
		return &virt.DeployError{Instance: instance.Name, Cause: err}
	}
	id, err := d.engine.CreateContainer(ctx, instance.Name, cfg, hostCfg)
	if err != nil {
		return &virt.DeployError{Instance: instance.Name, Cause: fmt.Errorf("create container: %w", err)}
	}
	if err = d.startInstance(ctx, instance, id, networkInfo); err != nil {
		return err
	}

	if err = os.Remove(archive); err != nil {
		slog.Warn("Failed to remove migration archive after finish.",
			"instance", instance.Name, "path", archive, "err", err)
	}
	return nil
}

// ConfirmMigration disposes of the source-side container once the destination
// runs the instance. The companion volume container is left in place: its
// binds may still be referenced while the confirm window is open.
func (d *Driver) ConfirmMigration(ctx context.Context, instance *virt.Instance, networkInfo virt.NetworkInfo) error {
	id, err := d.containerID(ctx, instance)
	if err != nil {
		return err
	}
	if id != "" {
		if err = d.stopInstance(ctx, instance, id); err != nil {
			slog.Warn("Failed to stop migrated container, removing by force.",
				"instance", instance.Name, "err", err)
		}
		if err = d.engine.RemoveContainer(ctx, id, true); err != nil {
			return fmt.Errorf("remove container for instance %q: %w", instance.Name, err)
		}
		d.teardownNetwork(ctx, instance, id, networkInfo)
	}

	if d.cfg.DeleteMigrationSource {
		archive := d.migrationSrcArchive(instance)
		if err = os.Remove(archive); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove migration source archive.",
				"instance", instance.Name, "path", archive, "err", err)
		}
	}
	return nil
}

// FinishRevertMigration brings the instance back up on the source host after
// an aborted migration.
func (d *Driver) FinishRevertMigration(ctx context.Context, instance *virt.Instance, networkInfo virt.NetworkInfo) error {
	return d.PowerOn(ctx, instance, networkInfo)
}

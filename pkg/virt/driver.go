// Package virt defines the contract between the host compute manager and a
// virtualization backend that adapts the VM lifecycle onto container
// primitives. The compute manager owns instances and serializes lifecycle
// calls per instance; the driver re-derives all container identity by name on
// every call and persists nothing.
package virt

import (
	"context"
	"io"
	"time"
)

// Driver is the uniform virtualization backend contract expected by the
// compute manager. Operations on instances without a backing container are
// no-ops unless documented otherwise.
type Driver interface {
	// InitHost verifies the container engine is reachable. A failure means the
	// host must not be scheduled.
	InitHost(ctx context.Context) error

	ListInstances(ctx context.Context) ([]string, error)

	// Spawn creates and starts the instance's container, including its
	// companion volume container and network attachment. On any failure after
	// container creation the container is killed and a *DeployError returned.
	Spawn(ctx context.Context, instance *Instance, imageMeta *ImageMeta, networkInfo NetworkInfo) error

	// Destroy stops and removes the instance's container, its network state
	// and its companion volume container. No-op when absent.
	Destroy(ctx context.Context, instance *Instance, networkInfo NetworkInfo) error

	// Cleanup removes the container if present and always unplugs host-side
	// VIF state, even when the container is already gone.
	Cleanup(ctx context.Context, instance *Instance, networkInfo NetworkInfo) error

	Reboot(ctx context.Context, instance *Instance, networkInfo NetworkInfo) error
	PowerOn(ctx context.Context, instance *Instance, networkInfo NetworkInfo) error
	PowerOff(ctx context.Context, instance *Instance) error

	// Pause and Unpause surface failures, including absence, as errors naming
	// the instance.
	Pause(ctx context.Context, instance *Instance) error
	Unpause(ctx context.Context, instance *Instance) error

	// Restore starts a stopped instance without re-attaching networking.
	Restore(ctx context.Context, instance *Instance) error

	GetInfo(ctx context.Context, instance *Instance) (*InstanceInfo, error)
	ConsoleOutput(ctx context.Context, instance *Instance) (string, error)

	// Snapshot commits the running container and uploads the image to the
	// image store under imageRef.
	Snapshot(ctx context.Context, instance *Instance, imageRef string) error

	// MigrateDiskAndPowerOff exports the instance as an image archive, powers
	// it off and transfers the archive to destHost. Returns ErrResizeDown
	// before any side effect when flavor shrinks the allocated disk.
	MigrateDiskAndPowerOff(ctx context.Context, instance *Instance, destHost string, flavor *Flavor) error
	FinishMigration(ctx context.Context, instance *Instance, imageMeta *ImageMeta, networkInfo NetworkInfo) error
	ConfirmMigration(ctx context.Context, instance *Instance, networkInfo NetworkInfo) error
	FinishRevertMigration(ctx context.Context, instance *Instance, networkInfo NetworkInfo) error

	AttachInterface(ctx context.Context, instance *Instance, vif *VIF) error
	DetachInterface(ctx context.Context, instance *Instance, vif *VIF) error
	PlugVIFs(ctx context.Context, instance *Instance, networkInfo NetworkInfo) error
	UnplugVIFs(ctx context.Context, instance *Instance, networkInfo NetworkInfo) error

	AvailableResource(ctx context.Context, nodename string) (*HostResource, error)
	AvailableNodes() ([]string, error)
	HostUptime() (time.Duration, error)
	HostIPAddr() string
}

// VIFDriver prepares and attaches virtual interfaces. Plug and Unplug perform
// host-side preparation outside the engine and must bracket Attach/teardown.
type VIFDriver interface {
	Plug(ctx context.Context, instance *Instance, vif *VIF) error
	Unplug(ctx context.Context, instance *Instance, vif *VIF) error
	// Attach moves the prepared interface into the container's network
	// namespace. secondary marks an interface hot-plugged after spawn.
	Attach(ctx context.Context, instance *Instance, vif *VIF, containerID string, secondary bool) error
}

// ImageStore fetches and publishes instance images.
type ImageStore interface {
	// Fetch downloads the image blob identified by imageID to the local path.
	Fetch(ctx context.Context, imageID, dst string) error
	Show(ctx context.Context, imageRef string) (*ImageMeta, error)
	Update(ctx context.Context, imageRef string, meta *ImageMeta, blob io.Reader) error
}

// ArchiveTransfer copies a local archive to a path on another host.
type ArchiveTransfer interface {
	Copy(ctx context.Context, localPath, destHost, remotePath string) error
}

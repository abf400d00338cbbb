// Package driver implements the compute-manager virtualization contract on
// top of a container engine. Container identity is re-derived from the
// instance name on every call; the driver persists nothing.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/go-units"

	"github.com/dockervirt/dockervirt/internal/config"
	"github.com/dockervirt/dockervirt/internal/hostinfo"
	"github.com/dockervirt/dockervirt/internal/network"
	"github.com/dockervirt/dockervirt/internal/resources"
	"github.com/dockervirt/dockervirt/pkg/virt"
)

const (
	hypervisorType = "docker"
	// hypervisorVersion encodes version 1.0 the way the compute manager
	// compares versions (major*1_000_000 + minor*1_000).
	hypervisorVersion = 1_000_000
)

// Engine is the container engine surface the driver consumes. Implemented by
// *docker.Client; tests substitute a recording fake.
type Engine interface {
	PingDaemon(ctx context.Context) error
	DaemonInfo(ctx context.Context) (system.Info, error)

	FindContainerByName(ctx context.Context, name string) (container.InspectResponse, bool, error)
	ContainerExists(ctx context.Context, name string) (bool, error)
	ListContainerNames(ctx context.Context) ([]string, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)

	CreateContainer(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout time.Duration) error
	KillContainer(ctx context.Context, containerID string) error
	PauseContainer(ctx context.Context, containerID string) error
	UnpauseContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string, removeVolumes bool) error
	ContainerOutput(ctx context.Context, containerID string) (string, error)
	CPUSetAssignments(ctx context.Context) ([]string, error)

	InspectImage(ctx context.Context, ref string) (image.InspectResponse, bool, error)
	PullImage(ctx context.Context, ref string) error
	TagImage(ctx context.Context, source, target string) error
	CommitContainer(ctx context.Context, containerID, ref string) (string, error)
	SaveImageToFile(ctx context.Context, ref, path string) error
	LoadImageFromFile(ctx context.Context, path string) error
	RemoveImage(ctx context.Context, ref string) error
}

type Driver struct {
	cfg      *config.Config
	engine   Engine
	planner  *resources.Planner
	seq      *network.Sequencer
	vif      virt.VIFDriver
	store    virt.ImageStore
	transfer virt.ArchiveTransfer

	nodename string
}

var _ virt.Driver = (*Driver)(nil)

// New assembles a driver. The VIF driver and namespace manager are selected
// by the caller; store and transfer may be nil when image-store fetch and
// migration are not used on this host.
func New(
	cfg *config.Config,
	engine Engine,
	vif virt.VIFDriver,
	ns network.Namespace,
	store virt.ImageStore,
	transfer virt.ArchiveTransfer,
) *Driver {
	return &Driver{
		cfg:      cfg,
		engine:   engine,
		planner:  resources.NewPlanner(cfg, engine),
		seq:      network.NewSequencer(engine, vif, ns),
		vif:      vif,
		store:    store,
		transfer: transfer,
	}
}

// InitHost verifies the engine daemon responds. A host with an unreachable
// daemon must not accept instances.
func (d *Driver) InitHost(ctx context.Context) error {
	if err := d.engine.PingDaemon(ctx); err != nil {
		return fmt.Errorf("%w: %s", virt.ErrDaemonUnreachable, err)
	}
	return nil
}

func (d *Driver) ListInstances(ctx context.Context) ([]string, error) {
	return d.engine.ListContainerNames(ctx)
}

// containerID resolves the instance to its container ID. Absence yields an
// empty ID and no error: state-transition operations treat it as nothing to
// do.
func (d *Driver) containerID(ctx context.Context, instance *virt.Instance) (string, error) {
	resp, found, err := d.engine.FindContainerByName(ctx, instance.Name)
	if err != nil {
		return "", fmt.Errorf("find container for instance %q: %w", instance.Name, err)
	}
	if !found {
		return "", nil
	}
	return resp.ID, nil
}

// state derives the live instance state from the engine.
func (d *Driver) state(ctx context.Context, instance *virt.Instance) (virt.State, string, error) {
	resp, found, err := d.engine.FindContainerByName(ctx, instance.Name)
	if err != nil {
		return virt.StateAbsent, "", fmt.Errorf("find container for instance %q: %w", instance.Name, err)
	}
	if !found {
		return virt.StateAbsent, "", nil
	}
	return containerState(resp), resp.ID, nil
}

func containerState(resp container.InspectResponse) virt.State {
	if resp.State == nil {
		return virt.StateStopped
	}
	switch {
	case resp.State.Paused:
		return virt.StatePaused
	case resp.State.Running:
		return virt.StateRunning
	default:
		return virt.StateStopped
	}
}

func (d *Driver) GetInfo(ctx context.Context, instance *virt.Instance) (*virt.InstanceInfo, error) {
	resp, found, err := d.engine.FindContainerByName(ctx, instance.Name)
	if err != nil {
		return nil, fmt.Errorf("find container for instance %q: %w", instance.Name, err)
	}
	if !found {
		return nil, fmt.Errorf("instance %q: %w", instance.Name, virt.ErrNotFound)
	}

	info := &virt.InstanceInfo{State: containerState(resp)}
	if resp.HostConfig != nil {
		info.MaxMemBytes = resp.HostConfig.Memory
		info.MemBytes = resp.HostConfig.Memory
		info.NumCPU = resp.HostConfig.CPUShares / 1024
	}
	return info, nil
}

func (d *Driver) ConsoleOutput(ctx context.Context, instance *virt.Instance) (string, error) {
	id, err := d.containerID(ctx, instance)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("instance %q: %w", instance.Name, virt.ErrNotFound)
	}
	return d.engine.ContainerOutput(ctx, id)
}

// AttachInterface hot-plugs a single interface into a running instance.
func (d *Driver) AttachInterface(ctx context.Context, instance *virt.Instance, vif *virt.VIF) error {
	if err := d.vif.Plug(ctx, instance, vif); err != nil {
		return fmt.Errorf("plug VIF %q: %w", vif.ID, err)
	}
	id, err := d.containerID(ctx, instance)
	if err != nil {
		return err
	}
	if id == "" {
		return &virt.InvalidStateError{Instance: instance.Name, Op: "attach interface to", State: virt.StateAbsent}
	}
	if err = d.vif.Attach(ctx, instance, vif, id, true); err != nil {
		return fmt.Errorf("attach VIF %q: %w", vif.ID, err)
	}
	return nil
}

func (d *Driver) DetachInterface(ctx context.Context, instance *virt.Instance, vif *virt.VIF) error {
	if err := d.vif.Unplug(ctx, instance, vif); err != nil {
		return fmt.Errorf("unplug VIF %q: %w", vif.ID, err)
	}
	return nil
}

func (d *Driver) PlugVIFs(ctx context.Context, instance *virt.Instance, networkInfo virt.NetworkInfo) error {
	for _, vif := range networkInfo {
		if err := d.vif.Plug(ctx, instance, vif); err != nil {
			return fmt.Errorf("plug VIF %q: %w", vif.ID, err)
		}
	}
	return nil
}

// UnplugVIFs unplugs all interfaces, continuing past failures so one broken
// interface does not leak the rest.
func (d *Driver) UnplugVIFs(ctx context.Context, instance *virt.Instance, networkInfo virt.NetworkInfo) error {
	var firstErr error
	for _, vif := range networkInfo {
		if err := d.vif.Unplug(ctx, instance, vif); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unplug VIF %q: %w", vif.ID, err)
		}
	}
	return firstErr
}

// AvailableResource reports host capacity to the scheduler.
func (d *Driver) AvailableResource(ctx context.Context, nodename string) (*virt.HostResource, error) {
	if d.nodename == "" {
		d.nodename = nodename
	} else if d.nodename != nodename {
		slog.Error("Hostname has changed. A restart is required to take effect.",
			"old", d.nodename, "new", nodename)
	}

	mem, err := hostinfo.MemoryUsage()
	if err != nil {
		return nil, fmt.Errorf("host memory usage: %w", err)
	}
	info, err := d.engine.DaemonInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine daemon info: %w", err)
	}
	disk, err := hostinfo.DiskUsage(info.DockerRootDir)
	if err != nil {
		return nil, fmt.Errorf("host disk usage: %w", err)
	}

	return &virt.HostResource{
		VCPUs:              hostinfo.NumCPU() * d.cfg.AllocationRatio,
		VCPUsUsed:          0,
		MemoryMB:           mem.Total / units.MiB,
		MemoryMBUsed:       mem.Used / units.MiB,
		LocalGB:            disk.Total / units.GiB,
		LocalGBUsed:        disk.Used / units.GiB,
		DiskAvailableLeast: disk.Available / units.GiB,
		HypervisorType:     hypervisorType,
		HypervisorVersion:  hypervisorVersion,
		HypervisorHostname: d.nodename,
		CPUInfo:            "?",
		SupportedInstances: [][3]string{
			{"i686", "docker", "lxc"},
			{"x86_64", "docker", "lxc"},
		},
	}, nil
}

func (d *Driver) AvailableNodes() ([]string, error) {
	hostname, err := hostinfo.Hostname()
	if err != nil {
		return nil, fmt.Errorf("get hostname: %w", err)
	}
	return []string{hostname}, nil
}

func (d *Driver) HostUptime() (time.Duration, error) {
	return hostinfo.Uptime()
}

func (d *Driver) HostIPAddr() string {
	return d.cfg.HostIP
}

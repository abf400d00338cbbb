package driver

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/system"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

// fakeEngine is an in-memory Engine recording every mutating call in order.
type fakeEngine struct {
	containers map[string]*fakeContainer // keyed by container name
	images     map[string]image.InspectResponse

	calls         []string
	killed        []string
	removedImages []string

	createErr   error
	startErr    error
	stopErr     error
	stopErrOnce bool
	saveErr     error
}

type fakeContainer struct {
	id      string
	running bool
	paused  bool
	pid     int
	cfg     *container.Config
	hostCfg *container.HostConfig
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		containers: map[string]*fakeContainer{},
		images:     map[string]image.InspectResponse{},
	}
}

func (e *fakeEngine) record(format string, args ...any) {
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

func (e *fakeEngine) byID(id string) *fakeContainer {
	for name, ct := range e.containers {
		if ct.id == id || name == id {
			return ct
		}
	}
	return nil
}

func (e *fakeEngine) inspect(ct *fakeContainer) container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID: ct.id,
			State: &container.State{
				Running: ct.running,
				Paused:  ct.paused,
				Pid:     ct.pid,
			},
			HostConfig: ct.hostCfg,
		},
		Config: ct.cfg,
	}
}

func (e *fakeEngine) PingDaemon(ctx context.Context) error { return nil }

func (e *fakeEngine) DaemonInfo(ctx context.Context) (system.Info, error) {
	return system.Info{DockerRootDir: "/var/lib/docker"}, nil
}

func (e *fakeEngine) FindContainerByName(ctx context.Context, name string) (container.InspectResponse, bool, error) {
	ct, ok := e.containers[name]
	if !ok {
		return container.InspectResponse{}, false, nil
	}
	return e.inspect(ct), true, nil
}

func (e *fakeEngine) ContainerExists(ctx context.Context, name string) (bool, error) {
	_, ok := e.containers[name]
	return ok, nil
}

func (e *fakeEngine) ListContainerNames(ctx context.Context) ([]string, error) {
	var names []string
	for name := range e.containers {
		names = append(names, name)
	}
	return names, nil
}

func (e *fakeEngine) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	ct := e.byID(containerID)
	if ct == nil {
		return container.InspectResponse{}, fmt.Errorf("no such container: %s", containerID)
	}
	return e.inspect(ct), nil
}

func (e *fakeEngine) CreateContainer(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig) (string, error) {
	if e.createErr != nil {
		return "", e.createErr
	}
	e.record("create %s", name)
	ct := &fakeContainer{id: name + "-id", pid: 42, cfg: cfg, hostCfg: hostCfg}
	e.containers[name] = ct
	return ct.id, nil
}

func (e *fakeEngine) StartContainer(ctx context.Context, containerID string) error {
	if e.startErr != nil {
		return e.startErr
	}
	e.record("start %s", containerID)
	if ct := e.byID(containerID); ct != nil {
		ct.running = true
	}
	return nil
}

func (e *fakeEngine) StopContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	if e.stopErr != nil {
		err := e.stopErr
		if e.stopErrOnce {
			e.stopErr = nil
		}
		return err
	}
	e.record("stop %s", containerID)
	if ct := e.byID(containerID); ct != nil {
		ct.running = false
	}
	return nil
}

func (e *fakeEngine) KillContainer(ctx context.Context, containerID string) error {
	e.killed = append(e.killed, containerID)
	if ct := e.byID(containerID); ct != nil {
		ct.running = false
	}
	return nil
}

func (e *fakeEngine) PauseContainer(ctx context.Context, containerID string) error {
	e.record("pause %s", containerID)
	if ct := e.byID(containerID); ct != nil {
		ct.paused = true
	}
	return nil
}

func (e *fakeEngine) UnpauseContainer(ctx context.Context, containerID string) error {
	e.record("unpause %s", containerID)
	if ct := e.byID(containerID); ct != nil {
		ct.paused = false
	}
	return nil
}

func (e *fakeEngine) RemoveContainer(ctx context.Context, containerID string, removeVolumes bool) error {
	for name, ct := range e.containers {
		if ct.id == containerID || name == containerID {
			e.record("remove %s", name)
			delete(e.containers, name)
			return nil
		}
	}
	return fmt.Errorf("no such container: %s", containerID)
}

func (e *fakeEngine) ContainerOutput(ctx context.Context, containerID string) (string, error) {
	return "console output", nil
}

func (e *fakeEngine) CPUSetAssignments(ctx context.Context) ([]string, error) {
	var pins []string
	for _, ct := range e.containers {
		if ct.hostCfg != nil && ct.hostCfg.CpusetCpus != "" {
			pins = append(pins, ct.hostCfg.CpusetCpus)
		}
	}
	return pins, nil
}

func (e *fakeEngine) InspectImage(ctx context.Context, ref string) (image.InspectResponse, bool, error) {
	img, ok := e.images[ref]
	return img, ok, nil
}

func (e *fakeEngine) PullImage(ctx context.Context, ref string) error {
	e.record("pull %s", ref)
	e.images[ref] = image.InspectResponse{}
	return nil
}

func (e *fakeEngine) TagImage(ctx context.Context, source, target string) error {
	e.record("tag %s %s", source, target)
	e.images[target] = e.images[source]
	return nil
}

func (e *fakeEngine) CommitContainer(ctx context.Context, containerID, ref string) (string, error) {
	e.record("commit %s", ref)
	e.images[ref] = image.InspectResponse{}
	return "sha256:" + ref, nil
}

func (e *fakeEngine) SaveImageToFile(ctx context.Context, ref, path string) error {
	if e.saveErr != nil {
		return e.saveErr
	}
	e.record("save %s", ref)
	return os.WriteFile(path, []byte("image archive"), 0o600)
}

func (e *fakeEngine) LoadImageFromFile(ctx context.Context, path string) error {
	e.record("load %s", path)
	return nil
}

func (e *fakeEngine) RemoveImage(ctx context.Context, ref string) error {
	e.record("rmi %s", ref)
	e.removedImages = append(e.removedImages, ref)
	delete(e.images, ref)
	return nil
}

// fakeNamespace is a no-op namespace manager recording linked containers.
type fakeNamespace struct {
	linked   []string
	unlinked []string
}

func (n *fakeNamespace) Link(pid int, containerID string) error {
	n.linked = append(n.linked, containerID)
	return nil
}

func (n *fakeNamespace) Unlink(containerID string) error {
	n.unlinked = append(n.unlinked, containerID)
	return nil
}

func (n *fakeNamespace) SetLoopbackUp(containerID string) error { return nil }

// fakeVIF records plug/unplug/attach calls per VIF ID.
type fakeVIF struct {
	plugged   []string
	unplugged []string
	attached  []string
}

func (f *fakeVIF) Plug(ctx context.Context, instance *virt.Instance, vif *virt.VIF) error {
	f.plugged = append(f.plugged, vif.ID)
	return nil
}

func (f *fakeVIF) Unplug(ctx context.Context, instance *virt.Instance, vif *virt.VIF) error {
	f.unplugged = append(f.unplugged, vif.ID)
	return nil
}

func (f *fakeVIF) Attach(ctx context.Context, instance *virt.Instance, vif *virt.VIF, containerID string, secondary bool) error {
	f.attached = append(f.attached, vif.ID)
	return nil
}

// Package network wires container network namespaces and virtual interfaces.
// The sequencer performs the post-start attachment steps in a fixed order and
// rolls back by killing the container when any step fails partway.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types/container"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

const (
	// pidPollInterval and pidPollAttempts bound the wait for the process to be
	// spawned inside the container. This is usually fast; the bound only
	// covers the race on a slow machine.
	pidPollInterval = 1 * time.Second
	pidPollAttempts = 15
)

// engineAPI is the engine subset the sequencer needs: discovering the
// container process and killing the container on rollback.
type engineAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	KillContainer(ctx context.Context, containerID string) error
}

// Namespace manages the host-side view of a container's network namespace.
type Namespace interface {
	// Link exposes the process's network namespace under the container ID.
	Link(pid int, containerID string) error
	Unlink(containerID string) error
	SetLoopbackUp(containerID string) error
}

type Sequencer struct {
	engine engineAPI
	vif    virt.VIFDriver
	ns     Namespace
}

func NewSequencer(engine engineAPI, vif virt.VIFDriver, ns Namespace) *Sequencer {
	return &Sequencer{engine: engine, vif: vif, ns: ns}
}

// Setup plugs and attaches all interfaces to a freshly started container.
// If any step fails the container is killed, never left half-networked, and
// the returned error carries the original cause. The container is deliberately
// not removed: that is the caller's decision, and removal here would discard
// diagnostic state.
func (s *Sequencer) Setup(ctx context.Context, instance *virt.Instance, containerID string, networkInfo virt.NetworkInfo) error {
	if len(networkInfo) == 0 {
		return nil
	}

	if err := s.connect(ctx, instance, containerID, networkInfo); err != nil {
		if kerr := s.engine.KillContainer(ctx, containerID); kerr != nil {
			slog.Warn("Failed to kill container after network setup failure.",
				"instance", instance.Name, "container", containerID, "err", kerr)
		}
		return &virt.NetworkSetupError{Instance: instance.Name, Cause: err}
	}
	return nil
}

func (s *Sequencer) connect(ctx context.Context, instance *virt.Instance, containerID string, networkInfo virt.NetworkInfo) error {
	for _, vif := range networkInfo {
		if err := s.vif.Plug(ctx, instance, vif); err != nil {
			return fmt.Errorf("plug VIF %q: %w", vif.ID, err)
		}
	}

	pid, err := s.waitContainerPID(ctx, containerID)
	if err != nil {
		return err
	}

	if err = s.ns.Link(pid, containerID); err != nil {
		return fmt.Errorf("link network namespace of container %q: %w", containerID, err)
	}
	if err = s.ns.SetLoopbackUp(containerID); err != nil {
		return fmt.Errorf("bring loopback up in container %q: %w", containerID, err)
	}

	for _, vif := range networkInfo {
		if err = s.vif.Attach(ctx, instance, vif, containerID, false); err != nil {
			return fmt.Errorf("attach VIF %q: %w", vif.ID, err)
		}
	}
	return nil
}

// waitContainerPID polls the engine until the container's init process is
// assigned a PID. A PID that never shows up means the container cannot run at
// all, which is a fatal configuration error.
func (s *Sequencer) waitContainerPID(ctx context.Context, containerID string) (int, error) {
	var pid int
	poll := func() error {
		inspect, err := s.engine.ContainerInspect(ctx, containerID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if inspect.State == nil || inspect.State.Pid == 0 {
			return fmt.Errorf("process not spawned yet")
		}
		pid = inspect.State.Pid
		return nil
	}

	boff := backoff.WithMaxRetries(backoff.NewConstantBackOff(pidPollInterval), pidPollAttempts)
	if err := backoff.Retry(poll, backoff.WithContext(boff, ctx)); err != nil {
		return 0, fmt.Errorf("cannot find any PID under container %q: %w", containerID, err)
	}
	return pid, nil
}

// Teardown removes the namespace link and unplugs all interfaces. Failures
// are collected but do not stop the remaining steps: host-side VIF state must
// not leak because one interface failed to unplug.
func (s *Sequencer) Teardown(ctx context.Context, instance *virt.Instance, containerID string, networkInfo virt.NetworkInfo) error {
	var firstErr error
	if containerID != "" {
		if err := s.ns.Unlink(containerID); err != nil {
			firstErr = fmt.Errorf("unlink network namespace of container %q: %w", containerID, err)
		}
	}
	for _, vif := range networkInfo {
		if err := s.vif.Unplug(ctx, instance, vif); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unplug VIF %q: %w", vif.ID, err)
		}
	}
	return firstErr
}

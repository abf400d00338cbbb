// Package docker wraps the container engine HTTP client with the composite
// operations the driver needs: name-based container resolution, image archive
// handling and daemon readiness checks.
package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"
)

type Client struct {
	*client.Client
}

// NewClient connects to the engine at endpoint. An empty apiVersion enables
// version negotiation with the daemon.
func NewClient(endpoint, apiVersion string, timeout time.Duration) (*Client, error) {
	opts := []client.Opt{client.WithHost(endpoint)}
	if apiVersion != "" {
		opts = append(opts, client.WithVersion(apiVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}
	if timeout > 0 {
		opts = append(opts, client.WithTimeout(timeout))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("init engine client: %w", err)
	}
	return &Client{Client: cli}, nil
}

// PingDaemon checks that the engine daemon responds.
func (cli *Client) PingDaemon(ctx context.Context) error {
	_, err := cli.Ping(ctx)
	return err
}

// WaitDaemonReady waits for the engine daemon to start and be ready to serve
// requests.
func (cli *Client) WaitDaemonReady(ctx context.Context) error {
	boff := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(1*time.Second),
		backoff.WithMaxElapsedTime(0),
	), ctx)

	waitingLogged := false
	ping := func() error {
		_, err := cli.Ping(ctx)
		if err == nil {
			if waitingLogged {
				slog.Info("Engine daemon is ready.")
			}
			return nil
		}
		if !client.IsErrConnectionFailed(err) {
			return backoff.Permanent(fmt.Errorf("connect to engine daemon: %w", err))
		}

		if !waitingLogged {
			slog.Info("Waiting for engine daemon to start and be ready.")
			waitingLogged = true
		}
		return err
	}

	if err := backoff.Retry(ping, boff); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("ping engine daemon: %w", err)
	}
	return nil
}

// DaemonInfo returns the engine daemon's system information.
func (cli *Client) DaemonInfo(ctx context.Context) (system.Info, error) {
	return cli.Info(ctx)
}

// CreateContainer creates a container and returns its ID.
func (cli *Client) CreateContainer(
	ctx context.Context, name string, config *container.Config, hostConfig *container.HostConfig,
) (string, error) {
	resp, err := cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return "", err
	}
	for _, w := range resp.Warnings {
		slog.Warn("Engine warning on container create.", "container", name, "warning", w)
	}
	return resp.ID, nil
}

// StartContainer starts a created or stopped container.
func (cli *Client) StartContainer(ctx context.Context, id string) error {
	return cli.ContainerStart(ctx, id, container.StartOptions{})
}

// StopContainer stops a container, giving it the timeout to exit before the
// engine kills it.
func (cli *Client) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	return cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs})
}

// KillContainer sends SIGKILL to a container's init process.
func (cli *Client) KillContainer(ctx context.Context, id string) error {
	return cli.ContainerKill(ctx, id, "KILL")
}

func (cli *Client) PauseContainer(ctx context.Context, id string) error {
	return cli.ContainerPause(ctx, id)
}

func (cli *Client) UnpauseContainer(ctx context.Context, id string) error {
	return cli.ContainerUnpause(ctx, id)
}

// RemoveContainer force-removes a container, optionally with its anonymous
// volumes.
func (cli *Client) RemoveContainer(ctx context.Context, id string, removeVolumes bool) error {
	return cli.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: removeVolumes,
	})
}

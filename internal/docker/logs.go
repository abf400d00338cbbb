package docker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// ContainerOutput returns the combined stdout and stderr of a container.
// Output of containers without a TTY is multiplexed and has to be demuxed.
func (cli *Client) ContainerOutput(ctx context.Context, id string) (string, error) {
	rc, err := cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("get container logs: %w", err)
	}
	defer rc.Close()

	inspect, err := cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("inspect container: %w", err)
	}

	var buf bytes.Buffer
	if inspect.Config != nil && inspect.Config.Tty {
		if _, err = buf.ReadFrom(rc); err != nil {
			return "", fmt.Errorf("read container logs: %w", err)
		}
	} else {
		if _, err = stdcopy.StdCopy(&buf, &buf, rc); err != nil {
			return "", fmt.Errorf("demux container logs: %w", err)
		}
	}
	return buf.String(), nil
}

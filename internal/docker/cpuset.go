package docker

import (
	"context"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// CPUSetAssignments returns the CpusetCpus pins of all containers, including
// stopped ones, for the resource planner's allocation map.
func (cli *Client) CPUSetAssignments(ctx context.Context) ([]string, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, err
	}

	var pins []string
	for _, ct := range containers {
		inspect, err := cli.ContainerInspect(ctx, ct.ID)
		if err != nil {
			if client.IsErrNotFound(err) {
				// Removed while iterating.
				continue
			}
			return nil, err
		}
		if inspect.HostConfig != nil && inspect.HostConfig.CpusetCpus != "" {
			pins = append(pins, inspect.HostConfig.CpusetCpus)
		}
	}
	return pins, nil
}

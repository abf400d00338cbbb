package docker

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// containerAPI is the subset of the engine client the resolver needs.
// Extracted so tests can substitute a fake engine.
type containerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// FindContainerByName resolves an instance name to its container's inspection
// record. The engine filters by name substring, so the stripped name must
// match exactly to defend against prefix collisions ("vm1" vs "vm10").
// Absence is not an error: it returns found=false and a zero record.
func (cli *Client) FindContainerByName(ctx context.Context, name string) (container.InspectResponse, bool, error) {
	return findContainerByName(ctx, cli.Client, name)
}

func findContainerByName(ctx context.Context, api containerAPI, name string) (container.InspectResponse, bool, error) {
	var zero container.InspectResponse

	containers, err := api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return zero, false, nil
		}
		return zero, false, err
	}

	for _, ct := range containers {
		if !matchesName(ct, name) {
			continue
		}
		resp, err := api.ContainerInspect(ctx, ct.ID)
		if err != nil {
			if client.IsErrNotFound(err) {
				// Removed between list and inspect.
				return zero, false, nil
			}
			return zero, false, err
		}
		return resp, true, nil
	}
	return zero, false, nil
}

// ContainerExists reports whether a container with exactly the given name
// exists, running or not.
func (cli *Client) ContainerExists(ctx context.Context, name string) (bool, error) {
	return containerExists(ctx, cli.Client, name)
}

func containerExists(ctx context.Context, api containerAPI, name string) (bool, error) {
	containers, err := api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, ct := range containers {
		if matchesName(ct, name) {
			return true, nil
		}
	}
	return false, nil
}

// ContainerRunning reports whether the named container exists and its status
// carries the engine's "Up" marker.
func (cli *Client) ContainerRunning(ctx context.Context, name string) (bool, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, ct := range containers {
		if matchesName(ct, name) {
			return strings.Contains(ct.Status, "Up"), nil
		}
	}
	return false, nil
}

// ListContainerNames returns the stripped names of all containers, including
// stopped ones.
func (cli *Client) ListContainerNames(ctx context.Context) ([]string, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(containers))
	for _, ct := range containers {
		if len(ct.Names) > 0 {
			names = append(names, strings.TrimPrefix(ct.Names[0], "/"))
		}
	}
	return names, nil
}

// matchesName compares the engine's path-style container name against the
// instance name after stripping the leading slash.
func matchesName(ct container.Summary, name string) bool {
	return len(ct.Names) > 0 && strings.TrimPrefix(ct.Names[0], "/") == name
}

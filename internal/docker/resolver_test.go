package docker

import (
	"context"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContainerAPI struct {
	containers []container.Summary
	inspects   map[string]container.InspectResponse
	listErr    error
}

func (f *fakeContainerAPI) ContainerList(
	ctx context.Context, options container.ListOptions,
) ([]container.Summary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	// The engine filters by name substring; emulate that to exercise the
	// exact-match defense in the resolver.
	name := ""
	if options.Filters.Len() > 0 {
		names := options.Filters.Get("name")
		if len(names) > 0 {
			name = names[0]
		}
	}
	var out []container.Summary
	for _, ct := range f.containers {
		if name == "" || containsName(ct, name) {
			out = append(out, ct)
		}
	}
	return out, nil
}

func containsName(ct container.Summary, substr string) bool {
	for _, n := range ct.Names {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}

func (f *fakeContainerAPI) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	if resp, ok := f.inspects[id]; ok {
		return resp, nil
	}
	return container.InspectResponse{}, errdefs.NotFound(assert.AnError)
}

func summary(id string, names ...string) container.Summary {
	return container.Summary{ID: id, Names: names}
}

func inspectResponse(id, name string) container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{ID: id, Name: "/" + name},
	}
}

func TestFindContainerByName(t *testing.T) {
	t.Parallel()

	api := &fakeContainerAPI{
		containers: []container.Summary{
			summary("c10", "/vm10"),
			summary("c1", "/vm1"),
			summary("c1vol", "/vm1_vol"),
		},
		inspects: map[string]container.InspectResponse{
			"c1":    inspectResponse("c1", "vm1"),
			"c10":   inspectResponse("c10", "vm10"),
			"c1vol": inspectResponse("c1vol", "vm1_vol"),
		},
	}

	resp, found, err := findContainerByName(context.Background(), api, "vm1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "c1", resp.ID, "prefix collisions must not match")

	resp, found, err = findContainerByName(context.Background(), api, "vm10")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "c10", resp.ID)

	_, found, err = findContainerByName(context.Background(), api, "vm2")
	require.NoError(t, err)
	assert.False(t, found, "absence is a valid result, not an error")
}

func TestFindContainerByNameNotFoundSwallowed(t *testing.T) {
	t.Parallel()

	api := &fakeContainerAPI{listErr: errdefs.NotFound(assert.AnError)}
	_, found, err := findContainerByName(context.Background(), api, "vm1")
	require.NoError(t, err, "engine 404 maps to absent")
	assert.False(t, found)
}

func TestContainerExists(t *testing.T) {
	t.Parallel()

	api := &fakeContainerAPI{
		containers: []container.Summary{summary("c1", "/vm1")},
	}

	exists, err := containerExists(context.Background(), api, "vm1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = containerExists(context.Background(), api, "vm1_vol")
	require.NoError(t, err)
	assert.False(t, exists)
}

package resources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockervirt/dockervirt/internal/config"
	"github.com/dockervirt/dockervirt/pkg/virt"
)

type staticAssignments []string

func (s staticAssignments) CPUSetAssignments(ctx context.Context) ([]string, error) {
	return s, nil
}

func testPlanner(mode, systemCPUSet string, numCPU int, pins ...string) *Planner {
	return &Planner{
		mode:         mode,
		systemCPUSet: systemCPUSet,
		assignments:  staticAssignments(pins),
		numCPU:       numCPU,
	}
}

func instanceWithFlavor(vcpus int, memoryMB int64) *virt.Instance {
	return &virt.Instance{
		Name:   "vm1",
		Flavor: &virt.Flavor{VCPUs: vcpus, MemoryMB: memoryMB},
	}
}

func TestMemoryLimitBytes(t *testing.T) {
	t.Parallel()

	p := testPlanner(config.CPUModeShare, config.SystemCPUSetNone, 4)

	assert.Equal(t, int64(512*1024*1024), p.MemoryLimitBytes(instanceWithFlavor(2, 512)))

	// Legacy fallback when the flavor object is unavailable.
	legacy := &virt.Instance{
		Name:           "vm1",
		SystemMetadata: map[string]string{virt.SystemMetadataMemoryKey: "256"},
	}
	assert.Equal(t, int64(256*1024*1024), p.MemoryLimitBytes(legacy))

	// Missing metadata defaults to zero.
	assert.Equal(t, int64(0), p.MemoryLimitBytes(&virt.Instance{Name: "vm1"}))
}

func TestCPUShares(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode  string
		vcpus int
		want  int64
	}{
		{config.CPUModeShare, 2, 0},
		{config.CPUModeSet, 2, 2048},
		{config.CPUModeMix, 4, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			p := testPlanner(tt.mode, config.SystemCPUSetNone, 8)
			assert.Equal(t, tt.want, p.CPUShares(instanceWithFlavor(tt.vcpus, 512)))
		})
	}
}

func TestCPUSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("cpuset mode picks least-allocated non-reserved processors", func(t *testing.T) {
		p := testPlanner(config.CPUModeSet, "0", 4, "1", "1,2")
		// Processor 0 reserved; pins: 1 -> 2, 2 -> 1, 3 -> 0.
		set, err := p.CPUSet(ctx, instanceWithFlavor(2, 512))
		require.NoError(t, err)
		assert.Equal(t, "3,2", set)
	})

	t.Run("cpushare mode with reserved set pins away from it", func(t *testing.T) {
		p := testPlanner(config.CPUModeShare, "0,1", 4)
		set, err := p.CPUSet(ctx, instanceWithFlavor(2, 512))
		require.NoError(t, err)
		assert.Equal(t, "2,3", set)
	})

	t.Run("cpushare mode with default sentinel leaves the set unset", func(t *testing.T) {
		p := testPlanner(config.CPUModeShare, config.SystemCPUSetNone, 4)
		set, err := p.CPUSet(ctx, instanceWithFlavor(2, 512))
		require.NoError(t, err)
		assert.Empty(t, set)
	})

	t.Run("cpuset mode fails when too few processors remain", func(t *testing.T) {
		p := testPlanner(config.CPUModeSet, "0,1,2", 4)
		_, err := p.CPUSet(ctx, instanceWithFlavor(2, 512))
		assert.Error(t, err)
	})
}

func TestParseCPUSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"-1", nil, false},
		{"0", []int{0}, false},
		{"0,2,4", []int{0, 2, 4}, false},
		{"0-3", []int{0, 1, 2, 3}, false},
		{"0,2-4,7", []int{0, 2, 3, 4, 7}, false},
		{"3-1", nil, true},
		{"x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCPUSet(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Package resources computes the memory, CPU share and CPU set allocation for
// an instance from its flavor and the configured allocation mode.
package resources

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/docker/go-units"

	"github.com/dockervirt/dockervirt/internal/config"
	"github.com/dockervirt/dockervirt/pkg/virt"
)

// cpuSharesMultiplier matches the control group convention
// (cpu.shares = 1024), so explicitly-shared instances compete proportionally
// against containers started outside this driver, which default to the
// nominal baseline.
const cpuSharesMultiplier = 1024

// AssignmentSource reports the CPU-set pins of existing containers so the
// planner can spread new instances over the least-loaded processors.
type AssignmentSource interface {
	CPUSetAssignments(ctx context.Context) ([]string, error)
}

type Planner struct {
	mode         string
	systemCPUSet string
	assignments  AssignmentSource
	numCPU       int
}

func NewPlanner(cfg *config.Config, assignments AssignmentSource) *Planner {
	return &Planner{
		mode:         cfg.CPUMode,
		systemCPUSet: cfg.SystemCPUSet,
		assignments:  assignments,
		numCPU:       runtime.NumCPU(),
	}
}

// Plan is the computed resource allocation applied at container start.
type Plan struct {
	// MemoryBytes is the hard memory limit.
	MemoryBytes int64
	// CPUShares is the relative scheduling weight. Zero means unconstrained,
	// letting the engine apply its fair-share default.
	CPUShares int64
	// CPUSet pins the container to specific processors. Empty means unset.
	CPUSet string
}

// Compute builds the full resource plan for an instance.
func (p *Planner) Compute(ctx context.Context, instance *virt.Instance) (Plan, error) {
	cpuset, err := p.CPUSet(ctx, instance)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		MemoryBytes: p.MemoryLimitBytes(instance),
		CPUShares:   p.CPUShares(instance),
		CPUSet:      cpuset,
	}, nil
}

// MemoryLimitBytes converts the flavor memory to bytes. Instances without the
// structured flavor object fall back to the legacy system metadata key,
// defaulting to zero when that is missing too.
func (p *Planner) MemoryLimitBytes(instance *virt.Instance) int64 {
	if instance.Flavor != nil {
		return instance.Flavor.MemoryMB * units.MiB
	}
	mb, err := strconv.ParseInt(instance.SystemMetadata[virt.SystemMetadataMemoryKey], 10, 64)
	if err != nil {
		return 0
	}
	return mb * units.MiB
}

// CPUShares returns vcpus x 1024 in cpuset and mix modes. In cpushare mode it
// is left unset so the engine applies its own fair-share default.
func (p *Planner) CPUShares(instance *virt.Instance) int64 {
	if p.mode != config.CPUModeSet && p.mode != config.CPUModeMix {
		return 0
	}
	if instance.Flavor == nil {
		return 0
	}
	return int64(instance.Flavor.VCPUs) * cpuSharesMultiplier
}

// CPUSet computes the processor pinning for an instance.
//
// In cpuset and mix modes it requests vcpus processors from the allocation
// map, which excludes the system-reserved set and prefers the least-loaded
// processors. In pure cpushare mode with a reserved set configured it returns
// the full non-reserved processor list, pinning instances away from reserved
// processors without limiting their count. Otherwise the set is left unset.
func (p *Planner) CPUSet(ctx context.Context, instance *virt.Instance) (string, error) {
	switch p.mode {
	case config.CPUModeSet, config.CPUModeMix:
		if instance.Flavor == nil {
			return "", fmt.Errorf("instance %q has no flavor to size the CPU set", instance.Name)
		}
		m, err := p.allocationMap(ctx)
		if err != nil {
			return "", err
		}
		cpus, err := m.LeastAllocated(instance.Flavor.VCPUs)
		if err != nil {
			return "", fmt.Errorf("allocate CPU set for instance %q: %w", instance.Name, err)
		}
		return FormatCPUSet(cpus), nil
	default:
		if p.systemCPUSet == config.SystemCPUSetNone {
			return "", nil
		}
		m, err := NewAllocationMap(p.numCPU, p.systemCPUSet)
		if err != nil {
			return "", err
		}
		return FormatCPUSet(m.NonReserved()), nil
	}
}

func (p *Planner) allocationMap(ctx context.Context) (*AllocationMap, error) {
	m, err := NewAllocationMap(p.numCPU, p.systemCPUSet)
	if err != nil {
		return nil, err
	}
	if p.assignments == nil {
		return m, nil
	}

	pins, err := p.assignments.CPUSetAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list existing CPU set assignments: %w", err)
	}
	for _, pin := range pins {
		if err = m.Record(pin); err != nil {
			// An unparsable pin came from outside this driver; skip it rather
			// than failing the whole allocation.
			continue
		}
	}
	return m, nil
}

package resources

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AllocationMap tracks, per host processor, how many containers are currently
// pinned to it. Reserved processors are excluded from allocation entirely.
type AllocationMap struct {
	counts   map[int]int
	reserved map[int]struct{}
	cpus     []int // non-reserved processors in ascending order
}

// NewAllocationMap builds a map over processors [0, numCPU) minus the
// system-reserved set.
func NewAllocationMap(numCPU int, systemCPUSet string) (*AllocationMap, error) {
	reserved, err := ParseCPUSet(systemCPUSet)
	if err != nil {
		return nil, fmt.Errorf("parse system cpuset %q: %w", systemCPUSet, err)
	}

	m := &AllocationMap{
		counts:   map[int]int{},
		reserved: map[int]struct{}{},
	}
	for _, cpu := range reserved {
		m.reserved[cpu] = struct{}{}
	}
	for cpu := 0; cpu < numCPU; cpu++ {
		if _, ok := m.reserved[cpu]; ok {
			continue
		}
		m.cpus = append(m.cpus, cpu)
		m.counts[cpu] = 0
	}
	return m, nil
}

// Record counts an existing container's processor pins. Pins on reserved or
// unknown processors are ignored.
func (m *AllocationMap) Record(cpuset string) error {
	cpus, err := ParseCPUSet(cpuset)
	if err != nil {
		return err
	}
	for _, cpu := range cpus {
		if _, ok := m.counts[cpu]; ok {
			m.counts[cpu]++
		}
	}
	return nil
}

// LeastAllocated returns the n processors with the fewest recorded pins,
// lowest processor number first among equals.
func (m *AllocationMap) LeastAllocated(n int) ([]int, error) {
	if n > len(m.cpus) {
		return nil, fmt.Errorf("requested %d processors, only %d allocatable", n, len(m.cpus))
	}
	cpus := make([]int, len(m.cpus))
	copy(cpus, m.cpus)
	sort.SliceStable(cpus, func(i, j int) bool {
		if m.counts[cpus[i]] != m.counts[cpus[j]] {
			return m.counts[cpus[i]] < m.counts[cpus[j]]
		}
		return cpus[i] < cpus[j]
	})
	return cpus[:n], nil
}

// NonReserved returns every allocatable processor in ascending order.
func (m *AllocationMap) NonReserved() []int {
	cpus := make([]int, len(m.cpus))
	copy(cpus, m.cpus)
	return cpus
}

// ParseCPUSet parses a cgroup cpuset list such as "0,2-4,7". The "-1"
// sentinel and the empty string parse to an empty set.
func ParseCPUSet(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-1" {
		return nil, nil
	}

	var cpus []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(lo)
			if err != nil {
				return nil, fmt.Errorf("invalid processor %q", lo)
			}
			end, err := strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("invalid processor %q", hi)
			}
			if end < start {
				return nil, fmt.Errorf("invalid processor range %q", part)
			}
			for cpu := start; cpu <= end; cpu++ {
				cpus = append(cpus, cpu)
			}
			continue
		}
		cpu, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid processor %q", part)
		}
		cpus = append(cpus, cpu)
	}
	return cpus, nil
}

// FormatCPUSet renders a processor list in the comma-joined form the engine
// accepts.
func FormatCPUSet(cpus []int) string {
	parts := make([]string, len(cpus))
	for i, cpu := range cpus {
		parts[i] = strconv.Itoa(cpu)
	}
	return strings.Join(parts, ",")
}

package virt

import "strings"

// Flavor describes the compute resources requested for an instance.
type Flavor struct {
	VCPUs       int   `yaml:"vcpus"`
	MemoryMB    int64 `yaml:"memory_mb"`
	RootGB      int64 `yaml:"root_gb"`
	EphemeralGB int64 `yaml:"ephemeral_gb"`
}

// Instance is the compute manager's view of a logical compute unit. The driver
// never stores instances; the name is the only key used to locate engine-side
// state.
type Instance struct {
	Name     string  `yaml:"name"`
	Hostname string  `yaml:"hostname"`
	Flavor   *Flavor `yaml:"flavor"`
	// SystemMetadata carries legacy flavor attributes for instances that
	// predate the structured Flavor object. Only consulted when Flavor is nil.
	SystemMetadata map[string]string `yaml:"system_metadata,omitempty"`
	// RootGB and EphemeralGB are the currently allocated disk sizes, compared
	// against the target flavor on migration.
	RootGB      int64  `yaml:"root_gb"`
	EphemeralGB int64  `yaml:"ephemeral_gb"`
	OSType      string `yaml:"os_type,omitempty"`
	ProjectID   string `yaml:"project_id,omitempty"`
	UserID      string `yaml:"user_id,omitempty"`
}

// SystemMetadataMemoryKey is the legacy system metadata key holding the flavor
// memory size in MiB.
const SystemMetadataMemoryKey = "instance_type_memory_mb"

// VIF is a virtual network interface to be attached to an instance's
// container.
type VIF struct {
	ID      string   `yaml:"id"`
	MAC     string   `yaml:"mac,omitempty"`
	Bridge  string   `yaml:"bridge,omitempty"`
	IPs     []string `yaml:"ips,omitempty"` // CIDR notation
	Gateway string   `yaml:"gateway,omitempty"`
	DNS     []string `yaml:"dns,omitempty"`
}

// NetworkInfo is the ordered list of interfaces assigned to an instance.
// Attachment order is significant: the first interface becomes eth0.
type NetworkInfo []*VIF

// DNS returns the deduplicated DNS servers declared across all interfaces,
// preserving first-seen order.
func (ni NetworkInfo) DNS() []string {
	var servers []string
	seen := map[string]struct{}{}
	for _, vif := range ni {
		for _, s := range vif.DNS {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			servers = append(servers, s)
		}
	}
	return servers
}

// FirstIP returns the first assigned address (without the prefix length) of
// the first interface, or an empty string if none is assigned.
func (ni NetworkInfo) FirstIP() string {
	for _, vif := range ni {
		for _, addr := range vif.IPs {
			ip, _, _ := strings.Cut(addr, "/")
			return ip
		}
	}
	return ""
}

// ImageMeta is the image store's metadata record for an instance image.
type ImageMeta struct {
	ID              string            `yaml:"id"`
	Name            string            `yaml:"name"`
	ContainerFormat string            `yaml:"container_format"`
	DiskFormat      string            `yaml:"disk_format,omitempty"`
	Status          string            `yaml:"status,omitempty"`
	Public          bool              `yaml:"public,omitempty"`
	Properties      map[string]string `yaml:"properties,omitempty"`
}

// Property returns the named image property or an empty string.
func (m *ImageMeta) Property(name string) string {
	if m == nil {
		return ""
	}
	return m.Properties[name]
}

// Image properties recognized by the driver.
const (
	PropImageType   = "docker_image_type"
	PropCommandLine = "os_command_line"
	PropLogVolume   = "log_volume"
	PropDataVolume  = "data_volume"
	PropOtherVolume = "other_volume"
)

// State is the live instance state derived from the engine. It is never
// persisted.
type State string

const (
	StateAbsent  State = "absent"
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// InstanceInfo is the runtime information reported to the compute manager.
type InstanceInfo struct {
	State       State
	MaxMemBytes int64
	MemBytes    int64
	NumCPU      int64
	CPUTime     int64
}

// HostResource reports the host capacity to the compute manager's scheduler.
type HostResource struct {
	VCPUs              int
	VCPUsUsed          int
	MemoryMB           int64
	MemoryMBUsed       int64
	LocalGB            int64
	LocalGBUsed        int64
	DiskAvailableLeast int64
	HypervisorType     string
	HypervisorVersion  int
	HypervisorHostname string
	CPUInfo            string
	SupportedInstances [][3]string
}

// Package config defines the driver configuration surface.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// CPU allocation modes. See Config.CPUMode.
const (
	CPUModeShare = "cpushare"
	CPUModeSet   = "cpuset"
	CPUModeMix   = "mix"
)

// SystemCPUSetNone is the sentinel meaning no processors are reserved for the
// system.
const SystemCPUSetNone = "-1"

// Storage backends the engine may be configured with. Only recorded; disk
// resize behavior per backend is handled outside this driver.
const (
	StorageDeviceMapper = "device_mapper"
	StorageOverlayFS    = "overlayfs"
)

type Config struct {
	// Endpoint is the container engine connection string, either
	// unix:///path/to/socket or tcp://host:port.
	Endpoint string `yaml:"endpoint"`
	// APIVersion pins the engine API version used to manage containers.
	// Empty means the version is negotiated with the daemon.
	APIVersion string        `yaml:"api_version"`
	APITimeout time.Duration `yaml:"api_timeout"`

	// Privileged grants containers full root privileges. Required for the
	// in-container network namespace manipulation performed at attach time.
	Privileged bool `yaml:"privileged"`

	// SnapshotsDir is where snapshots and migration archives are staged.
	SnapshotsDir string `yaml:"snapshots_dir"`
	// VolumeDir is the base path for companion volume container bind mounts.
	VolumeDir string `yaml:"volume_dir"`
	// NetnsDir is where container network namespaces are symlinked.
	NetnsDir string `yaml:"netns_dir"`

	// CPUMode selects how processor resources are allocated:
	// cpushare (engine fair-share default), cpuset (explicit pinning) or mix.
	CPUMode string `yaml:"cpu_mode"`
	// SystemCPUSet lists processors reserved for the system, e.g. "0,1".
	// SystemCPUSetNone means no reservation.
	SystemCPUSet string `yaml:"system_cpuset"`
	// AllocationRatio oversubscribes host vcpus reported to the scheduler.
	AllocationRatio int `yaml:"allocation_ratio"`

	StorageBackend string `yaml:"storage_backend"`

	// DeleteMigrationSource removes the source-side archive when a migration
	// is confirmed.
	DeleteMigrationSource bool `yaml:"delete_migration_source"`

	// HostIP is the address reported to the compute manager for this host.
	HostIP string `yaml:"host_ip"`

	// SSHUser and SSHKeyFile authenticate migration archive transfers to
	// destination hosts.
	SSHUser    string `yaml:"ssh_user"`
	SSHKeyFile string `yaml:"ssh_key_file"`
}

func Default() *Config {
	return &Config{
		Endpoint:        "unix:///var/run/docker.sock",
		APITimeout:      360 * time.Second,
		Privileged:      true,
		SnapshotsDir:    "/var/lib/dockervirt/snapshots",
		VolumeDir:       "/os_docker_volume",
		NetnsDir:        "/var/run/netns",
		CPUMode:         CPUModeShare,
		SystemCPUSet:    SystemCPUSetNone,
		AllocationRatio: 3,
		StorageBackend:  StorageDeviceMapper,
		SSHUser:         "root",
	}
}

// NewFromFile loads the configuration from path on top of the defaults.
// A missing file is not an error and yields the defaults.
func NewFromFile(path string) (*Config, error) {
	c := Default()

	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("check config file '%s': %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file '%s': %w", path, err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config file '%s': %s", path, yaml.FormatError(err, true, true))
	}
	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config file '%s': %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.CPUMode {
	case CPUModeShare, CPUModeSet, CPUModeMix:
	default:
		return fmt.Errorf("unsupported cpu_mode %q", c.CPUMode)
	}
	switch c.StorageBackend {
	case StorageDeviceMapper, StorageOverlayFS:
	default:
		return fmt.Errorf("unsupported storage_backend %q", c.StorageBackend)
	}
	if c.AllocationRatio <= 0 {
		return fmt.Errorf("allocation_ratio must be positive, got %d", c.AllocationRatio)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromFileMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	c, err := NewFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestNewFromFileOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: tcp://10.0.0.1:2375
api_timeout: 30s
cpu_mode: mix
system_cpuset: "0,1"
allocation_ratio: 2
delete_migration_source: true
`), 0o600))

	c, err := NewFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.1:2375", c.Endpoint)
	assert.Equal(t, 30*time.Second, c.APITimeout)
	assert.Equal(t, CPUModeMix, c.CPUMode)
	assert.Equal(t, "0,1", c.SystemCPUSet)
	assert.Equal(t, 2, c.AllocationRatio)
	assert.True(t, c.DeleteMigrationSource)
	// Untouched keys keep their defaults.
	assert.True(t, c.Privileged)
	assert.Equal(t, "/os_docker_volume", c.VolumeDir)
}

func TestNewFromFileRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cpu_mode: exclusive\n"), 0o600))

	_, err := NewFromFile(path)
	assert.ErrorContains(t, err, "cpu_mode")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	c := Default()
	assert.NoError(t, c.Validate())

	c = Default()
	c.StorageBackend = "zfs"
	assert.ErrorContains(t, c.Validate(), "storage_backend")

	c = Default()
	c.AllocationRatio = 0
	assert.ErrorContains(t, c.Validate(), "allocation_ratio")
}

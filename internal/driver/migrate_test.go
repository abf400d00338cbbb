package driver

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockervirt/dockervirt/internal/config"
	"github.com/dockervirt/dockervirt/internal/network"
	"github.com/dockervirt/dockervirt/pkg/virt"
)

type fakeStore struct {
	updates []string
}

func (s *fakeStore) Fetch(ctx context.Context, imageID, dst string) error {
	return os.WriteFile(dst, []byte("image archive"), 0o600)
}

func (s *fakeStore) Show(ctx context.Context, imageRef string) (*virt.ImageMeta, error) {
	return &virt.ImageMeta{Name: imageRef, ContainerFormat: "docker"}, nil
}

func (s *fakeStore) Update(ctx context.Context, imageRef string, meta *virt.ImageMeta, blob io.Reader) error {
	if _, err := io.ReadAll(blob); err != nil {
		return err
	}
	s.updates = append(s.updates, imageRef)
	return nil
}

type fakeTransfer struct {
	copies [][3]string // local, host, remote
	err    error
}

func (tr *fakeTransfer) Copy(ctx context.Context, localPath, destHost, remotePath string) error {
	if tr.err != nil {
		return tr.err
	}
	tr.copies = append(tr.copies, [3]string{localPath, destHost, remotePath})
	return nil
}

func migrationDriver(t *testing.T, engine *fakeEngine, transfer *fakeTransfer) (*Driver, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.SnapshotsDir = t.TempDir()
	cfg.VolumeDir = t.TempDir()
	d := New(cfg, engine, network.NoopVIFDriver{}, &fakeNamespace{}, nil, transfer)
	return d, cfg
}

func migratingInstance() *virt.Instance {
	inst := testInstance("vm1")
	inst.RootGB = 10
	inst.EphemeralGB = 5
	return inst
}

func TestMigrateRejectsResizeDownBeforeSideEffects(t *testing.T) {
	t.Parallel()
	engine := newFakeEngine()
	engine.containers["vm1"] = &fakeContainer{id: "vm1-id", running: true, pid: 42}
	d, _ := migrationDriver(t, engine, &fakeTransfer{})

	flavor := &virt.Flavor{VCPUs: 2, MemoryMB: 512, RootGB: 5, EphemeralGB: 5}
	err := d.MigrateDiskAndPowerOff(context.Background(), migratingInstance(), "dest-host", flavor)

	require.ErrorIs(t, err, virt.ErrResizeDown)
	assert.Empty(t, engine.calls, "resize-down must be rejected before any side effect")
	assert.Contains(t, engine.containers, "vm1")
}

func TestMigrateDiskAndPowerOff(t *testing.T) {
	t.Parallel()
	engine := newFakeEngine()
	engine.containers["vm1"] = &fakeContainer{id: "vm1-id", running: true, pid: 42}
	transfer := &fakeTransfer{}
	d, cfg := migrationDriver(t, engine, transfer)

	flavor := &virt.Flavor{VCPUs: 2, MemoryMB: 512, RootGB: 20, EphemeralGB: 5}
	err := d.MigrateDiskAndPowerOff(context.Background(), migratingInstance(), "dest-host", flavor)
	require.NoError(t, err)

	assert.Equal(t, []string{"commit vm1", "save vm1", "stop vm1-id"}, engine.calls)
	require.Len(t, transfer.copies, 1)
	local := filepath.Join(cfg.SnapshotsDir, "migrate_src", "vm1.tar")
	assert.Equal(t, local, transfer.copies[0][0])
	assert.Equal(t, "dest-host", transfer.copies[0][1])
	assert.Equal(t, filepath.Join(cfg.SnapshotsDir, "migrate_dest", "vm1.tar"), transfer.copies[0][2])
	assert.FileExists(t, local)
}

func TestMigrateRollbackPreservesOriginalError(t *testing.T) {
	t.Parallel()
	engine := newFakeEngine()
	engine.containers["vm1"] = &fakeContainer{id: "vm1-id", running: true, pid: 42}
	transfer := &fakeTransfer{err: errors.New("connection refused")}
	d, cfg := migrationDriver(t, engine, transfer)

	flavor := &virt.Flavor{VCPUs: 2, MemoryMB: 512, RootGB: 20, EphemeralGB: 5}
	err := d.MigrateDiskAndPowerOff(context.Background(), migratingInstance(), "dest-host", flavor)

	require.ErrorIs(t, err, transfer.err, "transfer failure must not be masked by rollback")
	assert.NoFileExists(t, filepath.Join(cfg.SnapshotsDir, "migrate_src", "vm1.tar"))
	assert.Equal(t, []string{"vm1"}, engine.removedImages)
}

func TestFinishMigrationStartsInstance(t *testing.T) {
	t.Parallel()
	engine := newFakeEngine()
	d, cfg := migrationDriver(t, engine, nil)

	archiveDir := filepath.Join(cfg.SnapshotsDir, "migrate_dest")
	require.NoError(t, os.MkdirAll(archiveDir, 0o755))
	archive := filepath.Join(archiveDir, "vm1.tar")
	require.NoError(t, os.WriteFile(archive, []byte("image archive"), 0o600))

	// Loading the archive makes the committed image visible under the
	// instance name.
	engine.images["vm1"] = image.InspectResponse{}

	err := d.FinishMigration(context.Background(), migratingInstance(), dockerImageMeta("vm1"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"load " + archive, "create vm1", "start vm1-id"}, engine.calls)
	assert.NoFileExists(t, archive, "migration archive must be removed after a successful finish")
}

func TestConfirmMigrationRemovesSourceState(t *testing.T) {
	t.Parallel()
	engine := newFakeEngine()
	engine.containers["vm1"] = &fakeContainer{id: "vm1-id", running: true, pid: 42}
	d, cfg := migrationDriver(t, engine, nil)
	d.cfg.DeleteMigrationSource = true

	srcDir := filepath.Join(cfg.SnapshotsDir, "migrate_src")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	archive := filepath.Join(srcDir, "vm1.tar")
	require.NoError(t, os.WriteFile(archive, []byte("image archive"), 0o600))

	require.NoError(t, d.ConfirmMigration(context.Background(), migratingInstance(), nil))
	assert.NotContains(t, engine.containers, "vm1")
	assert.NoFileExists(t, archive)
}

package pagebackup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wal-g/pgpagebackup/internal/streamcodec"

	_ "github.com/wal-g/pgpagebackup/internal/streamcodec/none"
)

func driverConfig(t *testing.T) (Config, *Driver) {
	cfg, tr := baseConfig(t)
	cfg.Codec = streamcodec.Spec{Name: streamcodec.None}
	driver, err := NewDriver(cfg, tr, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	return cfg, driver
}

func TestBackupTreeWalksFilesAndDirectories(t *testing.T) {
	cfg, driver := driverConfig(t)
	require.NoError(t, os.Mkdir(filepath.Join(cfg.PgData, "base"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "base", "1"), pageBytes(0x1000, cfg.BlockSize), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "postgresql.conf"), []byte("port=5432\n"), 0644))

	outcome, err := driver.BackupTree(context.Background(), cfg.PgData, "")
	require.NoError(t, err)
	assert.False(t, outcome.Fatal)

	paths := map[string]int64{}
	for _, e := range outcome.Entries {
		paths[e.Path] = e.Size
	}
	assert.Contains(t, paths, "base/")
	assert.Contains(t, paths, "base/1")
	assert.Contains(t, paths, "postgresql.conf")

	_, err = os.Stat(filepath.Join(cfg.BackupPath, "base", "1"))
	assert.NoError(t, err)
}

func TestBackupTreeSkipsExcludedGlobs(t *testing.T) {
	cfg, tr := baseConfig(t)
	cfg.ExcludeGlobs = []string{"pg_xlog/*"}
	require.NoError(t, os.Mkdir(filepath.Join(cfg.PgData, "pg_xlog"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "pg_xlog", "000001"), []byte("wal"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "keep"), []byte("keep"), 0644))

	driver, err := NewDriver(cfg, tr, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	outcome, err := driver.BackupTree(context.Background(), cfg.PgData, "")
	require.NoError(t, err)

	var sawWal bool
	for _, e := range outcome.Entries {
		if e.Path == "pg_xlog/000001" {
			sawWal = true
		}
	}
	assert.False(t, sawWal)

	_, statErr := os.Stat(filepath.Join(cfg.BackupPath, "pg_xlog", "000001"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestShouldSkipHonorsProcessedPaths(t *testing.T) {
	_, driver := driverConfig(t)
	driver.ProcessedPaths["pg_tblspc/ts1/"] = struct{}{}
	assert.True(t, driver.shouldSkip("pg_tblspc/ts1", true, nil))
	assert.False(t, driver.shouldSkip("pg_tblspc/ts2", true, nil))
}

func TestResolveRestoreCfgRoutesTablespaceEntries(t *testing.T) {
	cfg, driver := driverConfig(t)
	tsTarget := t.TempDir()
	driver.TablespaceTargets = map[string]string{"ts1": tsTarget}

	resolved, relPath := driver.resolveRestoreCfg("pg_tblspc/ts1/16384/1")
	assert.Equal(t, "16384/1", relPath)
	assert.Equal(t, tsTarget, resolved.PgData)
	assert.Equal(t, filepath.Join(cfg.BackupPath, "pg_tblspc", "ts1"), resolved.BackupPath)

	resolved, relPath = driver.resolveRestoreCfg("base/1/1")
	assert.Equal(t, "base/1/1", relPath)
	assert.Equal(t, cfg.PgData, resolved.PgData)
}

func TestRestoreTreeCreatesDirectoriesAndFiles(t *testing.T) {
	cfg, driver := driverConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BackupPath, "base1"), pageBytes(0x1000, cfg.BlockSize), 0644))

	manifest := NewManifest()
	manifest.Set("base/", 0)
	manifest.Set("base1", int64(cfg.BlockSize))

	results, err := driver.RestoreTree(context.Background(), manifest)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	info, err := os.Stat(filepath.Join(cfg.PgData, "base"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(cfg.PgData, "base1"))
	assert.NoError(t, err)
}

func TestPruneTreeRemovesUnknownPaths(t *testing.T) {
	cfg, driver := driverConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "keep"), []byte("k"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "stale"), []byte("s"), 0644))

	manifest := NewManifest()
	manifest.Set("keep", 1)

	require.NoError(t, driver.PruneTree(manifest))

	_, err := os.Stat(filepath.Join(cfg.PgData, "keep"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.PgData, "stale"))
	assert.True(t, os.IsNotExist(err))
}

func TestPruneTreeSkipsProcessedPaths(t *testing.T) {
	cfg, driver := driverConfig(t)
	require.NoError(t, os.Mkdir(filepath.Join(cfg.PgData, "pg_tblspc"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "pg_tblspc", "ts1"), []byte("link"), 0644))
	driver.ProcessedPaths["pg_tblspc/"] = struct{}{}

	manifest := NewManifest()

	require.NoError(t, driver.PruneTree(manifest))

	_, err := os.Stat(filepath.Join(cfg.PgData, "pg_tblspc"))
	assert.NoError(t, err)
}

package pagebackup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/wal-g/pgpagebackup/internal/streamcodec/none"
)

func TestRestoreFileFullArtifact(t *testing.T) {
	cfg, tr := baseConfig(t)
	data := append(pageBytes(0x1000, cfg.BlockSize), pageBytes(0x2000, cfg.BlockSize)...)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BackupPath, "base1"), data, 0644))

	result := RestoreFile(context.Background(), cfg, tr, "base1")
	assert.True(t, result.Success)

	got, err := os.ReadFile(filepath.Join(cfg.PgData, "base1"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRestoreFilePatchesOnlyListedPages(t *testing.T) {
	cfg, tr := baseConfig(t)

	original := append(pageBytes(0x1000, cfg.BlockSize), pageBytes(0x1000, cfg.BlockSize)...)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "base1"), original, 0644))

	newPage := pageBytes(0x3000, cfg.BlockSize)
	artifact := &bytes.Buffer{}
	require.NoError(t, WritePrefix(artifact, cfg.Magic, []uint32{1}))
	artifact.Write(newPage)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BackupPath, "base1"), artifact.Bytes(), 0644))

	cfg.InputFileList = map[string]int64{"base1": int64(len(original))}
	result := RestoreFile(context.Background(), cfg, tr, "base1")
	assert.True(t, result.Success)

	got, err := os.ReadFile(filepath.Join(cfg.PgData, "base1"))
	require.NoError(t, err)
	assert.Equal(t, original[:cfg.BlockSize], got[:cfg.BlockSize])
	assert.Equal(t, newPage, got[cfg.BlockSize:])
}

func TestRestoreFileTinyFullArtifact(t *testing.T) {
	cfg, tr := baseConfig(t)
	data := []byte("a=1\n")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BackupPath, "postgresql.conf"), data, 0644))

	result := RestoreFile(context.Background(), cfg, tr, "postgresql.conf")
	assert.True(t, result.Success)

	got, err := os.ReadFile(filepath.Join(cfg.PgData, "postgresql.conf"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRestoreFileTruncatesToKnownSize(t *testing.T) {
	cfg, tr := baseConfig(t)

	original := append(pageBytes(0x1000, cfg.BlockSize), pageBytes(0x1000, cfg.BlockSize)...)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "base1"), original, 0644))

	artifact := &bytes.Buffer{}
	require.NoError(t, WritePrefix(artifact, cfg.Magic, nil))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BackupPath, "base1"), artifact.Bytes(), 0644))

	cfg.InputFileList = map[string]int64{"base1": int64(cfg.BlockSize)}
	result := RestoreFile(context.Background(), cfg, tr, "base1")
	assert.True(t, result.Success)

	info, err := os.Stat(filepath.Join(cfg.PgData, "base1"))
	require.NoError(t, err)
	assert.Equal(t, int64(cfg.BlockSize), info.Size())
}

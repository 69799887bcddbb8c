package pagebackup

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wal-g/pgpagebackup/internal/streamcodec"
	"github.com/wal-g/pgpagebackup/internal/transport"

	_ "github.com/wal-g/pgpagebackup/internal/streamcodec/none"
)

func pageBytes(lsn uint64, blockSize uint16) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint32(lsn>>32))
	binary.Write(buf, binary.LittleEndian, uint32(lsn))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(PageHeaderSize))
	binary.Write(buf, binary.LittleEndian, blockSize)
	binary.Write(buf, binary.LittleEndian, blockSize)
	binary.Write(buf, binary.LittleEndian, blockSize+layoutVersion)
	binary.Write(buf, binary.LittleEndian, uint32(0))
	page := buf.Bytes()
	page = append(page, make([]byte, int(blockSize)-len(page))...)
	return page
}

func baseConfig(t *testing.T) (Config, *transport.Transport) {
	pgData := t.TempDir()
	backupPath := t.TempDir()
	return Config{
		PgData:     pgData,
		BackupPath: backupPath,
		TmpDir:     t.TempDir(),
		Codec:      streamcodec.Spec{Name: streamcodec.None},
		Retries:    1,
		BlockSize:  8192,
		Magic:      2359285,
	}, transport.New()
}

func TestBackupFileFullMode(t *testing.T) {
	cfg, tr := baseConfig(t)
	var data []byte
	data = append(data, pageBytes(0x1000, cfg.BlockSize)...)
	data = append(data, pageBytes(0x2000, cfg.BlockSize)...)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "base1"), data, 0644))

	result := BackupFile(context.Background(), cfg, tr, "base1")
	assert.True(t, result.Success)

	got, err := os.ReadFile(filepath.Join(cfg.BackupPath, "base1"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestBackupFileIncrementalOnlyChangedPages(t *testing.T) {
	cfg, tr := baseConfig(t)
	var data []byte
	data = append(data, pageBytes(0x1000, cfg.BlockSize)...)
	data = append(data, pageBytes(0x3000, cfg.BlockSize)...)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "base1"), data, 0644))

	cfg.Watermark = Watermark(0x2000)
	result := BackupFile(context.Background(), cfg, tr, "base1")
	assert.True(t, result.Success)

	artifact, err := os.ReadFile(filepath.Join(cfg.BackupPath, "base1"))
	require.NoError(t, err)

	reader, ok, err := ReadPrefix(bytes.NewReader(artifact), cfg.Magic)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []uint32{1}, reader)
}

func TestBackupFileUnchangedShortcut(t *testing.T) {
	cfg, tr := baseConfig(t)
	data := pageBytes(0x1000, cfg.BlockSize)
	path := filepath.Join(cfg.PgData, "base1")
	require.NoError(t, os.WriteFile(path, data, 0644))

	info, err := os.Stat(path)
	require.NoError(t, err)

	cfg.Watermark = Watermark(0x2000)
	cfg.AfterUnix = info.ModTime().Unix() + 60
	cfg.InputFileList = map[string]int64{"base1": int64(len(data))}

	result := BackupFile(context.Background(), cfg, tr, "base1")
	assert.True(t, result.Success)

	artifact, err := os.ReadFile(filepath.Join(cfg.BackupPath, "base1"))
	require.NoError(t, err)
	pages, ok, err := ReadPrefix(bytes.NewReader(artifact), cfg.Magic)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, pages)
}

func TestBackupFileFallsBackToFullOnInvalidPage(t *testing.T) {
	cfg, tr := baseConfig(t)
	garbage := make([]byte, cfg.BlockSize)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PgData, "base1"), garbage, 0644))

	cfg.Watermark = Watermark(0x1000)
	result := BackupFile(context.Background(), cfg, tr, "base1")
	assert.True(t, result.Success)

	artifact, err := os.ReadFile(filepath.Join(cfg.BackupPath, "base1"))
	require.NoError(t, err)
	assert.Equal(t, garbage, artifact)
}

func TestBackupFileMissingSourceFails(t *testing.T) {
	cfg, tr := baseConfig(t)
	result := BackupFile(context.Background(), cfg, tr, "does-not-exist")
	assert.False(t, result.Success)
}

package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyLocalFile(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	src := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	dst := filepath.Join(dstDir, "sub", "a.txt")
	tr := New()
	err := tr.Copy(context.Background(), src, dst, Options{Retries: 1})
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestCopyLocalDirectory(t *testing.T) {
	srcDir := t.TempDir()
	dstRoot := t.TempDir()

	sub := filepath.Join(srcDir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))

	dst := filepath.Join(dstRoot, "sub")
	tr := New()
	err := tr.Copy(context.Background(), sub, dst, Options{Retries: 1, Relative: RelativeDir})
	require.NoError(t, err)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCopyMissingSourceExhaustsRetries(t *testing.T) {
	dstDir := t.TempDir()
	tr := New()
	err := tr.Copy(context.Background(), filepath.Join(dstDir, "does-not-exist"), filepath.Join(dstDir, "out"), Options{Retries: 2, PauseS: 0})
	require.Error(t, err)

	var exhausted *ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Retries)
}

func TestIsLocalPath(t *testing.T) {
	assert.True(t, isLocalPath("/var/lib/pgsql/data"))
	assert.True(t, isLocalPath("./relative/path"))
	assert.True(t, isLocalPath(""))
	assert.False(t, isLocalPath("user@host:/var/backups"))
	assert.False(t, isLocalPath("host:/var/backups"))
}

package pagebackup

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMagic = 2359285

func TestWriteReadPrefixRoundtrip(t *testing.T) {
	pages := []uint32{0, 3, 7, 99}
	buf := &bytes.Buffer{}
	require.NoError(t, WritePrefix(buf, testMagic, pages))

	got, ok, err := ReadPrefix(buf, testMagic)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pages, got)
}

func TestWriteFullPrefixRoundtrip(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteFullPrefix(buf, testMagic))

	got, ok, err := ReadPrefix(buf, testMagic)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestReadPrefixWrongMagicIsNotOk(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WritePrefix(buf, testMagic, []uint32{1, 2}))

	_, ok, err := ReadPrefix(buf, testMagic+1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadPrefixTooShortIsNotOk(t *testing.T) {
	buf := bytes.NewReader([]byte{1, 2})
	_, ok, err := ReadPrefix(buf, testMagic)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadPrefixEmptyIsNotOk(t *testing.T) {
	_, ok, err := ReadPrefix(bytes.NewReader(nil), testMagic)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadPrefixShortFirstElementIsNotOk(t *testing.T) {
	// A tiny full-copy artifact (e.g. a 4-7 byte .conf file) looks like
	// an arrayLen with no room left for the first element.
	buf := bytes.NewReader([]byte{4, 0, 0, 0, 'a', '='})
	pages, ok, err := ReadPrefix(buf, testMagic)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, pages)
}

func TestReadPrefixShortPageIndexIsNotOk(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WritePrefix(buf, testMagic, []uint32{1, 2}))
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])

	pages, ok, err := ReadPrefix(truncated, testMagic)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, pages)
}

func TestPrefixLen(t *testing.T) {
	assert.Equal(t, int64(8), PrefixLen(nil))
	assert.Equal(t, int64(16), PrefixLen([]uint32{1, 2}))
}

package bzip2

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBzip2Roundtrip(t *testing.T) {
	data := make([]byte, 64<<10)
	rand.New(rand.NewSource(2)).Read(data)

	var compressed bytes.Buffer
	writer, err := Compressor{}.NewWriter(&compressed, 6)
	require.NoError(t, err)
	_, err = writer.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader, err := Decompressor{}.NewReader(&compressed)
	require.NoError(t, err)
	defer reader.Close()

	var decompressed bytes.Buffer
	_, err = decompressed.ReadFrom(reader)
	require.NoError(t, err)
	assert.Equal(t, data, decompressed.Bytes())
}

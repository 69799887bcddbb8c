package none

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneRoundtrip(t *testing.T) {
	data := []byte("unchanged, byte for byte")

	var out bytes.Buffer
	writer, err := Compressor{}.NewWriter(&out, 0)
	require.NoError(t, err)
	_, err = writer.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	assert.Equal(t, data, out.Bytes())

	reader, err := Decompressor{}.NewReader(&out)
	require.NoError(t, err)
	defer reader.Close()

	var decompressed bytes.Buffer
	_, err = decompressed.ReadFrom(reader)
	require.NoError(t, err)
	assert.Equal(t, data, decompressed.Bytes())
}

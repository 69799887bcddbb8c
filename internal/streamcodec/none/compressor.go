// Package none is the identity StreamCodec, mirroring the shape of
// wal-g's internal/compression/none package.
package none

import (
	"io"

	"github.com/wal-g/pgpagebackup/internal/streamcodec"
)

const AlgorithmName = "none"

type Compressor struct{}

func (Compressor) Name() string { return AlgorithmName }

func (Compressor) NewWriter(w io.Writer, _ int) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type Decompressor struct{}

func (Decompressor) Name() string { return AlgorithmName }

func (Decompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func init() {
	streamcodec.Register(Compressor{}, Decompressor{})
}

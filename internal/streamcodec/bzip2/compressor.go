// Package bzip2 wraps github.com/dsnet/compress/bzip2, which provides a
// real Writer in addition to stdlib compress/bzip2's read-only Reader,
// for the "bzip2[-level]" StreamCodec.
package bzip2

import (
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/pkg/errors"
	"github.com/wal-g/pgpagebackup/internal/streamcodec"
)

const AlgorithmName = "bzip2"

type Compressor struct{}

func (Compressor) Name() string { return AlgorithmName }

func (Compressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: level})
	if err != nil {
		return nil, errors.Wrap(err, "bzip2: failed to open writer")
	}
	return bw, nil
}

type Decompressor struct{}

func (Decompressor) Name() string { return AlgorithmName }

func (Decompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	br, err := bzip2.NewReader(r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "bzip2: failed to open reader")
	}
	return br, nil
}

func init() {
	streamcodec.Register(Compressor{}, Decompressor{})
}

// Package gzip wraps klauspost/compress/gzip, the drop-in faster gzip
// already pulled in by the teacher's go.mod, for the "gzip[-level]"
// StreamCodec.
package gzip

import (
	"io"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/wal-g/pgpagebackup/internal/streamcodec"
)

const AlgorithmName = "gzip"

type Compressor struct{}

func (Compressor) Name() string { return AlgorithmName }

func (Compressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	gw, err := kgzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, errors.Wrap(err, "gzip: failed to open writer")
	}
	return gw, nil
}

type Decompressor struct{}

func (Decompressor) Name() string { return AlgorithmName }

func (Decompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	gr, err := kgzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "gzip: failed to open reader")
	}
	return gr, nil
}

func init() {
	streamcodec.Register(Compressor{}, Decompressor{})
}

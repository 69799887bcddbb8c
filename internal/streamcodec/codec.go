// Package streamcodec implements the pluggable compression wrapper
// (StreamCodec, component C3) described in spec.md §4.3: a byte sink or
// source wrapped by one of {none, gzip, bzip2, lzma} at a configurable
// level, following the per-algorithm package + registry shape of
// wal-g's internal/compression package.
package streamcodec

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultLevel is used when a "name-level" spec omits the level.
const DefaultLevel = 6

// Compressor wraps a byte sink with compression.
type Compressor interface {
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
	Name() string
}

// Decompressor wraps a byte source with decompression.
type Decompressor interface {
	NewReader(r io.Reader) (io.ReadCloser, error)
	Name() string
}

var compressors = map[string]Compressor{}
var decompressors = map[string]Decompressor{}

// Register adds a named codec to the registry. Called from each
// sub-package's init().
func Register(c Compressor, d Decompressor) {
	compressors[c.Name()] = c
	decompressors[d.Name()] = d
}

// Spec is a parsed "-c" flag value: a codec name plus optional level,
// e.g. "gzip-9" -> {Name: "gzip", Level: 9}.
type Spec struct {
	Name  string
	Level int
}

// ParseSpec accepts either "name" or "name-level" (spec.md §4.3/§9).
func ParseSpec(raw string) (Spec, error) {
	if raw == "" {
		raw = "none"
	}
	parts := strings.SplitN(raw, "-", 2)
	spec := Spec{Name: parts[0], Level: DefaultLevel}
	if len(parts) == 2 {
		level, err := strconv.Atoi(parts[1])
		if err != nil {
			return Spec{}, errors.Wrapf(err, "ParseSpec: invalid compression level in %q", raw)
		}
		spec.Level = level
	}
	if _, ok := compressors[spec.Name]; !ok {
		return Spec{}, errors.Errorf("ParseSpec: unknown codec %q", spec.Name)
	}
	return spec, nil
}

// NewWriter opens a compressing writer for the given spec.
func NewWriter(w io.Writer, spec Spec) (io.WriteCloser, error) {
	c, ok := compressors[spec.Name]
	if !ok {
		return nil, errors.Errorf("NewWriter: unknown codec %q", spec.Name)
	}
	return c.NewWriter(w, spec.Level)
}

// NewReader opens a decompressing reader for the named codec.
func NewReader(r io.Reader, name string) (io.ReadCloser, error) {
	d, ok := decompressors[name]
	if !ok {
		return nil, errors.Errorf("NewReader: unknown codec %q", name)
	}
	return d.NewReader(r)
}

// None is the always-available identity codec name (spec.md §4.3: ".conf"
// files and pg_control MUST use it).
const None = "none"

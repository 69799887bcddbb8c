package pagebackup

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/wal-g/pgpagebackup/internal/limited"
	"github.com/wal-g/pgpagebackup/internal/streamcodec"
)

// HasWatermark is an explicit optional LSN, distinguishing "no watermark
// configured" (full backup) from a watermark of zero.
type HasWatermark struct {
	LSN   uint64
	IsSet bool
}

// Watermark builds a set watermark.
func Watermark(lsn uint64) HasWatermark { return HasWatermark{LSN: lsn, IsSet: true} }

// Config is the immutable run configuration threaded through TreeDriver,
// FileBackup and FileRestore. Workers never mutate it; a derived value
// is produced with With, mirroring the source's copy-with-field-override
// dispatch contract (spec.md §9 design note).
type Config struct {
	PgData        string
	BackupPath    string
	TmpDir        string
	Watermark     HasWatermark
	AfterUnix     int64 // -a: mtime cutoff for the unchanged shortcut, 0 = unset
	Codec         streamcodec.Spec
	ExcludeGlobs  []string
	Retries       int
	PauseS        int
	InputFileList map[string]int64 // prior manifest, nil when doing a full backup
	Parallel      int
	BlockSize     uint16
	Magic         uint32
	BandwidthKBps int // -w: global cap, 0 = unlimited
	TablespaceBW  map[string]int
	IncludeFiles  []string
	RsyncArgs     []string
	Verbosity     int
}

// With returns a shallow copy of c with fn applied, leaving c untouched.
func (c Config) With(fn func(*Config)) Config {
	derived := c
	fn(&derived)
	return derived
}

// WithoutWatermark returns a derived Config with the watermark cleared,
// forcing full-mode backup — used by FileBackup's fall-back path
// (spec.md §9: "equivalent language-neutral design ... re-run in full
// mode").
func (c Config) WithoutWatermark() Config {
	return c.With(func(derived *Config) {
		derived.Watermark = HasWatermark{}
	})
}

// CodecFor returns the StreamCodec spec to use for relPath, forcing
// "none" for .conf files and pg_control regardless of the configured
// codec (spec.md §4.3, §4.7): TreeDriver, the include-files pass, and
// the final pg_control backup all share this one decision point.
func (c Config) CodecFor(relPath string) streamcodec.Spec {
	if strings.HasSuffix(relPath, ".conf") || path.Base(relPath) == "pg_control" {
		return streamcodec.Spec{Name: streamcodec.None}
	}
	return c.Codec
}

// BandwidthFor returns the configured KB/s cap for a path under
// tablespace tsName ("" for the main pgdata walk), falling back to the
// global cap when no per-tablespace override exists.
func (c Config) BandwidthFor(tsName string) int {
	if tsName != "" {
		if kbps, ok := c.TablespaceBW[tsName]; ok {
			return kbps
		}
	}
	return c.BandwidthKBps
}

// WrapReader returns a Transport WrapReader closure enforcing c's
// bandwidth cap (spec.md §5), or nil when BandwidthKBps is unset. The
// cap is split across c.Parallel concurrent workers.
func (c Config) WrapReader(ctx context.Context) func(io.Reader) io.Reader {
	if c.BandwidthKBps <= 0 {
		return nil
	}
	limiter := limited.NewLimiter(limited.PerWorker(c.BandwidthKBps, c.Parallel))
	return func(r io.Reader) io.Reader {
		return limited.NewReader(ctx, r, limiter)
	}
}

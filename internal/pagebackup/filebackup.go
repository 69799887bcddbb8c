package pagebackup

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/wal-g/tracelog"

	"github.com/wal-g/pgpagebackup/internal/streamcodec"
	"github.com/wal-g/pgpagebackup/internal/transport"
)

// FileResult is the (path, success) pair TreeDriver harvests per
// dispatched backup task (spec.md §4.5).
type FileResult struct {
	Path    string
	Success bool
}

// BackupFile implements FileBackup (component C5): it reads
// pgdata/relPath, decides unchanged/full/incremental mode, writes the
// artifact under tmpdir/relPath, and transports it to backup_path/relPath
// with relative-path preservation. Any error is logged and reported as
// a failed FileResult rather than returned, matching spec.md §4.5's
// failure contract ("any exception ... returns (path, false)").
func BackupFile(ctx context.Context, cfg Config, t *transport.Transport, relPath string) FileResult {
	ok, err := backupFile(ctx, cfg, t, relPath)
	if err != nil {
		tracelog.ErrorLogger.Printf("backup %s: %+v", relPath, err)
	}
	return FileResult{Path: relPath, Success: ok}
}

func backupFile(ctx context.Context, cfg Config, t *transport.Transport, relPath string) (bool, error) {
	srcPath := filepath.Join(cfg.PgData, relPath)
	info, err := os.Stat(srcPath)
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", srcPath)
	}

	origSize, hadPrior := int64(0), false
	if cfg.InputFileList != nil {
		origSize, hadPrior = cfg.InputFileList[relPath]
	}

	tmpPath := filepath.Join(cfg.TmpDir, relPath)
	if err := os.MkdirAll(filepath.Dir(tmpPath), 0755); err != nil {
		return false, errors.Wrapf(err, "mkdir for %s", tmpPath)
	}

	codecSpec := cfg.CodecFor(relPath)

	// Unchanged shortcut (spec.md §4.5 step 2).
	if cfg.Watermark.IsSet && hadPrior && info.Size() == origSize && cfg.AfterUnix != 0 &&
		info.ModTime().Unix() < cfg.AfterUnix {
		if err := writeArtifact(tmpPath, codecSpec, func(w io.Writer) error {
			return WriteFullPrefix(w, cfg.Magic)
		}); err != nil {
			return false, err
		}
		return finishBackup(ctx, t, cfg, relPath, tmpPath)
	}

	if !cfg.Watermark.IsSet {
		return backupFull(ctx, cfg, t, relPath, srcPath, tmpPath, codecSpec)
	}
	return backupIncremental(ctx, cfg, t, relPath, srcPath, tmpPath, codecSpec)
}

// backupFull streams the whole file through the codec with no prefix
// (spec.md §4.5 step 3).
func backupFull(ctx context.Context, cfg Config, t *transport.Transport, relPath, srcPath, tmpPath string, codecSpec streamcodec.Spec) (bool, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return false, errors.Wrapf(err, "open %s", srcPath)
	}
	defer src.Close()

	if err := writeArtifact(tmpPath, codecSpec, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	}); err != nil {
		return false, err
	}
	return finishBackup(ctx, t, cfg, relPath, tmpPath)
}

// backupIncremental implements spec.md §4.5 step 4: scan blocks for
// changed pages, falling back to full mode on a short read or an
// invalid page header (the self-recursive escalation from spec.md §9).
func backupIncremental(ctx context.Context, cfg Config, t *transport.Transport, relPath, srcPath, tmpPath string, codecSpec streamcodec.Spec) (bool, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return false, errors.Wrapf(err, "open %s", srcPath)
	}
	defer src.Close()

	blockSize := int64(cfg.BlockSize)
	buf := make([]byte, blockSize)
	var changedPages []uint32

	for block := uint32(0); ; block++ {
		n, readErr := io.ReadFull(src, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return false, errors.Wrapf(readErr, "read block %d of %s", block, relPath)
		}
		if readErr == io.ErrUnexpectedEOF && n > 0 {
			tracelog.WarningLogger.Printf("short read at block %d of %s (%d bytes), falling back to full backup", block, relPath, n)
			fallback := cfg.WithoutWatermark()
			return backupFull(ctx, fallback, t, relPath, srcPath, tmpPath, codecSpec)
		}
		if n == 0 {
			break
		}

		valid, lsn, err := ParsePageHeader(newSliceReader(buf), cfg.BlockSize)
		if err != nil {
			return false, errors.Wrapf(err, "parse header at block %d of %s", block, relPath)
		}
		if !valid {
			tracelog.WarningLogger.Printf("invalid page at block %d of %s, falling back to full backup", block, relPath)
			fallback := cfg.WithoutWatermark()
			return backupFull(ctx, fallback, t, relPath, srcPath, tmpPath, codecSpec)
		}
		if lsn >= cfg.Watermark.LSN {
			changedPages = append(changedPages, block)
		}
	}

	if err := writeArtifact(tmpPath, codecSpec, func(w io.Writer) error {
		if err := WritePrefix(w, cfg.Magic, changedPages); err != nil {
			return err
		}
		for _, block := range changedPages {
			if err := copyBlock(w, src, int64(block)*blockSize, buf); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return false, err
	}
	return finishBackup(ctx, t, cfg, relPath, tmpPath)
}

func copyBlock(w io.Writer, src *os.File, offset int64, buf []byte) error {
	n, err := src.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "re-read block at offset %d", offset)
	}
	if _, err := w.Write(buf[:n]); err != nil {
		return errors.Wrap(err, "write page payload")
	}
	return nil
}

func writeArtifact(tmpPath string, codecSpec streamcodec.Spec, fn func(w io.Writer) error) error {
	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "create temp artifact %s", tmpPath)
	}

	writer, err := streamcodec.NewWriter(out, codecSpec)
	if err != nil {
		out.Close()
		return err
	}
	if err := fn(writer); err != nil {
		writer.Close()
		out.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		out.Close()
		return errors.Wrap(err, "close codec writer")
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return errors.Wrapf(err, "fsync %s", tmpPath)
	}
	return out.Close()
}

// finishBackup transports the temp artifact and unlinks it (spec.md
// §4.5 step 5).
func finishBackup(ctx context.Context, t *transport.Transport, cfg Config, relPath, tmpPath string) (bool, error) {
	defer os.Remove(tmpPath)

	dst := filepath.Join(cfg.BackupPath, relPath)
	err := t.Copy(ctx, tmpPath, dst, transport.Options{
		Retries:    cfg.Retries,
		PauseS:     cfg.PauseS,
		Relative:   transport.RelativeFile,
		ExtraArgs:  cfg.RsyncArgs,
		WrapReader: cfg.WrapReader(ctx),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// sliceReader adapts a []byte to io.Reader without allocating a new
// backing array, for header parsing off an already-read block buffer.
type sliceReader struct {
	b []byte
	i int
}

func newSliceReader(b []byte) *sliceReader { return &sliceReader{b: b} }

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

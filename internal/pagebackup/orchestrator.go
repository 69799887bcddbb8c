package pagebackup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/wal-g/tracelog"

	"github.com/wal-g/pgpagebackup/internal/transport"
)

// BackupLabelName is the file that marks a data directory as restored
// from a consistent backup.
const BackupLabelName = "backup_label"

// Orchestrator runs the top-level backup/restore modes (component C8),
// owning manifest I/O and pg_control/backup_label finalization.
type Orchestrator struct {
	Cfg         Config
	Transport   *transport.Transport
	Tablespaces []Tablespace
}

// NewOrchestrator builds an Orchestrator from a run Config.
func NewOrchestrator(cfg Config, tablespaces []Tablespace) *Orchestrator {
	return &Orchestrator{Cfg: cfg, Transport: transport.New(), Tablespaces: tablespaces}
}

// Backup runs spec.md §4.8's backup mode steps 1-7. It returns a
// FatalError for any fatal condition; the CLI layer maps that to exit
// code 1.
func (o *Orchestrator) Backup(ctx context.Context) error {
	startTime := time.Now()

	if err := os.MkdirAll(o.Cfg.TmpDir, 0755); err != nil {
		return errors.Wrapf(err, "create tmpdir %s", o.Cfg.TmpDir)
	}
	defer os.RemoveAll(o.Cfg.TmpDir)

	cfg := o.Cfg
	if cfg.Watermark.IsSet {
		inputList, err := o.fetchPriorManifest(ctx)
		if err != nil {
			return NewFatalError("fetch prior manifest: %v", err)
		}
		cfg.InputFileList = inputList
	}

	driver, err := NewDriver(cfg, o.Transport, startTime)
	if err != nil {
		return err
	}

	manifest := NewManifest()
	fatal := false

	for _, ts := range o.Tablespaces {
		target, readErr := os.Readlink(symlinkPath(cfg.PgData, ts.Name))
		if readErr != nil {
			tracelog.WarningLogger.Printf("tablespace %s: cannot read symlink: %v", ts.Name, readErr)
			continue
		}
		if target != ts.Path {
			tracelog.WarningLogger.Printf("tablespace %s: symlink target %s does not match configured %s", ts.Name, target, ts.Path)
		}

		tsCfg := cfg
		if bw := cfg.BandwidthFor(ts.Name); bw > 0 {
			tsCfg.BandwidthKBps = bw
		}

		var manifestPrefix string
		insidePgData := IsInsidePgData(cfg.PgData, target)
		if insidePgData {
			// The tablespace's own files already have a natural
			// pgdata-relative path; use it as the manifest prefix so
			// ProcessedPaths entries match what the plain pgdata walk
			// below would otherwise compute for the same files
			// (spec.md §9: avoid double-processing).
			rel, relErr := filepath.Rel(cfg.PgData, target)
			if relErr != nil {
				return errors.Wrapf(relErr, "tablespace %s target not under pgdata", ts.Name)
			}
			manifestPrefix = filepath.ToSlash(rel) + "/"
			tsCfg.PgData = target
			tsCfg.BackupPath = filepath.Join(cfg.BackupPath, rel)
		} else {
			tsCfg.PgData = target
			tsCfg.BackupPath = filepath.Join(cfg.BackupPath, "pg_tblspc", ts.Name)
			manifestPrefix = "pg_tblspc/" + ts.Name + "/"
		}

		tsDriver := *driver
		tsDriver.Cfg = tsCfg
		outcome, walkErr := tsDriver.BackupTree(ctx, target, manifestPrefix)
		if walkErr != nil {
			return errors.Wrapf(walkErr, "backup tablespace %s", ts.Name)
		}
		for _, entry := range outcome.Entries {
			manifest.Set(entry.Path, entry.Size)
			driver.ProcessedPaths[entry.Path] = struct{}{}
		}
		fatal = fatal || outcome.Fatal
	}

	outcome, err := driver.BackupTree(ctx, cfg.PgData, "")
	if err != nil {
		return errors.Wrap(err, "backup pgdata")
	}
	for _, entry := range outcome.Entries {
		manifest.Set(entry.Path, entry.Size)
	}
	fatal = fatal || outcome.Fatal

	for _, includePath := range cfg.IncludeFiles {
		relPath, relErr := filepath.Rel(cfg.PgData, includePath)
		if relErr != nil {
			tracelog.ErrorLogger.Printf("include_files: %s is not under pgdata: %v", includePath, relErr)
			fatal = true
			continue
		}
		result := BackupFile(ctx, cfg.WithoutWatermark(), o.Transport, relPath)
		if !result.Success {
			tracelog.ErrorLogger.Printf("include_files: failed to back up %s", relPath)
			fatal = true
			continue
		}
		if info, statErr := os.Stat(includePath); statErr == nil {
			manifest.Set(relPath, info.Size())
		}
	}

	if fatal {
		return NewFatalError("one or more pre-existing files failed to back up")
	}

	// pg_control is always last (spec.md §3 invariant, §5 fencepost).
	pgControlRel := filepath.Join("global", "pg_control")
	result := BackupFile(ctx, cfg.WithoutWatermark(), o.Transport, pgControlRel)
	if !result.Success {
		return NewFatalError("failed to back up %s", pgControlRel)
	}
	if info, statErr := os.Stat(filepath.Join(cfg.PgData, pgControlRel)); statErr == nil {
		manifest.Set(pgControlRel, info.Size())
	}

	return o.uploadManifest(ctx, manifest)
}

func (o *Orchestrator) fetchPriorManifest(ctx context.Context) (map[string]int64, error) {
	localPath := filepath.Join(o.Cfg.TmpDir, ManifestName)
	src := filepath.Join(o.Cfg.BackupPath, ManifestName)
	if err := o.Transport.Copy(ctx, src, localPath, transport.Options{
		Retries: o.Cfg.Retries,
		PauseS:  o.Cfg.PauseS,
	}); err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", localPath)
	}
	defer f.Close()

	manifest, err := ReadManifest(f)
	if err != nil {
		return nil, err
	}
	sizes := make(map[string]int64, len(manifest.Entries()))
	for _, entry := range manifest.Entries() {
		sizes[entry.Path] = entry.Size
	}
	return sizes, nil
}

func (o *Orchestrator) uploadManifest(ctx context.Context, manifest *Manifest) error {
	localPath := filepath.Join(o.Cfg.TmpDir, ManifestName)
	f, err := os.Create(localPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", localPath)
	}
	if _, err := manifest.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", localPath)
	}

	dst := filepath.Join(o.Cfg.BackupPath, ManifestName)
	if err := o.Transport.Copy(ctx, localPath, dst, transport.Options{
		Retries: o.Cfg.Retries,
		PauseS:  o.Cfg.PauseS,
	}); err != nil {
		return NewFatalError("upload manifest: %v", err)
	}
	return nil
}

// Restore runs spec.md §4.8's restore mode steps 1-7.
func (o *Orchestrator) Restore(ctx context.Context) error {
	if err := os.MkdirAll(o.Cfg.TmpDir, 0755); err != nil {
		return errors.Wrapf(err, "create tmpdir %s", o.Cfg.TmpDir)
	}
	defer os.RemoveAll(o.Cfg.TmpDir)

	if err := EnsureTablespaceLinks(o.Cfg.PgData, o.Tablespaces); err != nil {
		return errors.Wrap(err, "materialize tablespace symlinks")
	}

	manifest, err := o.fetchManifest(ctx)
	if err != nil {
		return NewFatalError("fetch manifest: %v", err)
	}

	cfg := o.Cfg
	sizes := make(map[string]int64, len(manifest.Entries()))
	for _, entry := range manifest.Entries() {
		sizes[entry.Path] = entry.Size
	}
	cfg.InputFileList = sizes

	driver, err := NewDriver(cfg, o.Transport, time.Now())
	if err != nil {
		return err
	}
	driver.TablespaceTargets = make(map[string]string, len(o.Tablespaces))
	for _, ts := range o.Tablespaces {
		driver.TablespaceTargets[ts.Name] = ts.Path
	}

	results, err := driver.RestoreTree(ctx, manifest)
	if err != nil {
		return errors.Wrap(err, "restore tree")
	}
	for _, r := range results {
		if !r.Success {
			tracelog.ErrorLogger.Printf("failed to restore %s", r.Path)
		}
	}

	for _, ts := range o.Tablespaces {
		// The pg_tblspc/<name> symlink itself is never recorded in the
		// manifest; without this, PruneTree would remove the symlink
		// EnsureTablespaceLinks just (re)created.
		driver.ProcessedPaths[filepath.Join("pg_tblspc", ts.Name)] = struct{}{}
		if rel, relErr := filepath.Rel(cfg.PgData, ts.Path); relErr == nil && IsInsidePgData(cfg.PgData, ts.Path) {
			driver.ProcessedPaths[filepath.ToSlash(rel)+"/"] = struct{}{}
		}
	}
	if err := driver.PruneTree(manifest); err != nil {
		return errors.Wrap(err, "prune stale entries")
	}

	labelPath := filepath.Join(cfg.PgData, BackupLabelName)
	if _, statErr := os.Stat(labelPath); os.IsNotExist(statErr) {
		result := RestoreFile(ctx, cfg, o.Transport, BackupLabelName)
		if !result.Success {
			return NewFatalError("failed to fetch %s", BackupLabelName)
		}
	}

	return nil
}

func (o *Orchestrator) fetchManifest(ctx context.Context) (*Manifest, error) {
	localPath := filepath.Join(o.Cfg.TmpDir, ManifestName)
	src := filepath.Join(o.Cfg.BackupPath, ManifestName)
	if err := o.Transport.Copy(ctx, src, localPath, transport.Options{
		Retries: o.Cfg.Retries,
		PauseS:  o.Cfg.PauseS,
	}); err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", localPath)
	}
	defer f.Close()
	return ReadManifest(f)
}

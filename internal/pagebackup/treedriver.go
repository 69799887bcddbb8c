package pagebackup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/wal-g/tracelog"

	"github.com/wal-g/pgpagebackup/internal/parallel"
	"github.com/wal-g/pgpagebackup/internal/transport"
)

// WalkOutcome is what TreeDriver produces after a dispatched walk
// completes: the manifest entries to fold into the run's output
// manifest, and whether a fatal, run-aborting failure occurred
// (spec.md §4.7).
type WalkOutcome struct {
	Entries []ManifestEntry
	Fatal   bool
}

// Driver walks a data directory, dispatching per-file backup or restore
// work through a bounded pool and applying the skip/dispatch/failure
// rules of spec.md §4.7.
type Driver struct {
	Cfg       Config
	Transport *transport.Transport
	Pool      *parallel.Pool
	StartTime time.Time // ctime cutoff for the "pre-existing file" fatal rule

	// ProcessedPaths marks relative paths (directories with a trailing
	// slash) already handled by an earlier pass — e.g. a tablespace
	// that lives inside pgdata (spec.md §9) — so a later pgdata walk
	// skips them instead of double-processing.
	ProcessedPaths map[string]struct{}

	// TablespaceTargets maps a tablespace name to its physical target
	// directory, used on restore to route a "pg_tblspc/<name>/..."
	// manifest entry to the right backup_path subtree and on-disk
	// location instead of cfg.PgData/cfg.BackupPath.
	TablespaceTargets map[string]string
}

// NewDriver builds a Driver for cfg. BackupTree compiles cfg.ExcludeGlobs
// into matchers with fnmatch-style semantics ("*" crossing path
// separators), as spec.md §6 implies for entries like "*pg_xlog/*".
func NewDriver(cfg Config, t *transport.Transport, startTime time.Time) (*Driver, error) {
	return &Driver{
		Cfg:            cfg,
		Transport:      t,
		Pool:           parallel.New(cfg.Parallel),
		StartTime:      startTime,
		ProcessedPaths: make(map[string]struct{}),
	}, nil
}

// shouldSkip implements spec.md §4.7's two skip rules in order: already
// processed by an earlier pass (tablespace-inside-pgdata), or matched by
// an exclude glob.
func (d *Driver) shouldSkip(relPath string, isDir bool, excludes []glob.Glob) bool {
	lookupPath := relPath
	if isDir {
		lookupPath += "/"
	}
	if _, done := d.ProcessedPaths[lookupPath]; done {
		return true
	}
	for _, g := range excludes {
		if g.Match(relPath) {
			return true
		}
	}
	return false
}

func compileExcludes(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

// BackupTree walks dataDir (an absolute path, either pgdata itself or a
// tablespace target) and dispatches one FileBackup or directory job per
// entry, per the skip/dispatch rules of spec.md §4.7. Every path in the
// returned WalkOutcome is prefixed with manifestPrefix ("" for the
// pgdata walk itself, "pg_tblspc/<name>/" for a tablespace walk) so a
// tablespace's entries land at a distinguishable manifest location
// even though d.Cfg.PgData/BackupPath are rooted at the tablespace's
// own directory for this call.
func (d *Driver) BackupTree(ctx context.Context, dataDir, manifestPrefix string) (WalkOutcome, error) {
	excludes, err := compileExcludes(d.Cfg.ExcludeGlobs)
	if err != nil {
		return WalkOutcome{}, err
	}

	var relPaths []string
	var isDirs []bool
	err = filepath.Walk(dataDir, func(absPath string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if absPath == dataDir {
			return nil
		}
		relPath, relErr := filepath.Rel(dataDir, absPath)
		if relErr != nil {
			return relErr
		}
		relPath = filepath.ToSlash(relPath)
		if d.shouldSkip(manifestPrefix+relPath, info.IsDir(), excludes) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		relPaths = append(relPaths, relPath)
		isDirs = append(isDirs, info.IsDir())
		return nil
	})
	if err != nil {
		return WalkOutcome{}, err
	}

	tasks := make([]parallel.Task, len(relPaths))
	for i := range relPaths {
		relPath, isDir := relPaths[i], isDirs[i]
		tasks[i] = func(taskCtx context.Context) (interface{}, error) {
			if isDir {
				return d.backupDirectory(taskCtx, relPath), nil
			}
			return d.backupOneFile(taskCtx, relPath), nil
		}
	}

	results, runErr := d.Pool.Run(ctx, tasks)
	if runErr != nil {
		return WalkOutcome{}, runErr
	}
	return d.collectResults(results, manifestPrefix)
}

func (d *Driver) backupOneFile(ctx context.Context, relPath string) FileResult {
	cfg := d.Cfg
	switch {
	case strings.HasSuffix(relPath, ".conf"):
		cfg = cfg.WithoutWatermark()
	case d.Cfg.InputFileList != nil:
		if _, present := d.Cfg.InputFileList[relPath]; !present {
			cfg = cfg.WithoutWatermark()
		}
	default:
		cfg = cfg.WithoutWatermark()
	}
	return BackupFile(ctx, cfg, d.Transport, relPath)
}

// backupDirectory materializes an empty directory entry at backup_path
// so restore can recreate empty leaves (spec.md §4.7).
func (d *Driver) backupDirectory(ctx context.Context, relPath string) FileResult {
	dst := filepath.Join(d.Cfg.BackupPath, relPath)
	err := d.Transport.Copy(ctx, filepath.Join(d.Cfg.PgData, relPath), dst, transport.Options{
		Retries:  d.Cfg.Retries,
		PauseS:   d.Cfg.PauseS,
		Relative: transport.RelativeDir,
	})
	if err != nil {
		tracelog.ErrorLogger.Printf("backup directory %s: %+v", relPath, err)
		return FileResult{Path: relPath + "/", Success: false}
	}
	return FileResult{Path: relPath + "/", Success: true}
}

// collectResults implements spec.md §4.7's post-dispatch policy: record
// sizes for successes, drop vanished files with a log line, and treat a
// failure on a pre-existing file as fatal.
func (d *Driver) collectResults(results []interface{}, manifestPrefix string) (WalkOutcome, error) {
	outcome := WalkOutcome{}
	for _, r := range results {
		result, ok := r.(FileResult)
		if !ok {
			continue
		}
		manifestPath := manifestPrefix + result.Path
		if strings.HasSuffix(result.Path, "/") {
			if result.Success {
				outcome.Entries = append(outcome.Entries, ManifestEntry{Path: manifestPath, Size: 0})
			}
			continue
		}

		absPath := filepath.Join(d.Cfg.PgData, result.Path)
		if result.Success {
			info, statErr := os.Stat(absPath)
			if statErr != nil {
				tracelog.WarningLogger.Printf("%s seems deleted during backup, dropping from manifest", manifestPath)
				continue
			}
			outcome.Entries = append(outcome.Entries, ManifestEntry{Path: manifestPath, Size: info.Size()})
			continue
		}

		if d.existedBeforeRun(absPath) {
			tracelog.ErrorLogger.Printf("%s existed before this run and failed to back up: fatal", manifestPath)
			outcome.Fatal = true
			continue
		}
		tracelog.WarningLogger.Printf("%s failed to back up but is new this run, should appear on wal apply", manifestPath)
	}
	return outcome, nil
}

func (d *Driver) existedBeforeRun(absPath string) bool {
	info, err := os.Stat(absPath)
	if err != nil {
		return false
	}
	return statCtime(info).Before(d.StartTime)
}

// resolveRestoreCfg returns the Config and stripped relative path to use
// for a manifest entry, routing "pg_tblspc/<name>/..." entries for a
// tablespace outside pgdata to that tablespace's own root instead of
// cfg.PgData/cfg.BackupPath.
func (d *Driver) resolveRestoreCfg(manifestPath string) (Config, string) {
	const prefix = "pg_tblspc/"
	if !strings.HasPrefix(manifestPath, prefix) {
		return d.Cfg, manifestPath
	}
	rest := manifestPath[len(prefix):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return d.Cfg, manifestPath
	}
	name, relPath := rest[:idx], rest[idx+1:]
	target, known := d.TablespaceTargets[name]
	if !known {
		return d.Cfg, manifestPath
	}
	cfg := d.Cfg
	cfg.PgData = target
	cfg.BackupPath = filepath.Join(d.Cfg.BackupPath, "pg_tblspc", name)
	return cfg, relPath
}

// RestoreTree dispatches FileRestore for every non-directory manifest
// entry and creates every directory entry (spec.md §4.8 restore steps
// 3-4).
func (d *Driver) RestoreTree(ctx context.Context, manifest *Manifest) ([]FileResult, error) {
	entries := manifest.Entries()
	tasks := make([]parallel.Task, 0, len(entries))

	for _, entry := range entries {
		entry := entry
		if manifest.IsDir(entry.Path) {
			continue
		}
		cfg, relPath := d.resolveRestoreCfg(entry.Path)
		tasks = append(tasks, func(taskCtx context.Context) (interface{}, error) {
			result := RestoreFile(taskCtx, cfg, d.Transport, relPath)
			result.Path = entry.Path
			return result, nil
		})
	}

	for _, entry := range entries {
		if !manifest.IsDir(entry.Path) {
			continue
		}
		cfg, relPath := d.resolveRestoreCfg(entry.Path)
		dirPath := filepath.Join(cfg.PgData, relPath)
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			tracelog.ErrorLogger.Printf("create directory %s: %+v", entry.Path, err)
		}
	}

	results, err := d.Pool.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}

	fileResults := make([]FileResult, 0, len(results))
	for _, r := range results {
		if result, ok := r.(FileResult); ok {
			fileResults = append(fileResults, result)
		}
	}
	return fileResults, nil
}

// PruneTree deletes anything under pgdata not present in manifest,
// except paths under tablespaces living inside pgdata (spec.md §4.8
// restore step 5) — those are pruned by their own restore traversal and
// are pre-marked in d.ProcessedPaths.
func (d *Driver) PruneTree(manifest *Manifest) error {
	known := make(map[string]struct{}, len(manifest.Entries()))
	for _, entry := range manifest.Entries() {
		known[strings.TrimSuffix(entry.Path, "/")] = struct{}{}
	}

	var toRemove []string
	err := filepath.Walk(d.Cfg.PgData, func(absPath string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if absPath == d.Cfg.PgData {
			return nil
		}
		relPath, relErr := filepath.Rel(d.Cfg.PgData, absPath)
		if relErr != nil {
			return relErr
		}
		relPath = filepath.ToSlash(relPath)

		lookupPath := relPath
		if info.IsDir() {
			lookupPath += "/"
		}
		if _, skip := d.ProcessedPaths[lookupPath]; skip {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := known[relPath]; !ok {
			toRemove = append(toRemove, absPath)
			if info.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, absPath := range toRemove {
		if err := os.RemoveAll(absPath); err != nil {
			tracelog.WarningLogger.Printf("prune %s: %v", absPath, err)
		}
	}
	return nil
}

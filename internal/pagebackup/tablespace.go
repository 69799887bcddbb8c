package pagebackup

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/wal-g/tracelog"
)

// Tablespace is one "name:path" entry from the -T flag (spec.md §6).
type Tablespace struct {
	Name string
	Path string
}

// ParseTablespaces parses the comma-separated "name:path,..." -T value.
func ParseTablespaces(raw string) ([]Tablespace, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	tablespaces := make([]Tablespace, 0, len(parts))
	for _, part := range parts {
		idx := strings.LastIndex(part, ":")
		if idx < 0 {
			return nil, errors.Errorf("ParseTablespaces: malformed entry %q", part)
		}
		tablespaces = append(tablespaces, Tablespace{Name: part[:idx], Path: part[idx+1:]})
	}
	return tablespaces, nil
}

// ParseBandwidthMap parses the comma-separated "name:KBps,..." -W value.
func ParseBandwidthMap(raw string) (map[string]int, error) {
	result := make(map[string]int)
	if raw == "" {
		return result, nil
	}
	for _, part := range strings.Split(raw, ",") {
		idx := strings.LastIndex(part, ":")
		if idx < 0 {
			return nil, errors.Errorf("ParseBandwidthMap: malformed entry %q", part)
		}
		kbps, err := strconv.Atoi(part[idx+1:])
		if err != nil {
			return nil, errors.Wrapf(err, "ParseBandwidthMap: invalid KBps in %q", part)
		}
		result[part[:idx]] = kbps
	}
	return result, nil
}

// symlinkPath is pgdata/pg_tblspc/<name>.
func symlinkPath(pgData, name string) string {
	return filepath.Join(pgData, "pg_tblspc", name)
}

// EnsureTablespaceLinks implements spec.md §4.8 restore step 1: create
// or repair every configured tablespace symlink, and remove any
// pg_tblspc symlink not present in the configuration.
func EnsureTablespaceLinks(pgData string, tablespaces []Tablespace) error {
	tblspcDir := filepath.Join(pgData, "pg_tblspc")
	if err := os.MkdirAll(tblspcDir, 0700); err != nil {
		return errors.Wrapf(err, "create %s", tblspcDir)
	}

	wanted := make(map[string]string, len(tablespaces))
	for _, ts := range tablespaces {
		wanted[ts.Name] = ts.Path
	}

	entries, err := os.ReadDir(tblspcDir)
	if err != nil {
		return errors.Wrapf(err, "read %s", tblspcDir)
	}
	for _, entry := range entries {
		target, wantedTarget := wanted[entry.Name()]
		linkPath := filepath.Join(tblspcDir, entry.Name())
		if !wantedTarget {
			tracelog.InfoLogger.Printf("removing stale tablespace symlink %s", linkPath)
			if err := os.Remove(linkPath); err != nil {
				tracelog.WarningLogger.Printf("remove stale symlink %s: %v", linkPath, err)
			}
			continue
		}
		current, readErr := os.Readlink(linkPath)
		if readErr == nil && current == target {
			continue
		}
		os.Remove(linkPath)
		if err := os.Symlink(target, linkPath); err != nil {
			return errors.Wrapf(err, "symlink %s -> %s", linkPath, target)
		}
	}

	for name, target := range wanted {
		linkPath := symlinkPath(pgData, name)
		if _, err := os.Lstat(linkPath); os.IsNotExist(err) {
			if err := os.Symlink(target, linkPath); err != nil {
				return errors.Wrapf(err, "symlink %s -> %s", linkPath, target)
			}
		}
	}
	return nil
}

// IsInsidePgData reports whether target (a tablespace symlink's
// resolved destination) lives under pgData, the case spec.md §9 says
// the pgdata walk must avoid double-processing.
func IsInsidePgData(pgData, target string) bool {
	rel, err := filepath.Rel(pgData, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

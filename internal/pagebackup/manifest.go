package pagebackup

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ManifestName is the file name of the manifest within backup_path.
const ManifestName = "file.list"

// Manifest is the line-oriented file.list format from spec.md §3:
// one "<relative-path>|<decimal-size>\n" entry per line. Directories are
// recorded with a trailing slash and size 0. Keys are unique; order is
// irrelevant on disk but Entries returns them sorted for determinism.
type Manifest struct {
	sizes map[string]int64
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{sizes: make(map[string]int64)}
}

// Set records (or overwrites) the size for relPath.
func (m *Manifest) Set(relPath string, size int64) {
	m.sizes[relPath] = size
}

// Delete removes relPath from the manifest, if present.
func (m *Manifest) Delete(relPath string) {
	delete(m.sizes, relPath)
}

// Get returns the recorded size for relPath and whether it is present.
func (m *Manifest) Get(relPath string) (int64, bool) {
	size, ok := m.sizes[relPath]
	return size, ok
}

// IsDir reports whether relPath is in directory-entry form (has a
// trailing slash); it does not check whether relPath is present in m.
func (m *Manifest) IsDir(relPath string) bool {
	return strings.HasSuffix(relPath, "/")
}

// Entries returns every (path, size) pair, sorted by path.
func (m *Manifest) Entries() []ManifestEntry {
	entries := make([]ManifestEntry, 0, len(m.sizes))
	for path, size := range m.sizes {
		entries = append(entries, ManifestEntry{Path: path, Size: size})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// ManifestEntry is one (path, size) pair from the manifest.
type ManifestEntry struct {
	Path string
	Size int64
}

// WriteTo serializes the manifest in file.list format.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, entry := range m.Entries() {
		line := fmt.Sprintf("%s|%d\n", entry.Path, entry.Size)
		n, err := io.WriteString(w, line)
		written += int64(n)
		if err != nil {
			return written, errors.Wrap(err, "Manifest.WriteTo: write failed")
		}
	}
	return written, nil
}

// ReadManifest parses a file.list stream into a Manifest.
func ReadManifest(r io.Reader) (*Manifest, error) {
	m := NewManifest()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, "|")
		if idx < 0 {
			return nil, errors.Errorf("ReadManifest: malformed entry on line %d: %q", lineNo, line)
		}
		path := line[:idx]
		size, err := strconv.ParseInt(line[idx+1:], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "ReadManifest: malformed size on line %d", lineNo)
		}
		m.Set(path, size)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "ReadManifest: scan failed")
	}
	return m, nil
}

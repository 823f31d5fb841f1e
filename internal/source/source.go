// Package source reads publ console CSV exports into header-keyed snapshots.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/publsync/internal/core"
)

// ErrNotFound is matched by errors for exports that do not exist.
var ErrNotFound = errors.New("source not found")

// NotFoundError reports that no file in Dir matches Pattern.
type NotFoundError struct {
	Dir     string
	Pattern string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no file matches %q in %s", e.Pattern, e.Dir)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Snapshot is one parsed CSV export.
type Snapshot struct {
	Path   string
	Header []string
	index  core.HeaderIndex
	rows   [][]string
}

// Len returns the number of data rows.
func (s *Snapshot) Len() int {
	return len(s.rows)
}

// Rows returns every data row as a core.Row keyed by header name.
func (s *Snapshot) Rows() []core.Row {
	out := make([]core.Row, len(s.rows))
	for i, rec := range s.rows {
		out[i] = row{index: s.index, values: rec}
	}
	return out
}

// Index returns the header index.
func (s *Snapshot) Index() core.HeaderIndex {
	return s.index
}

// row resolves columns case-insensitively. Short rows read "" for the
// missing trailing columns.
type row struct {
	index  core.HeaderIndex
	values []string
}

func (r row) Get(column string) string {
	i, ok := r.index[strings.ToLower(column)]
	if !ok || i >= len(r.values) {
		return ""
	}
	return core.CleanCell(r.values[i])
}

// Read parses a CSV file. The first non-blank row is the header; blank rows
// are skipped.
func Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap, err := parse(wrap(f))
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", filepath.Base(path), err)
	}
	snap.Path = path
	return snap, nil
}

func parse(r io.Reader) (*Snapshot, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	snap := &Snapshot{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isEmptyRow(record) {
			continue
		}
		if snap.Header == nil {
			snap.Header = make([]string, len(record))
			for i, h := range record {
				snap.Header[i] = core.CleanCell(h)
			}
			snap.index = core.MakeHeaderIndex(snap.Header)
			continue
		}
		snap.rows = append(snap.rows, record)
	}

	if snap.Header == nil {
		return nil, errors.New("file has no header row")
	}
	return snap, nil
}

// isEmptyRow checks if all cells in a row are empty.
func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Find returns the lexicographically last file in dir matching pattern.
// Export names embed a sortable timestamp, so this is the newest export.
func Find(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", &NotFoundError{Dir: dir, Pattern: pattern}
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// FindLatest searches each directory tree for files matching pattern and
// returns the one with the lexicographically last base name.
func FindLatest(pattern string, dirs ...string) (string, error) {
	var best string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			ok, _ := filepath.Match(pattern, d.Name())
			if ok && (best == "" || d.Name() > filepath.Base(best)) {
				best = path
			}
			return nil
		})
		if err != nil {
			return "", err
		}
	}
	if best == "" {
		return "", &NotFoundError{Dir: strings.Join(dirs, ", "), Pattern: pattern}
	}
	return best, nil
}

// Load finds the newest export for a registered source, reads it, and checks
// its header. Cells that fail type checks are logged and kept; decoding
// degrades them to zero values.
func Load(dir string, def core.SourceDefinition, log *slog.Logger) (*Snapshot, error) {
	path, err := Find(dir, def.Info.FilePattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", def.Info.Key, err)
	}

	snap, err := Read(path)
	if err != nil {
		return nil, err
	}

	if _, err := core.ValidateHeaders(def.Info.Key, snap.Header, def.FieldSpecs); err != nil {
		return nil, err
	}

	if log != nil {
		invalid := 0
		for _, r := range snap.Rows() {
			for _, spec := range def.FieldSpecs {
				if err := core.ValidateCell(r.Get(spec.Name), spec); err != nil {
					invalid++
					if invalid <= 5 {
						log.Warn("invalid cell", "source", def.Info.Key, "error", err)
					}
				}
			}
		}
		if invalid > 5 {
			log.Warn("more invalid cells", "source", def.Info.Key, "count", invalid)
		}
		log.Info("source loaded", "source", def.Info.Key, "file", filepath.Base(path), "rows", snap.Len())
	}

	return snap, nil
}

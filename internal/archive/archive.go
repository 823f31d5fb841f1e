// Package archive moves processed exports out of the download directory.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Move moves every *.csv in downloadDir into archiveDir/YYYYMMDD/ and returns
// the new paths. A file whose name is already taken gets a _HHMMSS suffix
// before its extension; existing archives are never overwritten.
func Move(downloadDir, archiveDir string, now time.Time) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(downloadDir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}
	sort.Strings(files)

	dayDir := filepath.Join(archiveDir, now.Format("20060102"))
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	var moved []string
	for _, src := range files {
		dst, err := target(dayDir, filepath.Base(src), now)
		if err != nil {
			return moved, err
		}
		if err := os.Rename(src, dst); err != nil {
			return moved, fmt.Errorf("archive %s: %w", filepath.Base(src), err)
		}
		moved = append(moved, dst)
	}
	return moved, nil
}

// target picks a free destination path for name inside dir.
func target(dir, name string, now time.Time) (string, error) {
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); errors.Is(err, os.ErrNotExist) {
		return dst, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	base := stem + "_" + now.Format("150405")
	for i := 0; ; i++ {
		candidate := base + ext
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		dst = filepath.Join(dir, candidate)
		_, err := os.Stat(dst)
		if errors.Is(err, os.ErrNotExist) {
			return dst, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", dst, err)
		}
	}
}

// EnsureDirs creates each directory if it does not exist.
func EnsureDirs(dirs ...string) error {
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

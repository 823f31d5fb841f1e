package download

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/publsync/internal/source"
)

// numberColumn is the per-page row counter of the orders export.
const numberColumn = "Number"

var pageRegex = regexp.MustCompile(`_orders_page(\d+)\.csv$`)

type page struct {
	n    int
	path string
}

// MergeOrderPages concatenates <ts>_orders_page<N>.csv in page order into
// <ts>_orders_all.csv, renumbers the Number column from 1, and moves the page
// files into trashDir. The header of page 1 wins. It returns the merged path
// and its row count.
func MergeOrderPages(dir, ts, trashDir string) (string, int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, ts+"_orders_page*.csv"))
	if err != nil {
		return "", 0, err
	}
	var pages []page
	for _, m := range matches {
		sub := pageRegex.FindStringSubmatch(m)
		if sub == nil {
			continue
		}
		n, _ := strconv.Atoi(sub[1])
		pages = append(pages, page{n: n, path: m})
	}
	if len(pages) == 0 {
		return "", 0, fmt.Errorf("no order pages for %s in %s", ts, dir)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	var header []string
	var rows [][]string
	for i, p := range pages {
		snap, err := source.Read(p.path)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", p.n, err)
		}
		if i == 0 {
			header = snap.Header
		}
		for _, r := range snap.Rows() {
			rec := make([]string, len(header))
			for c, col := range header {
				rec[c] = r.Get(col)
			}
			rows = append(rows, rec)
		}
	}

	if col := indexOf(header, numberColumn); col >= 0 {
		for i := range rows {
			rows[i][col] = strconv.Itoa(i + 1)
		}
	}

	merged := filepath.Join(dir, ts+"_orders_all.csv")
	if err := writeCSV(merged, header, rows); err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return merged, len(rows), fmt.Errorf("create trash dir: %w", err)
	}
	for _, p := range pages {
		if err := os.Rename(p.path, filepath.Join(trashDir, filepath.Base(p.path))); err != nil {
			return merged, len(rows), fmt.Errorf("move page %d: %w", p.n, err)
		}
	}
	return merged, len(rows), nil
}

// writeCSV writes a UTF-8 CSV with a byte order mark, as the console does.
func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.WriteString("\ufeff"); err != nil {
		f.Close()
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// Package download obtains the publ console exports.
//
// Browser automation stays outside this module: a Downloader drives whatever
// tool saves the CSVs into the download directory, and this package only
// names, locates and post-processes the files it produced.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/publsync/internal/config"
	"github.com/JonMunkholm/publsync/internal/core"
)

// Mode selects what a download run fetches.
type Mode string

const (
	// ModeDaily fetches the members, newest orders page and refunds exports.
	ModeDaily Mode = "daily"
	// ModeInitOrders fetches every orders page for the initial backfill.
	ModeInitOrders Mode = "init-orders"
)

// TimestampLayout prefixes every export file name.
const TimestampLayout = "060102_150405"

// Timestamp formats now as a file name prefix, e.g. "241229_090507".
func Timestamp(now time.Time) string {
	return now.Format(TimestampLayout)
}

// Downloader saves exports into a directory and returns their paths.
type Downloader interface {
	Download(ctx context.Context, mode Mode) ([]string, error)
}

// ErrNoCommand is returned when no download command is configured.
var ErrNoCommand = errors.New("download command not configured")

// Command runs an external command through the shell. The command receives
// its inputs in the environment:
//
//	PUBL_ID, PUBL_PW, PUBL_CHANNEL_ID  console credentials
//	DOWNLOAD_DIR                       where to save the CSVs
//	DOWNLOAD_TIMESTAMP                 file name prefix to use
//	DOWNLOAD_MODE                      "daily" or "init-orders"
//
// Daily runs must produce <ts>_members.csv, <ts>_orders*.csv and
// <ts>_refunds.csv. Init runs produce <ts>_orders_page<N>.csv files, which
// are merged into <ts>_orders_all.csv.
type Command struct {
	Shell    string
	Script   string
	Dir      string
	TrashDir string
	Timeout  time.Duration
	Publ     config.PublConfig

	log *slog.Logger
	now func() time.Time
}

// NewCommand creates a Command from the configuration.
func NewCommand(cfg *config.Config, log *slog.Logger) *Command {
	if log == nil {
		log = slog.Default()
	}
	return &Command{
		Shell:    "sh",
		Script:   cfg.Download.Command,
		Dir:      cfg.Paths.DownloadDir,
		TrashDir: filepath.Join(filepath.Dir(filepath.Clean(cfg.Paths.DownloadDir)), ".trash"),
		Timeout:  cfg.Download.Timeout,
		Publ:     cfg.Publ,
		log:      log.With("component", "download"),
		now:      time.Now,
	}
}

// Download runs the command and resolves the files it produced.
func (c *Command) Download(ctx context.Context, mode Mode) ([]string, error) {
	if strings.TrimSpace(c.Script) == "" {
		return nil, ErrNoCommand
	}
	ts := Timestamp(c.now())

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Shell, "-c", c.Script)
	cmd.Env = append(os.Environ(),
		"PUBL_ID="+c.Publ.ID,
		"PUBL_PW="+c.Publ.Password,
		"PUBL_CHANNEL_ID="+c.Publ.ChannelID,
		"DOWNLOAD_DIR="+c.Dir,
		"DOWNLOAD_TIMESTAMP="+ts,
		"DOWNLOAD_MODE="+string(mode),
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = 5 * time.Second

	start := c.now()
	c.log.Info("download started", "mode", mode, "timestamp", ts, "dir", c.Dir)
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("download timed out after %s: %w", c.Timeout, ctx.Err())
		}
		return nil, fmt.Errorf("download command: %w: %s", err, tail(out.String(), 5))
	}
	c.log.Info("download finished", "mode", mode, "duration", c.now().Sub(start).Round(time.Millisecond))

	if mode == ModeInitOrders {
		merged, rows, err := MergeOrderPages(c.Dir, ts, c.TrashDir)
		if err != nil {
			return nil, err
		}
		c.log.Info("order pages merged", "file", filepath.Base(merged), "rows", rows)
		return []string{merged}, nil
	}
	return Resolve(c.Dir, ts)
}

// Resolve returns the daily exports carrying the timestamp prefix ts, in
// members, orders, refunds order. Every export must be present.
func Resolve(dir, ts string) ([]string, error) {
	var files, missing []string
	for _, key := range []string{core.SourceMembers, core.SourceOrders, core.SourceRefunds} {
		matches, err := filepath.Glob(filepath.Join(dir, ts+"_"+key+"*.csv"))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			missing = append(missing, key)
			continue
		}
		files = append(files, matches[len(matches)-1])
	}
	if len(missing) > 0 {
		return files, fmt.Errorf("download incomplete: no %s export for %s", strings.Join(missing, ", "), ts)
	}
	return files, nil
}

// tail returns the last n lines of s joined on one line.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

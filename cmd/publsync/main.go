package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/publsync/internal/archive"
	"github.com/JonMunkholm/publsync/internal/config"
	"github.com/JonMunkholm/publsync/internal/core"
	_ "github.com/JonMunkholm/publsync/internal/core/tables" // Register all sources
	"github.com/JonMunkholm/publsync/internal/download"
	"github.com/JonMunkholm/publsync/internal/logging"
	"github.com/JonMunkholm/publsync/internal/notify"
	"github.com/JonMunkholm/publsync/internal/pipeline"
	"github.com/JonMunkholm/publsync/internal/report"
	"github.com/JonMunkholm/publsync/internal/store"
	"github.com/JonMunkholm/publsync/internal/store/airtable"
	"github.com/JonMunkholm/publsync/internal/store/sqlstore"
)

// annotationNoConfig marks commands that run without loading the configuration.
const annotationNoConfig = "no-config"

// app is the state shared by every command, filled in by the root
// PersistentPreRunE.
type app struct {
	cfg *config.Config
	log *slog.Logger
}

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	envLoaded := godotenv.Overload() == nil

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	root := newRootCmd(a)
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if _, ok := cmd.Annotations[annotationNoConfig]; ok {
			return nil
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a.cfg = cfg
		a.log = logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
		a.log.Debug("configuration loaded", "env_file", envLoaded, "config", cfg.String())
		return nil
	}

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err))
		os.Exit(1)
	}
}

// errorText renders a command error, leading with the coded message when the
// error is a known one.
func errorText(err error) string {
	if core.IsUserFacing(err) {
		return core.FormatUserError(err) + "\n" + err.Error()
	}
	return err.Error()
}

func newRootCmd(a *app) *cobra.Command {
	var initOrders bool

	root := &cobra.Command{
		Use:   "publsync",
		Short: "publsync downloads the publ.biz exports and syncs them into the store.",
		Long: `publsync downloads the members, orders and refunds exports of the publ
console, reconciles them into the configured store, archives the exports and
records the run in the history table.

With --init-orders it downloads every orders page instead, for the initial
backfill; run "publsync sync" afterwards to load the merged file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initOrders {
				return a.initOrders(cmd.Context())
			}
			return a.fullRun(cmd.Context())
		},
	}
	root.Flags().BoolVar(&initOrders, "init-orders", false, "download every orders page for the initial backfill")

	root.AddCommand(
		newSyncCmd(a),
		newBackfillISOCmd(a),
		newFixCodesCmd(a),
		newBackfillActiveCmd(a),
		newBackfillRefundLinksCmd(a),
		newValidateCmd(a),
		newWithdrawCmd(a),
		newMigrateCmd(a),
		newAnalyzeCmd(a),
		newSourcesCmd(),
	)
	return root
}

// openBase connects to the configured store backend.
func (a *app) openBase(ctx context.Context) (store.Base, func(), error) {
	s := a.cfg.Store
	switch s.Backend {
	case config.BackendAirtable:
		c, err := airtable.New(airtable.Options{
			APIKey:  s.AirtableAPIKey,
			BaseID:  s.AirtableBaseID,
			BaseURL: s.AirtableURL,
			Timeout: s.Timeout,
			Logger:  a.log,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	case config.BackendPostgres:
		b, err := sqlstore.OpenPostgres(ctx, s.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	case config.BackendSQLite:
		b, err := sqlstore.OpenSQLite(ctx, s.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}
}

// fullRun downloads, syncs, archives, prints the summary, records history
// and notifies on failure. Only a fatal error makes it return an error.
func (a *app) fullRun(ctx context.Context) error {
	if a.cfg.Download.Command != "" {
		if err := a.cfg.ValidateDownload(); err != nil {
			return err
		}
	}
	if err := archive.EnsureDirs(a.cfg.Paths.DownloadDir, a.cfg.Paths.ArchiveDir); err != nil {
		return err
	}

	base, closeBase, err := a.openBase(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeBase()

	ctx = logging.WithRunID(ctx, uuid.NewString())
	orch := pipeline.New(base, a.cfg.Settings, a.log)
	started := time.Now()

	files, err := a.download(ctx, download.ModeDaily)
	if err != nil {
		res := pipeline.Result{
			RunID:    logging.RunID(ctx),
			Started:  started,
			Duration: time.Since(started),
			Fatal:    fmt.Errorf("download: %w", err),
		}
		a.finish(ctx, orch, res, files, 0)
		return res.Fatal
	}

	res := orch.Run(ctx, pipeline.Input{DownloadDir: a.cfg.Paths.DownloadDir, Files: files})

	archived := 0
	if res.Fatal == nil {
		moved, err := archive.Move(a.cfg.Paths.DownloadDir, a.cfg.Paths.ArchiveDir, time.Now())
		if err != nil {
			logging.With(ctx, a.log).Error("archive failed", "error", err)
		}
		archived = len(moved)
	}

	a.finish(ctx, orch, res, files, archived)
	return res.Fatal
}

// download runs the configured downloader. Without a command the exports
// already in the download directory are used.
func (a *app) download(ctx context.Context, mode download.Mode) ([]string, error) {
	log := logging.With(ctx, a.log)
	var d download.Downloader = download.NewCommand(a.cfg, log)
	files, err := d.Download(ctx, mode)
	if errors.Is(err, download.ErrNoCommand) {
		log.Warn("no download command configured; using exports already in the download directory", "dir", a.cfg.Paths.DownloadDir)
		return filepath.Glob(filepath.Join(a.cfg.Paths.DownloadDir, "*.csv"))
	}
	return files, err
}

// finish prints the summary, records history and sends the failure notice.
func (a *app) finish(ctx context.Context, orch *pipeline.Orchestrator, res pipeline.Result, files []string, archived int) {
	report.Summary(os.Stdout, res, files, archived)

	// History and notice still go out when the run was interrupted.
	ctx = context.WithoutCancel(logging.WithRunID(ctx, res.RunID))
	log := logging.With(ctx, a.log)
	if err := orch.RecordHistory(ctx, res, files); err != nil {
		log.Warn("continuing without history", "error", err)
	}
	if err := notify.New(a.cfg.Notify, log).NotifyFailure(ctx, res); err != nil {
		log.Warn("continuing without notice", "error", err)
	}
}

// initOrders downloads and merges every orders page.
func (a *app) initOrders(ctx context.Context) error {
	if err := a.cfg.ValidateDownload(); err != nil {
		return err
	}
	if err := archive.EnsureDirs(a.cfg.Paths.DownloadDir); err != nil {
		return err
	}
	files, err := download.NewCommand(a.cfg, a.log).Download(ctx, download.ModeInitOrders)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintf(os.Stdout, "Downloaded %s\n", f)
	}
	return nil
}

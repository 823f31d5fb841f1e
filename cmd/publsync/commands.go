package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/publsync/internal/archive"
	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/maintenance"
	"github.com/JonMunkholm/publsync/internal/pipeline"
	"github.com/JonMunkholm/publsync/internal/reconcile"
	"github.com/JonMunkholm/publsync/internal/report"
	"github.com/JonMunkholm/publsync/internal/source"
	"github.com/JonMunkholm/publsync/internal/store"
)

// withBase opens the store for the duration of fn.
func (a *app) withBase(ctx context.Context, fn func(store.Base) error) error {
	base, closeBase, err := a.openBase(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeBase()
	return fn(base)
}

func (a *app) jobs(base store.Base) *maintenance.Jobs {
	return maintenance.New(base, a.cfg.Settings, a.log)
}

func newSyncCmd(a *app) *cobra.Command {
	var dir string
	var archiveAfter bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the exports already in the download directory, without downloading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.Paths.DownloadDir
			}
			return a.withBase(cmd.Context(), func(base store.Base) error {
				orch := pipeline.New(base, a.cfg.Settings, a.log)
				res := orch.Run(cmd.Context(), pipeline.Input{DownloadDir: dir})

				archived := 0
				if archiveAfter && res.Fatal == nil {
					moved, err := archive.Move(dir, a.cfg.Paths.ArchiveDir, time.Now())
					if err != nil {
						a.log.Error("archive failed", "error", err)
					}
					archived = len(moved)
				}
				a.finish(cmd.Context(), orch, res, nil, archived)
				return res.Fatal
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory holding the exports (default DOWNLOAD_DIR)")
	cmd.Flags().BoolVar(&archiveAfter, "archive", false, "archive the exports after a successful sync")
	return cmd
}

func newBackfillISOCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-iso",
		Short: "Fill empty ISO date fields from the raw export dates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBase(cmd.Context(), func(base store.Base) error {
				counts, err := a.jobs(base).BackfillISODates(cmd.Context())
				report.Counts(os.Stdout, "ISO date backfill", counts)
				return err
			})
		},
	}
}

func newFixCodesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fix-codes",
		Short: "Rebuild member program codes that are missing the member prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBase(cmd.Context(), func(base store.Base) error {
				n, err := a.jobs(base).RepairProgramCodes(cmd.Context())
				report.Counts(os.Stdout, "Program code repair", []maintenance.TableCount{{Table: a.cfg.Settings.Tables.MemberPrograms, Count: n}})
				return err
			})
		},
	}
}

func newBackfillActiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-active",
		Short: "Mark every member as active; run once after adding the Is Active field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBase(cmd.Context(), func(base store.Base) error {
				n, err := a.jobs(base).BackfillIsActive(cmd.Context())
				report.Counts(os.Stdout, "Is Active backfill", []maintenance.TableCount{{Table: a.cfg.Settings.Tables.Members, Count: n}})
				return err
			})
		},
	}
}

func newBackfillRefundLinksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-refund-links",
		Short: "Link refunds to their orders where the link is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBase(cmd.Context(), func(base store.Base) error {
				rec := reconcile.New(base, pipeline.ReconcileOptions(a.cfg.Settings), a.log)
				res, err := rec.BackfillRefundOrderLinks(cmd.Context())
				report.Links(os.Stdout, "Refund order links", res)
				return err
			})
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Count records with empty required fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBase(cmd.Context(), func(base store.Base) error {
				results, err := a.jobs(base).ValidateRequiredFields(cmd.Context(), fix)
				report.RequiredFields(os.Stdout, results)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "write the configured default into empty fields")
	return cmd
}

func newWithdrawCmd(a *app) *cobra.Command {
	var dir string
	var check bool

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Deactivate members missing from the newest members export",
		Long: `withdraw deactivates store members whose code is missing from the newest
members export. Test records are never deactivated. With --check it only
compares the active count with the export row count, which is the precheck
the sync runs before scanning.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.Paths.DownloadDir
			}
			if check {
				return a.withBase(cmd.Context(), func(base store.Base) error {
					jobs := a.jobs(base)
					active, err := jobs.CountActiveMembers(cmd.Context())
					if err != nil {
						return err
					}
					rows, err := jobs.CountCSVMembers(dir)
					if err != nil {
						return err
					}
					report.WithdrawalPrecheck(os.Stdout, active, rows)
					return nil
				})
			}

			snap, err := source.Load(dir, core.MustGet(core.SourceMembers), a.log)
			if err != nil {
				return err
			}
			return a.withBase(cmd.Context(), func(base store.Base) error {
				rec := reconcile.New(base, pipeline.ReconcileOptions(a.cfg.Settings), a.log)
				res, err := rec.DetectWithdrawals(cmd.Context(), snap.Rows())
				report.Withdrawal(os.Stdout, res)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory holding the members export (default DOWNLOAD_DIR)")
	cmd.Flags().BoolVar(&check, "check", false, "only compare the active count with the export row count")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	var execute bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Recompute program codes under the program rule and merge collisions",
		Long: `migrate recomputes every member program code as <member>_<program> and
merges records that end up with the same code. Without --execute it only
prints the plan. Merged records are reported for manual deletion unless the
settings file sets delete_policy to "delete".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBase(cmd.Context(), func(base store.Base) error {
				res, err := a.jobs(base).MigrateProgramCodes(cmd.Context(), !execute)
				report.Migration(os.Stdout, res)
				if err == nil && !execute {
					fmt.Fprintln(os.Stdout, "Dry run. Re-run with --execute to apply.")
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "apply the migration")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Compare the store members with the newest members export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBase(cmd.Context(), func(base store.Base) error {
				res, err := a.jobs(base).Analyze(cmd.Context(), a.cfg.Paths.DownloadDir, a.cfg.Paths.ArchiveDir)
				if err != nil {
					return err
				}
				report.Analysis(os.Stdout, res)
				return nil
			})
		},
	}
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "sources",
		Short:       "List the exports the sync reads and their required columns",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: ""},
		RunE: func(cmd *cobra.Command, args []string) error {
			report.Sources(cmd.OutOrStdout(), core.All())
			return nil
		},
	}
}

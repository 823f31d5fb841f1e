// Package pipeline runs one sync: ensure the schema, reconcile every entity
// in dependency order, repair links and required fields, and produce a Result
// that the CLI prints and appends to the history table.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/publsync/internal/config"
	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/logging"
	"github.com/JonMunkholm/publsync/internal/maintenance"
	"github.com/JonMunkholm/publsync/internal/reconcile"
	"github.com/JonMunkholm/publsync/internal/schema"
	"github.com/JonMunkholm/publsync/internal/source"
	"github.com/JonMunkholm/publsync/internal/store"
)

// Stage names, in run order.
const (
	StageSchema         = "schema"
	StageMembers        = "members"
	StageWithdrawal     = "withdrawal"
	StageOrders         = "orders"
	StageProducts       = "products"
	StageMemberPrograms = "member_programs"
	StageOrderLinks     = "orders_link_backfill"
	StageRefunds        = "refunds"
	StageRefundLinks    = "refunds_link_backfill"
	StageRequiredFields = "required_fields"
)

// Input locates the exports of one run.
type Input struct {
	DownloadDir string
	Files       []string // downloaded files, recorded in history
}

// StageResult records how one stage ended.
type StageResult struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Result is the outcome of a run.
type Result struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Stages   []StageResult
	Fatal    error

	SchemaCreated  []string
	Members        reconcile.MemberResult
	Withdrawal     reconcile.WithdrawalResult
	Orders         reconcile.InsertResult
	Products       reconcile.InsertResult
	Programs       reconcile.ProgramResult
	OrderLinks     reconcile.LinkResult
	Refunds        reconcile.RefundResult
	RefundLinks    reconcile.LinkResult
	RequiredFields []maintenance.RequiredFieldsResult
}

// Status is "Success" when there was no fatal error and every stage
// succeeded, "Failed" otherwise.
func (r Result) Status() string {
	if r.Fatal != nil || len(r.Failed()) > 0 {
		return schema.StatusFailed
	}
	return schema.StatusSuccess
}

// Failed returns the stages that ended with an error.
func (r Result) Failed() []StageResult {
	var out []StageResult
	for _, s := range r.Stages {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Stage returns the result of the named stage, if it ran.
func (r Result) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Orchestrator runs sync pipelines against one base.
type Orchestrator struct {
	base     store.Base
	settings config.Settings
	log      *slog.Logger
	now      func() time.Time
}

// New creates an Orchestrator. A nil logger uses slog.Default.
func New(base store.Base, settings config.Settings, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{base: base, settings: settings, log: log, now: time.Now}
}

// ReconcileOptions maps the settings onto reconciler options.
func ReconcileOptions(s config.Settings) reconcile.Options {
	return reconcile.Options{
		Tables:                 s.Tables,
		BatchSize:              s.BatchSize,
		TZOffset:               s.TimezoneOffset,
		TestRecords:            s.TestRecords,
		NearDuplicateThreshold: s.NearDuplicateThreshold,
	}
}

// Run executes every stage in order. Only a schema failure stops the run;
// any other stage failure is recorded and the next stage still runs. The run
// id in ctx is reused when present.
func (o *Orchestrator) Run(ctx context.Context, in Input) Result {
	runID := logging.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logging.WithRunID(ctx, runID)
	}
	res := Result{RunID: runID, Started: o.now()}
	log := logging.With(ctx, o.log)

	rec := reconcile.New(o.base, ReconcileOptions(o.settings), log)
	jobs := maintenance.New(o.base, o.settings, log)
	snaps := newSnapshots(in.DownloadDir, log)

	log.Info("sync started", "dir", in.DownloadDir, "files", len(in.Files))

	err := o.stage(ctx, &res, StageSchema, func(ctx context.Context) error {
		created, err := schema.Ensure(ctx, o.base, o.settings.Tables, o.settings.TimezoneOffset, log)
		res.SchemaCreated = created
		return err
	})
	if err != nil {
		res.Fatal = fmt.Errorf("ensure schema: %w", err)
		res.Duration = o.now().Sub(res.Started)
		log.Error("sync aborted", "error", res.Fatal)
		return res
	}

	o.stage(ctx, &res, StageMembers, func(ctx context.Context) error {
		rows, err := snaps.rows(core.SourceMembers)
		if err != nil {
			return err
		}
		res.Members, err = rec.SyncMembers(ctx, rows)
		return err
	})

	o.stage(ctx, &res, StageWithdrawal, func(ctx context.Context) error {
		rows, err := snaps.rows(core.SourceMembers)
		if err != nil {
			return err
		}
		res.Withdrawal, err = rec.DetectWithdrawals(ctx, rows)
		return err
	})

	o.stage(ctx, &res, StageOrders, func(ctx context.Context) error {
		rows, err := snaps.rows(core.SourceOrders)
		if err != nil {
			return err
		}
		res.Orders, err = rec.SyncOrders(ctx, rows)
		return err
	})

	o.stage(ctx, &res, StageProducts, func(ctx context.Context) error {
		rows, err := snaps.rows(core.SourceOrders)
		if err != nil {
			return err
		}
		res.Products, err = rec.SyncProducts(ctx, rows)
		return err
	})

	o.stage(ctx, &res, StageMemberPrograms, func(ctx context.Context) (err error) {
		res.Programs, err = rec.SyncMemberPrograms(ctx)
		return err
	})

	o.stage(ctx, &res, StageOrderLinks, func(ctx context.Context) (err error) {
		res.OrderLinks, err = rec.BackfillOrderProgramLinks(ctx)
		return err
	})

	o.stage(ctx, &res, StageRefunds, func(ctx context.Context) error {
		rows, err := snaps.rows(core.SourceRefunds)
		if err != nil {
			return err
		}
		res.Refunds, err = rec.SyncRefunds(ctx, rows)
		return err
	})

	o.stage(ctx, &res, StageRefundLinks, func(ctx context.Context) (err error) {
		res.RefundLinks, err = rec.BackfillRefundOrderLinks(ctx)
		return err
	})

	o.stage(ctx, &res, StageRequiredFields, func(ctx context.Context) (err error) {
		res.RequiredFields, err = jobs.ValidateRequiredFields(ctx, true)
		return err
	})

	res.Duration = o.now().Sub(res.Started)
	log.Info("sync finished",
		"status", res.Status(),
		"duration", res.Duration.Round(time.Millisecond),
		"failed_stages", len(res.Failed()),
		"members_new", res.Members.Inserted,
		"orders_new", res.Orders.Inserted,
		"refunds_new", res.Refunds.Insert.Inserted,
		"refunds_updated", res.Refunds.Status.Updated,
	)
	return res
}

// stage runs fn, converting a panic into an error, and appends its result.
func (o *Orchestrator) stage(ctx context.Context, res *Result, name string, fn func(context.Context) error) (err error) {
	log := logging.WithFields(ctx, o.log, "stage", name)
	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in stage", "panic", r)
			err = fmt.Errorf("internal error: %v", r)
		}
		sr := StageResult{Name: name, Err: err, Duration: o.now().Sub(start)}
		res.Stages = append(res.Stages, sr)
		if err != nil {
			log.Error("stage failed", "error", err)
			return
		}
		log.Info("stage complete", "duration", sr.Duration.Round(time.Millisecond))
	}()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fn(ctx)
}

// snapshots loads each export at most once per run. A load error is cached
// so every stage that needs the same export fails the same way.
type snapshots struct {
	dir   string
	log   *slog.Logger
	cache map[string]*source.Snapshot
	errs  map[string]error
}

func newSnapshots(dir string, log *slog.Logger) *snapshots {
	return &snapshots{
		dir:   dir,
		log:   log,
		cache: make(map[string]*source.Snapshot),
		errs:  make(map[string]error),
	}
}

func (s *snapshots) rows(key string) ([]core.Row, error) {
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	snap, ok := s.cache[key]
	if !ok {
		def, found := core.Get(key)
		if !found {
			err := fmt.Errorf("source %s is not registered", key)
			s.errs[key] = err
			return nil, err
		}
		var err error
		snap, err = source.Load(s.dir, def, s.log)
		if err != nil {
			s.errs[key] = err
			return nil, err
		}
		s.cache[key] = snap
	}
	return snap.Rows(), nil
}

// Package reconcile diffs CSV snapshots against the remote store and applies
// the difference in batches.
//
// Each entity reconciler is a method on Reconciler. They all share the generic
// engine in engine.go: fetch the remote key map, skip what exists, insert the
// rest, then repair links that could not be resolved at insert time.
package reconcile

import (
	"log/slog"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
)

// DefaultNearDuplicateThreshold is the Jaro-Winkler similarity at which two
// members with different codes are reported as possible duplicates.
const DefaultNearDuplicateThreshold = 0.95

// Options configures a Reconciler.
type Options struct {
	Tables      core.TableNames
	BatchSize   int    // capped at store.MaxBatchSize
	TZOffset    string // applied to raw export timestamps
	TestRecords core.TestRecordRules

	// NearDuplicateThreshold enables the near-duplicate member report when > 0.
	NearDuplicateThreshold float64
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Tables:                 core.DefaultTableNames(),
		BatchSize:              store.MaxBatchSize,
		TZOffset:               core.DefaultOffset,
		TestRecords:            core.DefaultTestRecordRules(),
		NearDuplicateThreshold: DefaultNearDuplicateThreshold,
	}
}

// Reconciler syncs CSV snapshots into a store.Base.
type Reconciler struct {
	base store.Base
	opts Options
	log  *slog.Logger
}

// New creates a Reconciler. A nil logger uses slog.Default.
func New(base store.Base, opts Options, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	opts.BatchSize = store.ClampBatchSize(opts.BatchSize)
	if !core.ValidOffset(opts.TZOffset) {
		opts.TZOffset = core.DefaultOffset
	}
	return &Reconciler{base: base, opts: opts, log: log.With("component", "reconcile")}
}

func (r *Reconciler) table(name string) store.Table {
	return r.base.Table(name)
}

func (r *Reconciler) members() store.Table  { return r.table(r.opts.Tables.Members) }
func (r *Reconciler) orders() store.Table   { return r.table(r.opts.Tables.Orders) }
func (r *Reconciler) refunds() store.Table  { return r.table(r.opts.Tables.Refunds) }
func (r *Reconciler) products() store.Table { return r.table(r.opts.Tables.Products) }
func (r *Reconciler) programs() store.Table { return r.table(r.opts.Tables.MemberPrograms) }

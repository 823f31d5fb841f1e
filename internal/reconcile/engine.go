package reconcile

// engine.go is the diff-and-batch-upsert core shared by every entity.
//
// The store does not enforce unique keys, so the engine does: before inserting
// it loads the full key->id map of the remote table and drops every row whose
// key is empty, already remote, or already seen earlier in the same snapshot.
// The survivors are written in batches of at most store.MaxBatchSize. A batch
// rejected for an unknown single-select option is logged and counted as
// failed; the remaining batches still run.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
)

// Link resolves a foreign key to a record id. Unresolved links are omitted
// from the written fields and left for a backfill pass.
type Link[T any] struct {
	Field string
	Key   func(T) string
	Index map[string]string // key -> record id
}

// Plan describes how one entity type is inserted.
type Plan[T any] struct {
	Entity    string
	Table     store.Table
	KeyField  string
	Key       func(T) string
	Fields    func(T) store.Fields
	Links     []Link[T]
	BatchSize int
}

// InsertResult counts the outcome of an Insert.
type InsertResult struct {
	Entity        string
	Candidates    int // rows offered
	Inserted      int
	Skipped       int // empty key, already remote, or repeated in the snapshot
	Failed        int // rows in rejected batches
	FailedBatches int
}

// UpdateResult counts the outcome of an Update.
type UpdateResult struct {
	Entity        string
	Candidates    int
	Updated       int
	Failed        int
	FailedBatches int
}

// LinkResult counts the outcome of a link backfill.
type LinkResult struct {
	UpdateResult
	Missing         int      // targets with no matching record
	MissingExamples []string // up to maxExamples keys
}

const maxExamples = 5

type pendingRow struct {
	key    string
	fields store.Fields
}

// Insert writes the rows whose key is not yet in existing. New keys are added
// to existing as their records are created, so the map can serve later link
// resolution.
func Insert[T any](ctx context.Context, log *slog.Logger, plan Plan[T], existing map[string]string, rows []T) (InsertResult, error) {
	res := InsertResult{Entity: plan.Entity, Candidates: len(rows)}

	seen := make(map[string]bool, len(rows))
	var pending []pendingRow
	for _, row := range rows {
		key := plan.Key(row)
		if key == "" || seen[key] {
			res.Skipped++
			continue
		}
		seen[key] = true
		if _, ok := existing[key]; ok {
			res.Skipped++
			continue
		}

		fields := plan.Fields(row)
		for _, l := range plan.Links {
			lk := l.Key(row)
			if lk == "" {
				continue
			}
			if id, ok := l.Index[lk]; ok {
				fields[l.Field] = []string{id}
			}
		}
		pending = append(pending, pendingRow{key: key, fields: fields})
	}

	if len(pending) == 0 {
		log.Info("nothing to insert", "entity", plan.Entity, "skipped", res.Skipped)
		return res, nil
	}
	log.Info("inserting", "entity", plan.Entity, "count", len(pending), "skipped", res.Skipped)

	for _, batch := range store.Chunk(pending, store.ClampBatchSize(plan.BatchSize)) {
		fields := make([]store.Fields, len(batch))
		for i, p := range batch {
			fields[i] = p.fields
		}

		created, err := plan.Table.BatchCreate(ctx, fields)
		if err != nil {
			if errors.Is(err, store.ErrInvalidOption) {
				logRejected(log, plan.Entity, err, batchKeys(batch), fields)
				res.Failed += len(batch)
				res.FailedBatches++
				continue
			}
			return res, fmt.Errorf("insert %s: %w", plan.Entity, err)
		}

		for i, rec := range created {
			if i < len(batch) {
				existing[batch[i].key] = rec.ID
			}
		}
		res.Inserted += len(created)
	}

	log.Info("inserted", "entity", plan.Entity, "inserted", res.Inserted, "failed", res.Failed)
	return res, nil
}

// Update patches records in batches with the same rejection tolerance as Insert.
func Update(ctx context.Context, log *slog.Logger, table store.Table, entity string, updates []store.Record, batchSize int) (UpdateResult, error) {
	res := UpdateResult{Entity: entity, Candidates: len(updates)}
	if len(updates) == 0 {
		return res, nil
	}

	for _, batch := range store.Chunk(updates, store.ClampBatchSize(batchSize)) {
		updated, err := table.BatchUpdate(ctx, batch)
		if err != nil {
			if errors.Is(err, store.ErrInvalidOption) {
				ids := make([]string, len(batch))
				fields := make([]store.Fields, len(batch))
				for i, r := range batch {
					ids[i] = r.ID
					fields[i] = r.Fields
				}
				logRejected(log, entity, err, ids, fields)
				res.Failed += len(batch)
				res.FailedBatches++
				continue
			}
			return res, fmt.Errorf("update %s: %w", entity, err)
		}
		res.Updated += len(updated)
	}

	log.Info("updated", "entity", entity, "updated", res.Updated, "failed", res.Failed)
	return res, nil
}

// ExistingKeys fetches a table and maps each non-empty key to its record id.
func ExistingKeys(ctx context.Context, table store.Table, field string) (map[string]string, error) {
	records, err := table.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return IndexRecords(records, field), nil
}

// IndexRecords maps each non-empty value of field to the id of the first
// record carrying it.
func IndexRecords(records []store.Record, field string) map[string]string {
	idx := make(map[string]string, len(records))
	for _, r := range records {
		key := r.Fields.String(field)
		if key == "" {
			continue
		}
		if _, ok := idx[key]; !ok {
			idx[key] = r.ID
		}
	}
	return idx
}

func logRejected(log *slog.Logger, entity string, err error, keys []string, batch []store.Fields) {
	attrs := []any{"entity", entity, "records", keys, "error", err}
	var ioe *store.InvalidOptionError
	if errors.As(err, &ioe) && ioe.Field != "" {
		attrs = append(attrs, "field", ioe.Field, "value", ioe.Value)
	}
	if values := SelectValues(batch); len(values) > 0 {
		attrs = append(attrs, "select_values", values)
	}
	log.Warn("batch rejected: unknown select option", attrs...)
}

// SelectValues collects the distinct, sorted values of each core.SelectFields
// field in batch. Fields absent from every record are left out.
func SelectValues(batch []store.Fields) map[string][]string {
	out := make(map[string][]string)
	for _, name := range core.SelectFields {
		seen := make(map[string]bool)
		var values []string
		for _, f := range batch {
			v := f.String(name)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			values = append(values, v)
		}
		if len(values) > 0 {
			sort.Strings(values)
			out[name] = values
		}
	}
	return out
}

func batchKeys(batch []pendingRow) []string {
	keys := make([]string, len(batch))
	for i, p := range batch {
		keys[i] = p.key
	}
	return keys
}

// Package maintenance holds the one-off repair and reporting jobs that run
// alongside the sync: ISO date backfills, code repair, required-field checks,
// the program-code migration and the member discrepancy analysis.
//
// Every job reads the full table, computes patches, and writes them with the
// same batch engine the reconciler uses. Running a job twice is a no-op the
// second time.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/JonMunkholm/publsync/internal/config"
	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/reconcile"
	"github.com/JonMunkholm/publsync/internal/source"
	"github.com/JonMunkholm/publsync/internal/store"
)

// Jobs runs maintenance tasks against a base.
type Jobs struct {
	base     store.Base
	settings config.Settings
	log      *slog.Logger
}

// New creates Jobs. A nil logger uses slog.Default.
func New(base store.Base, settings config.Settings, log *slog.Logger) *Jobs {
	if log == nil {
		log = slog.Default()
	}
	return &Jobs{base: base, settings: settings, log: log.With("component", "maintenance")}
}

func (j *Jobs) table(name string) store.Table { return j.base.Table(name) }

func (j *Jobs) batchSize() int { return store.ClampBatchSize(j.settings.BatchSize) }

// TableCount is a per-table count in a fixed report order.
type TableCount struct {
	Table string
	Count int
}

type isoPair struct {
	table, raw, iso string
}

func (j *Jobs) isoPairs() []isoPair {
	t := j.settings.Tables
	return []isoPair{
		{t.Members, core.FieldSignupDate, core.FieldSignupDateISO},
		{t.Orders, core.FieldPaymentDate, core.FieldPaymentDateISO},
		{t.Refunds, core.FieldRefundDate, core.FieldRefundDateISO},
	}
}

// BackfillISODates fills the ISO date field of every record that has a raw
// date but no ISO value. Raw values that are already ISO are copied as is.
func (j *Jobs) BackfillISODates(ctx context.Context) ([]TableCount, error) {
	var out []TableCount
	for _, p := range j.isoPairs() {
		tbl := j.table(p.table)
		records, err := tbl.FetchAll(ctx)
		if err != nil {
			return out, fmt.Errorf("fetch %s: %w", p.table, err)
		}

		var updates []store.Record
		for _, rec := range records {
			raw := rec.Fields.String(p.raw)
			if raw == "" || !rec.Fields.Empty(p.iso) {
				continue
			}
			iso := core.ToISO(raw, j.settings.TimezoneOffset)
			if iso == "" && core.LooksISO(raw) {
				iso = raw
			}
			if iso == "" {
				continue
			}
			updates = append(updates, store.Record{ID: rec.ID, Fields: store.Fields{p.iso: iso}})
		}

		j.log.Info("iso backfill", "table", p.table, "records", len(records), "targets", len(updates))
		res, err := reconcile.Update(ctx, j.log, tbl, p.table, updates, j.batchSize())
		out = append(out, TableCount{Table: p.table, Count: res.Updated})
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// BackfillIsActive marks every member whose Is Active is unset or false as
// active. Run it once after adding the field; afterwards withdrawal detection
// owns the flag.
func (j *Jobs) BackfillIsActive(ctx context.Context) (int, error) {
	tbl := j.table(j.settings.Tables.Members)
	records, err := tbl.FetchAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch members: %w", err)
	}

	var updates []store.Record
	for _, rec := range records {
		if !rec.Fields.IsTrue(core.FieldIsActive) {
			updates = append(updates, store.Record{ID: rec.ID, Fields: store.Fields{core.FieldIsActive: true}})
		}
	}

	j.log.Info("is active backfill", "members", len(records), "targets", len(updates))
	res, err := reconcile.Update(ctx, j.log, tbl, "members", updates, j.batchSize())
	return res.Updated, err
}

// linkedCodes maps record ids of a table to the value of field.
func (j *Jobs) linkedCodes(ctx context.Context, tableName, field string) (map[string]string, error) {
	records, err := j.table(tableName).FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", tableName, err)
	}
	byID := make(map[string]string, len(records))
	for _, rec := range records {
		if code := rec.Fields.String(field); code != "" {
			byID[rec.ID] = code
		}
	}
	return byID, nil
}

// RepairProgramCodes rebuilds the code of program records whose code has no
// "_" from their linked member and product.
func (j *Jobs) RepairProgramCodes(ctx context.Context) (int, error) {
	members, err := j.linkedCodes(ctx, j.settings.Tables.Members, core.FieldMemberCode)
	if err != nil {
		return 0, err
	}
	products, err := j.linkedCodes(ctx, j.settings.Tables.Products, core.FieldProductCode)
	if err != nil {
		return 0, err
	}

	tbl := j.table(j.settings.Tables.MemberPrograms)
	records, err := tbl.FetchAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch member programs: %w", err)
	}

	var updates []store.Record
	for _, rec := range records {
		if strings.Contains(rec.Fields.String(core.FieldProgramCode), "_") {
			continue
		}
		code, ok := programCode(rec, members, products)
		if !ok {
			continue
		}
		updates = append(updates, store.Record{ID: rec.ID, Fields: store.Fields{core.FieldProgramCode: code}})
	}

	j.log.Info("program code repair", "records", len(records), "targets", len(updates))
	res, err := reconcile.Update(ctx, j.log, tbl, "member_programs", updates, j.batchSize())
	return res.Updated, err
}

// programCode computes the code a program record should carry from its first
// Member and Product links.
func programCode(rec store.Record, members, products map[string]string) (string, bool) {
	ml, pl := rec.Fields.Links(core.LinkMember), rec.Fields.Links(core.LinkProduct)
	if len(ml) == 0 || len(pl) == 0 {
		return "", false
	}
	member, product := members[ml[0]], products[pl[0]]
	if member == "" || product == "" {
		return "", false
	}
	return core.MemberProgramCode(member, core.ExtractProgram(product)), true
}

// RequiredFieldsResult is the outcome of ValidateRequiredFields for one table.
type RequiredFieldsResult struct {
	Key     string // logical table key, e.g. "members"
	Table   string
	Total   int
	Missing map[string]int
	Fixed   map[string]int
}

// ValidateRequiredFields counts records whose required fields are empty and,
// with autoFix, writes the configured default into them.
func (j *Jobs) ValidateRequiredFields(ctx context.Context, autoFix bool) ([]RequiredFieldsResult, error) {
	keys := make([]string, 0, len(j.settings.RequiredFields))
	for k := range j.settings.RequiredFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []RequiredFieldsResult
	for _, key := range keys {
		fields := j.settings.RequiredFields[key]
		name, ok := j.settings.Tables.ByKey(key)
		if !ok || len(fields) == 0 {
			continue
		}

		tbl := j.table(name)
		records, err := tbl.FetchAll(ctx)
		if err != nil {
			return out, fmt.Errorf("fetch %s: %w", name, err)
		}

		res := RequiredFieldsResult{
			Key:     key,
			Table:   name,
			Total:   len(records),
			Missing: make(map[string]int),
			Fixed:   make(map[string]int),
		}

		fieldNames := make([]string, 0, len(fields))
		for f := range fields {
			fieldNames = append(fieldNames, f)
		}
		sort.Strings(fieldNames)

		for _, field := range fieldNames {
			req := fields[field]
			var updates []store.Record
			for _, rec := range records {
				if rec.Fields.Empty(field) {
					updates = append(updates, store.Record{ID: rec.ID, Fields: store.Fields{field: req.Default}})
				}
			}
			res.Missing[field] = len(updates)
			if len(updates) == 0 {
				continue
			}
			j.log.Warn("required field missing", "table", name, "field", field, "count", len(updates), "description", req.Description)

			if !autoFix {
				continue
			}
			up, err := reconcile.Update(ctx, j.log, tbl, key, updates, j.batchSize())
			res.Fixed[field] = up.Updated
			if err != nil {
				out = append(out, res)
				return out, err
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// CountActiveMembers counts remote members with Is Active checked.
func (j *Jobs) CountActiveMembers(ctx context.Context) (int, error) {
	records, err := j.table(j.settings.Tables.Members).FetchAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch members: %w", err)
	}
	return reconcile.CountActive(records), nil
}

// CountCSVMembers counts rows in the newest members export in dir.
func (j *Jobs) CountCSVMembers(dir string) (int, error) {
	snap, err := source.Load(dir, core.MustGet(core.SourceMembers), nil)
	if err != nil {
		return 0, err
	}
	return snap.Len(), nil
}

package maintenance

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/reconcile"
	"github.com/JonMunkholm/publsync/internal/store"
)

// MigrationResult is the outcome of MigrateProgramCodes.
type MigrationResult struct {
	DryRun     bool
	Total      int // program records read
	Unique     int // new codes held by exactly one record
	Duplicates int // new codes held by more than one record
	ToUpdate   int
	ToDelete   int
	Skipped    int // records without resolvable member and product links
	Updated    int
	Deleted    int
	Losers     []MergedRecord
}

// MergedRecord is a record that lost a merge to the group representative.
type MergedRecord struct {
	ID          string
	OldCode     string
	NewCode     string
	ProductCode string
}

type programRecord struct {
	id          string
	oldCode     string
	productCode string
	welcomeSent bool
}

// MigrateProgramCodes recomputes every program code under the program rule.
// Records that collapse onto the same code are merged: one representative per
// code keeps the record (chosen by the merge policy) and the rest are
// reported, or deleted when the delete policy is "delete". A dry run only
// counts.
func (j *Jobs) MigrateProgramCodes(ctx context.Context, dryRun bool) (MigrationResult, error) {
	res := MigrationResult{DryRun: dryRun}

	members, err := j.linkedCodes(ctx, j.settings.Tables.Members, core.FieldMemberCode)
	if err != nil {
		return res, err
	}
	products, err := j.linkedCodes(ctx, j.settings.Tables.Products, core.FieldProductCode)
	if err != nil {
		return res, err
	}

	tbl := j.table(j.settings.Tables.MemberPrograms)
	records, err := tbl.FetchAll(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch member programs: %w", err)
	}
	res.Total = len(records)

	groups := make(map[string][]programRecord)
	var order []string
	for _, rec := range records {
		code, ok := programCode(rec, members, products)
		if !ok {
			j.log.Warn("program record without resolvable links", "id", rec.ID)
			res.Skipped++
			continue
		}
		if _, seen := groups[code]; !seen {
			order = append(order, code)
		}
		groups[code] = append(groups[code], programRecord{
			id:          rec.ID,
			oldCode:     rec.Fields.String(core.FieldProgramCode),
			productCode: products[rec.Fields.Links(core.LinkProduct)[0]],
			welcomeSent: rec.Fields.IsTrue(core.FieldWelcomeSent),
		})
	}

	var updates []store.Record
	for _, code := range order {
		group := groups[code]
		if len(group) == 1 {
			res.Unique++
		} else {
			res.Duplicates++
		}

		rep := j.representative(group)
		if rep.oldCode != code {
			updates = append(updates, store.Record{ID: rep.id, Fields: store.Fields{core.FieldProgramCode: code}})
		}
		for _, r := range group {
			if r.id == rep.id {
				continue
			}
			res.Losers = append(res.Losers, MergedRecord{ID: r.id, OldCode: r.oldCode, NewCode: code, ProductCode: r.productCode})
		}
		if len(group) > 1 {
			j.log.Info("merge", "code", code, "keep", rep.id, "product", rep.productCode, "welcome_sent", rep.welcomeSent, "drop", len(group)-1)
		}
	}
	res.ToUpdate = len(updates)
	res.ToDelete = len(res.Losers)

	j.log.Info("migration plan",
		"total", res.Total,
		"unique", res.Unique,
		"duplicates", res.Duplicates,
		"to_update", res.ToUpdate,
		"to_delete", res.ToDelete,
		"skipped", res.Skipped,
		"dry_run", dryRun,
	)
	if dryRun {
		return res, nil
	}

	up, err := reconcile.Update(ctx, j.log, tbl, "member_programs", updates, j.batchSize())
	res.Updated = up.Updated
	if err != nil {
		return res, err
	}

	if len(res.Losers) == 0 {
		return res, nil
	}
	if j.settings.DeletePolicy != core.DeleteRemove {
		for _, l := range res.Losers {
			j.log.Warn("merged record left for manual deletion", "id", l.ID, "old_code", l.OldCode, "product", l.ProductCode)
		}
		return res, nil
	}

	deleter, ok := tbl.(store.Deleter)
	if !ok {
		return res, fmt.Errorf("table %s does not support deletion", tbl.Name())
	}
	ids := make([]string, len(res.Losers))
	for i, l := range res.Losers {
		ids[i] = l.ID
	}
	for _, batch := range store.Chunk(ids, j.batchSize()) {
		if err := deleter.BatchDelete(ctx, batch); err != nil {
			return res, fmt.Errorf("delete merged records: %w", err)
		}
		res.Deleted += len(batch)
	}
	j.log.Info("merged records deleted", "count", res.Deleted)
	return res, nil
}

// representative picks the record that survives a merge.
func (j *Jobs) representative(group []programRecord) programRecord {
	if j.settings.MergePolicy == core.MergeFirstWins {
		return group[0]
	}
	for _, r := range group {
		if r.welcomeSent {
			return r
		}
	}
	return group[0]
}

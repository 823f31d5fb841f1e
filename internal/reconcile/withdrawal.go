package reconcile

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
)

// WithdrawalResult is the outcome of DetectWithdrawals.
type WithdrawalResult struct {
	ActiveCount        int  // remote members with Is Active checked
	CSVCount           int  // rows in the members snapshot
	Skipped            bool // counts matched; no scan ran
	Checked            int  // remote codes absent from the snapshot
	Withdrawn          int  // Checked minus test records
	Deactivated        int
	AlreadyInactive    int
	TestRecordsSkipped int
}

// DetectWithdrawals deactivates members that disappeared from the snapshot.
// The scan only runs when the remote active count differs from the snapshot
// row count. Test records are never deactivated.
func (r *Reconciler) DetectWithdrawals(ctx context.Context, rows []core.Row) (WithdrawalResult, error) {
	tbl := r.members()

	remote, err := tbl.FetchAll(ctx)
	if err != nil {
		return WithdrawalResult{}, fmt.Errorf("fetch members: %w", err)
	}

	res := WithdrawalResult{ActiveCount: CountActive(remote), CSVCount: len(rows)}
	if res.ActiveCount == res.CSVCount {
		res.Skipped = true
		r.log.Info("withdrawal check skipped: counts match", "active", res.ActiveCount, "csv", res.CSVCount)
		return res, nil
	}
	r.log.Info("withdrawal check", "active", res.ActiveCount, "csv", res.CSVCount)

	inCSV := make(map[string]bool, len(rows))
	for _, row := range rows {
		if code := row.Get(core.FieldMemberCode); code != "" {
			inCSV[code] = true
		}
	}

	// First record per code, as in the key index.
	byCode := make(map[string]store.Record)
	var order []string
	for _, rec := range remote {
		code := rec.Fields.String(core.FieldMemberCode)
		if code == "" {
			continue
		}
		if _, ok := byCode[code]; ok {
			continue
		}
		byCode[code] = rec
		order = append(order, code)
	}

	var updates []store.Record
	for _, code := range order {
		if inCSV[code] {
			continue
		}
		res.Checked++
		rec := byCode[code]
		if r.opts.TestRecords.IsTestRecord(code, rec.Fields.String(core.FieldName), rec.Fields.String(core.FieldEmail)) {
			res.TestRecordsSkipped++
			continue
		}
		res.Withdrawn++
		if !rec.Fields.IsTrue(core.FieldIsActive) {
			res.AlreadyInactive++
			continue
		}
		updates = append(updates, store.Record{ID: rec.ID, Fields: store.Fields{core.FieldIsActive: false}})
	}

	up, err := Update(ctx, r.log, tbl, "members", updates, r.opts.BatchSize)
	res.Deactivated = up.Updated
	if err != nil {
		return res, err
	}

	r.log.Info("withdrawals processed",
		"checked", res.Checked,
		"withdrawn", res.Withdrawn,
		"deactivated", res.Deactivated,
		"already_inactive", res.AlreadyInactive,
		"test_records_skipped", res.TestRecordsSkipped,
	)
	return res, nil
}

// CountActive counts records with Is Active checked.
func CountActive(records []store.Record) int {
	n := 0
	for _, rec := range records {
		if rec.Fields.IsTrue(core.FieldIsActive) {
			n++
		}
	}
	return n
}

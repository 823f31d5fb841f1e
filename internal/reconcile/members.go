package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
)

// DuplicateReport lists duplicate member codes. It is informational only;
// nothing is merged or deleted.
type DuplicateReport struct {
	Remote map[string][]string // code -> record ids, for codes with more than one record
	CSV    map[string]int      // code -> occurrences, for codes repeated in the snapshot
	Near   []NearDuplicate
}

// Empty reports whether no duplicates were found.
func (d DuplicateReport) Empty() bool {
	return len(d.Remote) == 0 && len(d.CSV) == 0 && len(d.Near) == 0
}

// NearDuplicate is a new member whose name and email closely match an
// existing member with a different code.
type NearDuplicate struct {
	NewCode      string
	ExistingCode string
	Similarity   float64
}

// MemberResult is the outcome of SyncMembers.
type MemberResult struct {
	InsertResult
	Duplicates    DuplicateReport
	Before        int // distinct remote codes before the insert
	After         int // distinct remote codes after the insert
	CountMismatch bool
}

// SyncMembers inserts members that are not yet in the store. New members are
// active. The remote count is re-read afterwards and a mismatch with
// before+inserted is logged.
func (r *Reconciler) SyncMembers(ctx context.Context, rows []core.Row) (MemberResult, error) {
	tbl := r.members()

	remote, err := tbl.FetchAll(ctx)
	if err != nil {
		return MemberResult{}, fmt.Errorf("fetch members: %w", err)
	}

	members := make([]core.Member, len(rows))
	for i, row := range rows {
		members[i] = core.MemberFromRow(row, r.opts.TZOffset)
	}

	existing := IndexRecords(remote, core.FieldMemberCode)
	res := MemberResult{
		Before:     len(existing),
		Duplicates: r.memberDuplicates(remote, members, existing),
	}
	if !res.Duplicates.Empty() {
		r.log.Warn("member duplicates found",
			"remote", len(res.Duplicates.Remote),
			"csv", len(res.Duplicates.CSV),
			"near", len(res.Duplicates.Near),
		)
	}

	plan := Plan[core.Member]{
		Entity:    "members",
		Table:     tbl,
		KeyField:  core.FieldMemberCode,
		Key:       func(m core.Member) string { return m.Code },
		Fields:    func(m core.Member) store.Fields { return store.Fields(m.Fields()) },
		BatchSize: r.opts.BatchSize,
	}
	ins, err := Insert(ctx, r.log, plan, existing, members)
	res.InsertResult = ins
	if err != nil {
		return res, err
	}

	after, err := ExistingKeys(ctx, tbl, core.FieldMemberCode)
	if err != nil {
		return res, fmt.Errorf("recount members: %w", err)
	}
	res.After = len(after)
	if res.After != res.Before+res.Inserted {
		res.CountMismatch = true
		r.log.Warn("member count mismatch",
			"before", res.Before,
			"inserted", res.Inserted,
			"after", res.After,
		)
	}

	return res, nil
}

func (r *Reconciler) memberDuplicates(remote []store.Record, members []core.Member, existing map[string]string) DuplicateReport {
	rep := DuplicateReport{
		Remote: make(map[string][]string),
		CSV:    make(map[string]int),
	}

	ids := make(map[string][]string)
	for _, rec := range remote {
		code := rec.Fields.String(core.FieldMemberCode)
		if code != "" {
			ids[code] = append(ids[code], rec.ID)
		}
	}
	for code, list := range ids {
		if len(list) > 1 {
			rep.Remote[code] = list
		}
	}

	counts := make(map[string]int)
	for _, m := range members {
		if m.Code != "" {
			counts[m.Code]++
		}
	}
	for code, n := range counts {
		if n > 1 {
			rep.CSV[code] = n
		}
	}

	if r.opts.NearDuplicateThreshold > 0 {
		rep.Near = nearDuplicates(remote, members, existing, r.opts.NearDuplicateThreshold)
	}
	return rep
}

// nearDuplicates compares each new member against every remote member on
// lowercased "name|email".
func nearDuplicates(remote []store.Record, members []core.Member, existing map[string]string, threshold float64) []NearDuplicate {
	type identity struct{ code, key string }

	var known []identity
	for _, rec := range remote {
		code := rec.Fields.String(core.FieldMemberCode)
		if existing[code] != rec.ID {
			continue // empty code or a duplicate record of the same code
		}
		key := identityKey(rec.Fields.String(core.FieldName), rec.Fields.String(core.FieldEmail))
		if key != "" {
			known = append(known, identity{code: code, key: key})
		}
	}

	var out []NearDuplicate
	seen := make(map[string]bool)
	for _, m := range members {
		if m.Code == "" || seen[m.Code] {
			continue
		}
		seen[m.Code] = true
		if _, ok := existing[m.Code]; ok {
			continue
		}
		key := identityKey(m.Name, m.Email)
		if key == "" {
			continue
		}
		for _, k := range known {
			if k.code == m.Code {
				continue
			}
			if sim := matchr.JaroWinkler(key, k.key, false); sim >= threshold {
				out = append(out, NearDuplicate{NewCode: m.Code, ExistingCode: k.code, Similarity: sim})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].NewCode != out[j].NewCode {
			return out[i].NewCode < out[j].NewCode
		}
		return out[i].ExistingCode < out[j].ExistingCode
	})
	return out
}

func identityKey(name, email string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" && email == "" {
		return ""
	}
	return name + "|" + email
}

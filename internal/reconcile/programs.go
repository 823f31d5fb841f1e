package reconcile

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
)

// ProgramResult is the outcome of SyncMemberPrograms.
type ProgramResult struct {
	InsertResult
	Pairs      int // distinct (member, program) pairs in the remote orders
	Unresolved int // pairs skipped for a missing member or product record
}

// SyncMemberPrograms creates one record per (member, program) pair found in
// the remote orders. The linked product is the first remote product whose
// program code matches. Existing records are never updated.
func (r *Reconciler) SyncMemberPrograms(ctx context.Context) (ProgramResult, error) {
	memberIDs, err := ExistingKeys(ctx, r.members(), core.FieldMemberCode)
	if err != nil {
		return ProgramResult{}, fmt.Errorf("fetch members: %w", err)
	}

	products, err := r.products().FetchAll(ctx)
	if err != nil {
		return ProgramResult{}, fmt.Errorf("fetch products: %w", err)
	}
	productByProgram := make(map[string]string)
	for _, rec := range products {
		code := rec.Fields.String(core.FieldProductCode)
		if code == "" {
			continue
		}
		program := core.ExtractProgram(code)
		if _, ok := productByProgram[program]; !ok {
			productByProgram[program] = rec.ID
		}
	}

	existing, err := ExistingKeys(ctx, r.programs(), core.FieldProgramCode)
	if err != nil {
		return ProgramResult{}, fmt.Errorf("fetch member programs: %w", err)
	}

	orders, err := r.orders().FetchAll(ctx)
	if err != nil {
		return ProgramResult{}, fmt.Errorf("fetch orders: %w", err)
	}

	res := ProgramResult{}
	seen := make(map[string]bool)
	var candidates []core.MemberProgram
	for _, rec := range orders {
		member := rec.Fields.String(core.FieldMemberCode)
		product := rec.Fields.String(core.FieldProductName)
		if member == "" || product == "" {
			continue
		}
		program := core.ExtractProgram(product)
		code := core.MemberProgramCode(member, program)
		if seen[code] {
			continue
		}
		seen[code] = true
		res.Pairs++

		if _, ok := existing[code]; ok {
			continue
		}
		memberID, productID := memberIDs[member], productByProgram[program]
		if memberID == "" || productID == "" {
			res.Unresolved++
			continue
		}
		candidates = append(candidates, core.MemberProgram{
			Code:       code,
			MemberCode: member,
			Program:    program,
			MemberID:   memberID,
			ProductID:  productID,
		})
	}

	if res.Unresolved > 0 {
		r.log.Warn("program pairs without member or product record", "count", res.Unresolved)
	}

	plan := Plan[core.MemberProgram]{
		Entity:    "member_programs",
		Table:     r.programs(),
		KeyField:  core.FieldProgramCode,
		Key:       func(mp core.MemberProgram) string { return mp.Code },
		Fields:    func(mp core.MemberProgram) store.Fields { return store.Fields(mp.Fields()) },
		BatchSize: r.opts.BatchSize,
	}
	ins, err := Insert(ctx, r.log, plan, existing, candidates)
	res.InsertResult = ins
	res.Candidates = res.Pairs
	res.Skipped = res.Pairs - len(candidates)
	return res, err
}

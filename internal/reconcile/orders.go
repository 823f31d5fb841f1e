package reconcile

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
)

// SyncOrders inserts new orders with their Member link. Orders whose member
// is unknown are inserted unlinked.
func (r *Reconciler) SyncOrders(ctx context.Context, rows []core.Row) (InsertResult, error) {
	memberIDs, err := ExistingKeys(ctx, r.members(), core.FieldMemberCode)
	if err != nil {
		return InsertResult{}, fmt.Errorf("fetch members: %w", err)
	}
	existing, err := ExistingKeys(ctx, r.orders(), core.FieldOrderNumber)
	if err != nil {
		return InsertResult{}, fmt.Errorf("fetch orders: %w", err)
	}

	orders := DecodeOrders(rows, r.opts.TZOffset)
	plan := Plan[core.Order]{
		Entity:   "orders",
		Table:    r.orders(),
		KeyField: core.FieldOrderNumber,
		Key:      func(o core.Order) string { return o.Number },
		Fields:   func(o core.Order) store.Fields { return store.Fields(o.Fields()) },
		Links: []Link[core.Order]{
			{Field: core.LinkMember, Key: func(o core.Order) string { return o.MemberCode }, Index: memberIDs},
		},
		BatchSize: r.opts.BatchSize,
	}
	return Insert(ctx, r.log, plan, existing, orders)
}

// DecodeOrders decodes every row of an orders snapshot.
func DecodeOrders(rows []core.Row, offset string) []core.Order {
	orders := make([]core.Order, len(rows))
	for i, row := range rows {
		orders[i] = core.OrderFromRow(row, offset)
	}
	return orders
}

// BackfillOrderProgramLinks links remote orders that have no MemberPrograms
// link to the program record of their member and product.
func (r *Reconciler) BackfillOrderProgramLinks(ctx context.Context) (LinkResult, error) {
	programIDs, err := ExistingKeys(ctx, r.programs(), core.FieldProgramCode)
	if err != nil {
		return LinkResult{}, fmt.Errorf("fetch member programs: %w", err)
	}
	orders, err := r.orders().FetchAll(ctx)
	if err != nil {
		return LinkResult{}, fmt.Errorf("fetch orders: %w", err)
	}

	res := LinkResult{}
	var updates []store.Record
	for _, rec := range orders {
		if len(rec.Fields.Links(core.LinkMemberPrograms)) > 0 {
			continue
		}
		member := rec.Fields.String(core.FieldMemberCode)
		product := rec.Fields.String(core.FieldProductName)
		if member == "" || product == "" {
			continue
		}
		code := core.MemberProgramCode(member, core.ExtractProgram(product))
		id, ok := programIDs[code]
		if !ok {
			res.Missing++
			if len(res.MissingExamples) < maxExamples {
				res.MissingExamples = append(res.MissingExamples, code)
			}
			continue
		}
		updates = append(updates, store.Record{ID: rec.ID, Fields: store.Fields{core.LinkMemberPrograms: []string{id}}})
	}

	if res.Missing > 0 {
		r.log.Warn("orders without a program record", "count", res.Missing, "examples", res.MissingExamples)
	}

	up, err := Update(ctx, r.log, r.orders(), "orders", updates, r.opts.BatchSize)
	res.UpdateResult = up
	return res, err
}

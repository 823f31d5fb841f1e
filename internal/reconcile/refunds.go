package reconcile

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
)

// RefundResult is the outcome of SyncRefunds.
type RefundResult struct {
	Insert InsertResult
	Status UpdateResult
}

// SyncRefunds inserts new refunds linked to their order, then updates the
// status of non-terminal remote refunds whose status changed in the snapshot.
func (r *Reconciler) SyncRefunds(ctx context.Context, rows []core.Row) (RefundResult, error) {
	orderIDs, err := ExistingKeys(ctx, r.orders(), core.FieldOrderNumber)
	if err != nil {
		return RefundResult{}, fmt.Errorf("fetch orders: %w", err)
	}
	remote, err := r.refunds().FetchAll(ctx)
	if err != nil {
		return RefundResult{}, fmt.Errorf("fetch refunds: %w", err)
	}

	refunds := make([]core.Refund, len(rows))
	for i, row := range rows {
		refunds[i] = core.RefundFromRow(row, r.opts.TZOffset)
	}

	plan := Plan[core.Refund]{
		Entity:   "refunds",
		Table:    r.refunds(),
		KeyField: core.FieldOrderNumber,
		Key:      func(rf core.Refund) string { return rf.OrderNumber },
		Fields:   func(rf core.Refund) store.Fields { return store.Fields(rf.Fields()) },
		Links: []Link[core.Refund]{
			{Field: core.LinkOrders, Key: func(rf core.Refund) string { return rf.OrderNumber }, Index: orderIDs},
		},
		BatchSize: r.opts.BatchSize,
	}

	var res RefundResult
	res.Insert, err = Insert(ctx, r.log, plan, IndexRecords(remote, core.FieldOrderNumber), refunds)
	if err != nil {
		return res, err
	}

	res.Status, err = Update(ctx, r.log, r.refunds(), "refunds", StatusChanges(remote, refunds), r.opts.BatchSize)
	return res, err
}

// StatusChanges returns the status patches for remote refunds that are not
// terminal and whose snapshot status is set and different. When an order
// number repeats in the snapshot, its last row wins.
func StatusChanges(remote []store.Record, refunds []core.Refund) []store.Record {
	latest := make(map[string]string, len(refunds))
	for _, rf := range refunds {
		if rf.OrderNumber != "" {
			latest[rf.OrderNumber] = rf.Status
		}
	}

	var updates []store.Record
	for _, rec := range remote {
		current := rec.Fields.String(core.FieldRefundStatus)
		if core.TerminalRefundStatuses[current] {
			continue
		}
		next, ok := latest[rec.Fields.String(core.FieldOrderNumber)]
		if !ok || next == "" || next == current {
			continue
		}
		updates = append(updates, store.Record{ID: rec.ID, Fields: store.Fields{core.FieldRefundStatus: next}})
	}
	return updates
}

// BackfillRefundOrderLinks links remote refunds that have no Orders link to
// the order with the same number.
func (r *Reconciler) BackfillRefundOrderLinks(ctx context.Context) (LinkResult, error) {
	orderIDs, err := ExistingKeys(ctx, r.orders(), core.FieldOrderNumber)
	if err != nil {
		return LinkResult{}, fmt.Errorf("fetch orders: %w", err)
	}
	refunds, err := r.refunds().FetchAll(ctx)
	if err != nil {
		return LinkResult{}, fmt.Errorf("fetch refunds: %w", err)
	}

	res := LinkResult{}
	var updates []store.Record
	for _, rec := range refunds {
		if len(rec.Fields.Links(core.LinkOrders)) > 0 {
			continue
		}
		number := rec.Fields.String(core.FieldOrderNumber)
		if number == "" {
			continue
		}
		id, ok := orderIDs[number]
		if !ok {
			res.Missing++
			if len(res.MissingExamples) < maxExamples {
				res.MissingExamples = append(res.MissingExamples, number)
			}
			continue
		}
		updates = append(updates, store.Record{ID: rec.ID, Fields: store.Fields{core.LinkOrders: []string{id}}})
	}

	if res.Missing > 0 {
		r.log.Warn("refunds whose order is not in the store", "count", res.Missing, "examples", res.MissingExamples)
	}

	up, err := Update(ctx, r.log, r.refunds(), "refunds", updates, r.opts.BatchSize)
	res.UpdateResult = up
	return res, err
}

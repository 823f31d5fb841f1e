package reconcile

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
)

// SyncProducts inserts products seen in the orders snapshot that the store
// does not have. Existing products are never updated, so hand-curated display
// names and subscription days survive.
func (r *Reconciler) SyncProducts(ctx context.Context, orderRows []core.Row) (InsertResult, error) {
	existing, err := ExistingKeys(ctx, r.products(), core.FieldProductCode)
	if err != nil {
		return InsertResult{}, fmt.Errorf("fetch products: %w", err)
	}

	products := core.ProductsFromOrders(DecodeOrders(orderRows, r.opts.TZOffset))
	plan := Plan[core.Product]{
		Entity:    "products",
		Table:     r.products(),
		KeyField:  core.FieldProductCode,
		Key:       func(p core.Product) string { return p.Code },
		Fields:    func(p core.Product) store.Fields { return store.Fields(p.Fields()) },
		BatchSize: r.opts.BatchSize,
	}
	return Insert(ctx, r.log, plan, existing, products)
}

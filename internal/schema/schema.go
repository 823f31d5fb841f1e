// Package schema defines the tables the sync engine creates on demand and
// ensures they exist in the remote base.
//
// Members, Orders and Refunds are created by hand when the base is set up and
// are never created here. Products, MemberPrograms and SyncHistory are derived
// tables: they are created the first time a run finds them missing.
package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
)

// Subscription statuses of a member program. Written by the subscription
// tracker, not by this module.
var SubscriptionStatuses = []string{"Active", "Expired", "N/A"}

// History statuses.
const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
)

// History field names.
const (
	HistoryDateTime       = "Sync DateTime"
	HistoryDuration       = "Duration (sec)"
	HistoryStatus         = "Status"
	HistoryMembersNew     = "Members New"
	HistoryOrdersNew      = "Orders New"
	HistoryRefundsNew     = "Refunds New"
	HistoryRefundsUpdated = "Refunds Updated"
	HistoryDownloaded     = "Downloaded Files"
)

// Products returns the schema of the products table.
func Products(name string) store.TableSchema {
	return store.TableSchema{
		Name: name,
		Fields: []store.FieldSchema{
			store.TextField(core.FieldProductCode),
			store.TextField(core.FieldDisplayName),
			store.CheckboxField(core.FieldIsSubscription),
			store.NumberField(core.FieldSubscriptionDays),
		},
	}
}

// MemberPrograms returns the schema of the member programs table. A link
// field is included only when the id of its target table is known.
func MemberPrograms(name, membersID, productsID string) store.TableSchema {
	fields := []store.FieldSchema{store.TextField(core.FieldProgramCode)}
	if membersID != "" {
		fields = append(fields, store.LinkField(core.LinkMember, membersID))
	}
	if productsID != "" {
		fields = append(fields, store.LinkField(core.LinkProduct, productsID))
	}
	fields = append(fields,
		store.SelectField(core.FieldSubscriptionStatus, SubscriptionStatuses...),
		store.DateField(core.FieldLastPaymentDate),
		store.DateField(core.FieldExpiryDate),
		store.CheckboxField(core.FieldWelcomeSent),
	)
	return store.TableSchema{Name: name, Fields: fields}
}

// SyncHistory returns the schema of the run history table.
func SyncHistory(name, offset string) store.TableSchema {
	return store.TableSchema{
		Name: name,
		Fields: []store.FieldSchema{
			store.DateTimeField(HistoryDateTime, timeZone(offset)),
			store.DecimalField(HistoryDuration, 1),
			store.SelectField(HistoryStatus, StatusSuccess, StatusFailed),
			store.NumberField(HistoryMembersNew),
			store.NumberField(HistoryOrdersNew),
			store.NumberField(HistoryRefundsNew),
			store.NumberField(HistoryRefundsUpdated),
			store.TextField(HistoryDownloaded),
		},
	}
}

// timeZone maps the export offset to the zone the history table displays.
// Offsets without a well-known zone fall back to UTC.
func timeZone(offset string) string {
	if offset == core.DefaultOffset {
		return "Asia/Seoul"
	}
	return "utc"
}

// Ensure creates the derived tables that are missing from the base and
// returns the names it created. MemberPrograms is created after Products so
// its Product link can point at the new table.
func Ensure(ctx context.Context, base store.Base, names core.TableNames, offset string, log *slog.Logger) ([]string, error) {
	tables, err := base.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	var created []string
	create := func(ts store.TableSchema) (store.TableSchema, error) {
		out, err := base.CreateTable(ctx, ts)
		if err != nil {
			return store.TableSchema{}, fmt.Errorf("create table %s: %w", ts.Name, err)
		}
		log.Info("table created", "table", out.Name, "id", out.ID, "fields", len(out.Fields))
		created = append(created, out.Name)
		tables = append(tables, out)
		return out, nil
	}

	if _, ok := store.FindTable(tables, names.Products); !ok {
		if _, err := create(Products(names.Products)); err != nil {
			return created, err
		}
	}

	if _, ok := store.FindTable(tables, names.MemberPrograms); !ok {
		var membersID, productsID string
		if t, ok := store.FindTable(tables, names.Members); ok {
			membersID = t.ID
		} else {
			log.Warn("members table not found; program table created without member link", "table", names.Members)
		}
		if t, ok := store.FindTable(tables, names.Products); ok {
			productsID = t.ID
		}
		if _, err := create(MemberPrograms(names.MemberPrograms, membersID, productsID)); err != nil {
			return created, err
		}
	}

	if names.SyncHistory != "" {
		if _, ok := store.FindTable(tables, names.SyncHistory); !ok {
			if _, err := create(SyncHistory(names.SyncHistory, offset)); err != nil {
				return created, err
			}
		}
	}

	return created, nil
}

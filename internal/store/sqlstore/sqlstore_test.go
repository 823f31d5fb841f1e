package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/publsync/internal/store"
)

func openTest(t *testing.T) *Base {
	t.Helper()
	b, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "publsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestCreateFetchUpdate(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)
	tbl := b.Table("Members")

	created, err := tbl.BatchCreate(ctx, []store.Fields{
		{"Member Code": "SUB1", "Is Active": true, "Name": "Kim"},
		{"Member Code": "SUB2", "Is Active": true},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.NotEmpty(t, created[0].ID)

	_, err = tbl.BatchUpdate(ctx, []store.Record{{ID: created[0].ID, Fields: store.Fields{"Is Active": false}}})
	require.NoError(t, err)

	all, err := tbl.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "SUB1", all[0].Fields.String("Member Code"))
	require.False(t, all[0].Fields.IsTrue("Is Active"))
	require.Equal(t, "Kim", all[0].Fields.String("Name"))
	require.True(t, all[1].Fields.IsTrue("Is Active"))
}

func TestBatchUpdate_UnknownID(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)
	_, err := b.Table("Members").BatchUpdate(ctx, []store.Record{{ID: "recMISSING", Fields: store.Fields{"x": 1}}})
	require.Error(t, err)
}

func TestBatchLimits(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)
	_, err := b.Table("Members").BatchCreate(ctx, make([]store.Fields, 11))
	require.ErrorIs(t, err, store.ErrBatchTooLarge)
}

func TestCreateTable_ValidatesOptions(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	schema, err := b.CreateTable(ctx, store.TableSchema{
		Name: "Refunds",
		Fields: []store.FieldSchema{
			store.TextField("Order Number"),
			store.SelectField("Refund Status", "Requested", "Refunded"),
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, schema.ID)

	_, err = b.Table("Refunds").BatchCreate(ctx, []store.Fields{{"Order Number": "O1", "Refund Status": "Requested"}})
	require.NoError(t, err)

	_, err = b.Table("Refunds").BatchCreate(ctx, []store.Fields{{"Order Number": "O2", "Refund Status": "Lost"}})
	require.True(t, errors.Is(err, store.ErrInvalidOption))

	all, err := b.Table("Refunds").FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = b.CreateTable(ctx, store.TableSchema{Name: "Refunds"})
	require.Error(t, err)
}

func TestTables_IncludesLazyTables(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	_, err := b.CreateTable(ctx, store.TableSchema{Name: "Products", Fields: []store.FieldSchema{store.TextField("Product Code")}})
	require.NoError(t, err)
	_, err = b.Table("Members").FetchAll(ctx)
	require.NoError(t, err)

	tables, err := b.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	require.Equal(t, "Products", tables[0].Name)
	require.Equal(t, "Members", tables[1].Name)
}

func TestBatchDelete(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)
	tbl := b.Table("MemberPrograms")

	created, err := tbl.BatchCreate(ctx, []store.Fields{{"k": "a"}, {"k": "b"}, {"k": "c"}})
	require.NoError(t, err)

	require.NoError(t, tbl.(store.Deleter).BatchDelete(ctx, []string{created[0].ID, created[2].ID}))

	all, err := tbl.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "b", all[0].Fields.String("k"))
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "publsync.db")

	b, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	_, err = b.Table("Orders").BatchCreate(ctx, []store.Fields{{"Order Number": "O1", "Member": []string{"recM"}}})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer b.Close()

	all, err := b.Table("Orders").FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, []string{"recM"}, all[0].Fields.Links("Member"))
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Members", `"Members"`},
		{"Sync History", `"Sync History"`},
		{`we"ird`, `"we""ird"`},
	}
	for _, tt := range tests {
		if got := quoteIdentifier(tt.input); got != tt.want {
			t.Errorf("quoteIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

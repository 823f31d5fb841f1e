package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/publsync/internal/store"
)

func TestBatchCreateAndFetch(t *testing.T) {
	ctx := context.Background()
	b := New()
	tbl := b.Table("Members")

	created, err := tbl.BatchCreate(ctx, []store.Fields{{"Member Code": "SUB1"}, {"Member Code": "SUB2"}})
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.NotEmpty(t, created[0].ID)
	require.NotEqual(t, created[0].ID, created[1].ID)

	all, err := tbl.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, []int{2}, b.CreateCalls("Members"))
}

func TestBatchCreate_TooLarge(t *testing.T) {
	b := New()
	_, err := b.Table("T").BatchCreate(context.Background(), make([]store.Fields, 11))
	require.ErrorIs(t, err, store.ErrBatchTooLarge)
}

func TestBatchUpdate_PatchMerges(t *testing.T) {
	ctx := context.Background()
	b := New()
	recs := b.Seed("Members", store.Fields{"Member Code": "SUB1", "Is Active": true, "Name": "Kim"})

	_, err := b.Table("Members").BatchUpdate(ctx, []store.Record{{ID: recs[0].ID, Fields: store.Fields{"Is Active": false}}})
	require.NoError(t, err)

	got := b.Records("Members")[0].Fields
	require.Equal(t, false, got["Is Active"])
	require.Equal(t, "Kim", got["Name"])
	require.Equal(t, []int{1}, b.UpdateCalls("Members"))
}

func TestTypedTable_RejectsUnknownOption(t *testing.T) {
	ctx := context.Background()
	b := New()
	_, err := b.CreateTable(ctx, store.TableSchema{
		Name: "Refunds",
		Fields: []store.FieldSchema{
			store.TextField("Order Number"),
			store.SelectField("Refund Status", "Requested", "Refunded"),
		},
	})
	require.NoError(t, err)

	_, err = b.Table("Refunds").BatchCreate(ctx, []store.Fields{
		{"Order Number": "O1", "Refund Status": "Requested"},
		{"Order Number": "O2", "Refund Status": "Unknown"},
	})
	require.True(t, errors.Is(err, store.ErrInvalidOption))
	require.Empty(t, b.Records("Refunds"), "rejected batch must not be partially applied")
}

func TestCreateTable_AssignsIDs(t *testing.T) {
	ctx := context.Background()
	b := New()
	s, err := b.CreateTable(ctx, store.TableSchema{Name: "Products", Fields: []store.FieldSchema{store.TextField("Product Code")}})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.NotEmpty(t, s.Fields[0].ID)

	_, err = b.CreateTable(ctx, store.TableSchema{Name: "Products"})
	require.Error(t, err)

	tables, err := b.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	b := New()
	boom := errors.New("boom")
	b.FailOn("Orders", boom)

	_, err := b.Table("Orders").FetchAll(ctx)
	require.ErrorIs(t, err, boom)

	b.FailOn("Orders", nil)
	_, err = b.Table("Orders").FetchAll(ctx)
	require.NoError(t, err)
}

func TestBatchDelete(t *testing.T) {
	ctx := context.Background()
	b := New()
	recs := b.Seed("T", store.Fields{"k": "a"}, store.Fields{"k": "b"})

	tbl := b.Table("T").(store.Deleter)
	require.NoError(t, tbl.BatchDelete(ctx, []string{recs[0].ID}))

	left := b.Records("T")
	require.Len(t, left, 1)
	require.Equal(t, "b", left[0].Fields["k"])
}

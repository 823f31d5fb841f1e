package schema

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
	"github.com/JonMunkholm/publsync/internal/store/memstore"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestEnsure_CreatesMissingTables(t *testing.T) {
	ctx := context.Background()
	base := memstore.New()
	members, err := base.CreateTable(ctx, store.TableSchema{
		Name:   "Members",
		Fields: []store.FieldSchema{store.TextField(core.FieldMemberCode)},
	})
	require.NoError(t, err)

	created, err := Ensure(ctx, base, core.DefaultTableNames(), core.DefaultOffset, discard)
	require.NoError(t, err)
	require.Equal(t, []string{"Products", "MemberPrograms", "SyncHistory"}, created)

	tables, err := base.Tables(ctx)
	require.NoError(t, err)
	products, ok := store.FindTable(tables, "Products")
	require.True(t, ok)
	programs, ok := store.FindTable(tables, "MemberPrograms")
	require.True(t, ok)

	require.Equal(t, core.FieldProgramCode, programs.Fields[0].Name, "code is the primary field")

	member, ok := programs.Field(core.LinkMember)
	require.True(t, ok)
	require.Equal(t, members.ID, member.Options["linkedTableId"])

	product, ok := programs.Field(core.LinkProduct)
	require.True(t, ok)
	require.Equal(t, products.ID, product.Options["linkedTableId"])

	status, ok := programs.Field(core.FieldSubscriptionStatus)
	require.True(t, ok)
	require.Equal(t, SubscriptionStatuses, status.Choices())
}

func TestEnsure_Idempotent(t *testing.T) {
	ctx := context.Background()
	base := memstore.New()

	_, err := Ensure(ctx, base, core.DefaultTableNames(), core.DefaultOffset, discard)
	require.NoError(t, err)

	created, err := Ensure(ctx, base, core.DefaultTableNames(), core.DefaultOffset, discard)
	require.NoError(t, err)
	require.Empty(t, created)
}

func TestEnsure_UnknownMembersOmitsLink(t *testing.T) {
	ctx := context.Background()
	base := memstore.New()

	_, err := Ensure(ctx, base, core.DefaultTableNames(), core.DefaultOffset, discard)
	require.NoError(t, err)

	tables, err := base.Tables(ctx)
	require.NoError(t, err)
	programs, _ := store.FindTable(tables, "MemberPrograms")

	_, hasMember := programs.Field(core.LinkMember)
	require.False(t, hasMember)
	_, hasProduct := programs.Field(core.LinkProduct)
	require.True(t, hasProduct)
}

func TestEnsure_NoHistoryTableConfigured(t *testing.T) {
	names := core.DefaultTableNames()
	names.SyncHistory = ""

	created, err := Ensure(context.Background(), memstore.New(), names, core.DefaultOffset, discard)
	require.NoError(t, err)
	require.Equal(t, []string{"Products", "MemberPrograms"}, created)
}

type failingBase struct {
	store.Base
}

func (failingBase) Tables(context.Context) ([]store.TableSchema, error) {
	return nil, errors.New("connection refused")
}

func TestEnsure_ListError(t *testing.T) {
	_, err := Ensure(context.Background(), failingBase{Base: memstore.New()}, core.DefaultTableNames(), core.DefaultOffset, discard)
	require.ErrorContains(t, err, "list tables")
}

func TestSyncHistory_Fields(t *testing.T) {
	ts := SyncHistory("SyncHistory", "+00:00")

	tests := []struct {
		field string
		typ   string
	}{
		{HistoryDateTime, store.TypeDateTime},
		{HistoryDuration, store.TypeNumber},
		{HistoryStatus, store.TypeSingleSelect},
		{HistoryMembersNew, store.TypeNumber},
		{HistoryDownloaded, store.TypeSingleLineText},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f, ok := ts.Field(tt.field)
			require.True(t, ok)
			require.Equal(t, tt.typ, f.Type)
		})
	}
	require.Len(t, ts.Fields, 8)
}

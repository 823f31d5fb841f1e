package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/publsync/internal/config"
	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/logging"
	_ "github.com/JonMunkholm/publsync/internal/core/tables"
	"github.com/JonMunkholm/publsync/internal/schema"
	"github.com/JonMunkholm/publsync/internal/source"
	"github.com/JonMunkholm/publsync/internal/store"
	"github.com/JonMunkholm/publsync/internal/store/memstore"
)

const (
	membersCSV = "Member Code,Name,E-mail,Sign-up Date\n" +
		"SUB1,Kim,kim@gmail.com,2024-12-27 15:30:45\n" +
		"SUB2,Lee,lee@gmail.com,2024-12-28 09:00\n"
	ordersCSV = "Order Number,Product name,Member Code,Payment Type,Price,Date and Time of Payment\n" +
		"O1,KM-CMDS-OBM-ME-1,SUB1,Regular Payment,\"55,000원\",2024-12-27 16:00:00\n" +
		"O2,KM-CMDS-OBM-YE-2,SUB1,One-time Payment,\"99,000원\",2024-12-28 10:00:00\n" +
		"O3,KM-VOCA-BAS-ME-1,SUB2,Regular Payment,\"30,000원\",2024-12-28 11:00:00\n"
	refundsCSV = "Order Number,Refund Status,Refund Request Price,Refund Request Date\n" +
		"O2,Pending,\"99,000\",2024-12-29 12:00\n"
)

var allStages = []string{
	StageSchema,
	StageMembers,
	StageWithdrawal,
	StageOrders,
	StageProducts,
	StageMemberPrograms,
	StageOrderLinks,
	StageRefunds,
	StageRefundLinks,
	StageRequiredFields,
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeExports(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func fullExports(t *testing.T) string {
	return writeExports(t, map[string]string{
		"241229_090000_members.csv": membersCSV,
		"241229_090000_orders.csv":  ordersCSV,
		"241229_090000_refunds.csv": refundsCSV,
	})
}

func newOrchestrator(base store.Base) *Orchestrator {
	return New(base, config.DefaultSettings(), quietLogger())
}

func stageNames(res Result) []string {
	out := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		out[i] = s.Name
	}
	return out
}

// ============================================================================
// Run Tests
// ============================================================================

func TestRun_FullSync(t *testing.T) {
	base := memstore.New()
	base.Seed("Members")
	o := newOrchestrator(base)
	dir := fullExports(t)

	res := o.Run(context.Background(), Input{DownloadDir: dir})

	require.NoError(t, res.Fatal)
	require.Empty(t, res.Failed())
	require.Equal(t, schema.StatusSuccess, res.Status())
	require.NotEmpty(t, res.RunID)
	if diff := cmp.Diff(allStages, stageNames(res)); diff != "" {
		t.Errorf("stage order mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, []string{"Products", "MemberPrograms", "SyncHistory"}, res.SchemaCreated)
	require.Equal(t, 2, res.Members.Inserted)
	require.True(t, res.Withdrawal.Skipped)
	require.Equal(t, 3, res.Orders.Inserted)
	require.Equal(t, 3, res.Products.Inserted)
	require.Equal(t, 2, res.Programs.Inserted)
	require.Equal(t, 1, res.Refunds.Insert.Inserted)
	require.Equal(t, 0, res.RefundLinks.Missing)

	programs := codesOf(base.Records("MemberPrograms"), core.FieldProgramCode)
	require.ElementsMatch(t, []string{"SUB1_KM-CMDS-OBM", "SUB2_KM-VOCA-BAS"}, programs)

	for _, rec := range base.Records("Orders") {
		require.Len(t, rec.Fields.Links(core.LinkMemberPrograms), 1, "order %s", rec.Fields.String(core.FieldOrderNumber))
	}
	refunds := base.Records("Refunds")
	require.Len(t, refunds, 1)
	require.Len(t, refunds[0].Fields.Links(core.LinkOrders), 1)
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	base := memstore.New()
	base.Seed("Members")
	o := newOrchestrator(base)
	dir := fullExports(t)

	first := o.Run(context.Background(), Input{DownloadDir: dir})
	require.Equal(t, schema.StatusSuccess, first.Status())

	second := o.Run(context.Background(), Input{DownloadDir: dir})
	require.Equal(t, schema.StatusSuccess, second.Status())
	require.NotEqual(t, first.RunID, second.RunID)
	require.Empty(t, second.SchemaCreated)
	require.Equal(t, 0, second.Members.Inserted)
	require.Equal(t, 0, second.Orders.Inserted)
	require.Equal(t, 0, second.Products.Inserted)
	require.Equal(t, 0, second.Programs.Inserted)
	require.Equal(t, 0, second.Refunds.Insert.Inserted)
	require.Equal(t, 0, second.Refunds.Status.Updated)

	require.Len(t, base.Records("Members"), 2)
	require.Len(t, base.Records("Orders"), 3)
}

func TestRun_MissingExportFailsOnlyItsStages(t *testing.T) {
	base := memstore.New()
	base.Seed("Members")
	o := newOrchestrator(base)
	dir := writeExports(t, map[string]string{
		"241229_090000_members.csv": membersCSV,
		"241229_090000_orders.csv":  ordersCSV,
	})

	res := o.Run(context.Background(), Input{DownloadDir: dir})

	require.NoError(t, res.Fatal)
	require.Equal(t, schema.StatusFailed, res.Status())
	require.Equal(t, allStages, stageNames(res), "later stages still run")

	failed := res.Failed()
	require.Len(t, failed, 1)
	require.Equal(t, StageRefunds, failed[0].Name)
	require.True(t, errors.Is(failed[0].Err, source.ErrNotFound))

	require.Equal(t, 2, res.Members.Inserted)
	require.Equal(t, 3, res.Orders.Inserted)
}

func TestRun_StageErrorsAreIsolated(t *testing.T) {
	base := memstore.New()
	base.Seed("Members")
	base.FailOn("Orders", errors.New("service unavailable"))
	o := newOrchestrator(base)

	res := o.Run(context.Background(), Input{DownloadDir: fullExports(t)})

	require.NoError(t, res.Fatal)
	require.Equal(t, schema.StatusFailed, res.Status())
	require.Equal(t, 2, res.Members.Inserted)
	require.Equal(t, 3, res.Products.Inserted)

	var names []string
	for _, s := range res.Failed() {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{StageOrders, StageMemberPrograms, StageOrderLinks, StageRefunds, StageRefundLinks}, names)
}

func TestRun_WithdrawnMemberStaysInactive(t *testing.T) {
	base := memstore.New()
	base.Seed("Members",
		store.Fields{core.FieldMemberCode: "SUB1", core.FieldEmail: "kim@gmail.com", core.FieldIsActive: true},
		store.Fields{core.FieldMemberCode: "SUB2", core.FieldEmail: "lee@gmail.com", core.FieldIsActive: true},
		store.Fields{core.FieldMemberCode: "SUB9", core.FieldEmail: "park@gmail.com", core.FieldIsActive: true},
	)
	o := newOrchestrator(base)

	res := o.Run(context.Background(), Input{DownloadDir: fullExports(t)})

	require.Equal(t, schema.StatusSuccess, res.Status())
	require.Equal(t, 1, res.Withdrawal.Deactivated)

	active := make(map[string]bool)
	for _, rec := range base.Records("Members") {
		active[rec.Fields.String(core.FieldMemberCode)] = rec.Fields.IsTrue(core.FieldIsActive)
	}
	require.Equal(t, map[string]bool{"SUB1": true, "SUB2": true, "SUB9": false}, active)

	second := o.Run(context.Background(), Input{DownloadDir: fullExports(t)})
	require.True(t, second.Withdrawal.Skipped, "active count matches the export after withdrawal")
}

func TestRun_LogsCarryRunID(t *testing.T) {
	var buf bytes.Buffer
	o := New(memstore.New(), config.DefaultSettings(), logging.New(&buf, "info", "text"))
	ctx := logging.WithRunID(context.Background(), "run-abc")

	res := o.Run(ctx, Input{DownloadDir: fullExports(t)})
	require.Equal(t, "run-abc", res.RunID)
	require.NoError(t, o.RecordHistory(ctx, res, nil))

	out := buf.String()
	require.Contains(t, out, `msg="stage complete" run_id=run-abc stage=members`)
	require.Contains(t, out, `msg="history recorded" run_id=run-abc`)
}

type failingTables struct {
	store.Base
}

func (failingTables) Tables(ctx context.Context) ([]store.TableSchema, error) {
	return nil, errors.New("unauthorized")
}

func TestRun_SchemaFailureIsFatal(t *testing.T) {
	base := memstore.New()
	o := newOrchestrator(failingTables{base})

	res := o.Run(context.Background(), Input{DownloadDir: fullExports(t)})

	require.ErrorContains(t, res.Fatal, "ensure schema")
	require.Equal(t, schema.StatusFailed, res.Status())
	require.Equal(t, []string{StageSchema}, stageNames(res))
	require.Empty(t, base.Records("Members"))

	require.NoError(t, o.RecordHistory(context.Background(), res, nil))
	history := base.Records("SyncHistory")
	require.Len(t, history, 1)
	require.Equal(t, schema.StatusFailed, history[0].Fields.String(schema.HistoryStatus))
}

func TestRun_PanicBecomesStageError(t *testing.T) {
	o := newOrchestrator(memstore.New())
	res := Result{}

	err := o.stage(context.Background(), &res, "boom", func(context.Context) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})

	require.ErrorContains(t, err, "internal error")
	require.Len(t, res.Stages, 1)
	require.Equal(t, err, res.Stages[0].Err)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newOrchestrator(memstore.New()).Run(ctx, Input{DownloadDir: t.TempDir()})

	require.ErrorIs(t, res.Fatal, context.Canceled)
}

// ============================================================================
// History Tests
// ============================================================================

func TestHistoryFields(t *testing.T) {
	res := Result{
		Started:  time.Date(2024, 12, 29, 0, 30, 0, 0, time.UTC),
		Duration: 12345 * time.Millisecond,
	}
	res.Members.Inserted = 2
	res.Orders.Inserted = 3
	res.Refunds.Insert.Inserted = 1
	res.Refunds.Status.Updated = 4

	got := HistoryFields(res, []string{"/tmp/dl/241229_members.csv", "241229_orders.csv"}, "+09:00")

	want := store.Fields{
		schema.HistoryDateTime:       "2024-12-29T09:30:00+09:00",
		schema.HistoryDuration:       12.3,
		schema.HistoryStatus:         schema.StatusSuccess,
		schema.HistoryMembersNew:     2,
		schema.HistoryOrdersNew:      3,
		schema.HistoryRefundsNew:     1,
		schema.HistoryRefundsUpdated: 4,
		schema.HistoryDownloaded:     "241229_members.csv, 241229_orders.csv",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history fields mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordHistory(t *testing.T) {
	base := memstore.New()
	o := newOrchestrator(base)
	res := o.Run(context.Background(), Input{DownloadDir: fullExports(t)})

	require.NoError(t, o.RecordHistory(context.Background(), res, []string{"a.csv", "b.csv"}))

	history := base.Records("SyncHistory")
	require.Len(t, history, 1)
	require.Equal(t, res.Status(), history[0].Fields.String(schema.HistoryStatus))
	require.Equal(t, "a.csv, b.csv", history[0].Fields.String(schema.HistoryDownloaded))
}

func TestRecordHistory_FailureIsReturned(t *testing.T) {
	base := memstore.New()
	base.FailOn("SyncHistory", errors.New("rate limited"))
	o := newOrchestrator(base)

	err := o.RecordHistory(context.Background(), Result{Started: time.Now()}, nil)
	require.ErrorContains(t, err, "record history")
}

func TestRecordHistory_Disabled(t *testing.T) {
	base := memstore.New()
	settings := config.DefaultSettings()
	settings.Tables.SyncHistory = ""
	o := New(base, settings, quietLogger())

	require.NoError(t, o.RecordHistory(context.Background(), Result{}, nil))
	require.Empty(t, base.Records("SyncHistory"))
}

func codesOf(records []store.Record, field string) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Fields.String(field)
	}
	return out
}

package report

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/maintenance"
	"github.com/JonMunkholm/publsync/internal/pipeline"
	"github.com/JonMunkholm/publsync/internal/reconcile"
	"github.com/JonMunkholm/publsync/internal/source"
)

func TestSummary(t *testing.T) {
	res := pipeline.Result{
		RunID:    "run-1",
		Duration: 3200 * time.Millisecond,
		Stages: []pipeline.StageResult{
			{Name: pipeline.StageMembers},
			{Name: pipeline.StageRefunds, Err: fmt.Errorf("refunds: %w", &source.NotFoundError{Dir: "downloads", Pattern: "*_refunds.csv"})},
		},
	}
	res.Members.Inserted = 7
	res.Members.Duplicates = reconcile.DuplicateReport{Remote: map[string][]string{"SUB1": {"rec1", "rec2"}}}

	var buf bytes.Buffer
	Summary(&buf, res, []string{"/dl/241229_members.csv"}, 3)
	out := buf.String()

	for _, want := range []string{
		"241229_members.csv",
		"Sync run-1",
		"Members",
		"7",
		"FAILED",
		"refunds",
		"SRC001",
		"rec1, rec2",
		"Archived 3 file(s)",
	} {
		require.Contains(t, out, want)
	}
}

func TestStages_Fatal(t *testing.T) {
	res := pipeline.Result{
		Stages: []pipeline.StageResult{{Name: pipeline.StageSchema, Err: errors.New("boom")}},
		Fatal:  errors.New("ensure schema: boom"),
	}

	var buf bytes.Buffer
	Stages(&buf, res)
	require.Contains(t, buf.String(), "ERR000")
	require.Contains(t, buf.String(), "fatal")
}

func TestMigration(t *testing.T) {
	tests := []struct {
		name    string
		res     maintenance.MigrationResult
		want    []string
		notWant []string
	}{
		{
			name:    "dry run",
			res:     maintenance.MigrationResult{DryRun: true, Total: 4, ToUpdate: 1},
			want:    []string{"(dry run)", "To update"},
			notWant: []string{"Deleted", "Merged records"},
		},
		{
			name: "executed with losers",
			res: maintenance.MigrationResult{
				Total:   2,
				Updated: 1,
				Losers:  []maintenance.MergedRecord{{ID: "recX", OldCode: "A_KM-1-2-3", NewCode: "A_KM-1-2", ProductCode: "KM-1-2-3"}},
			},
			want:    []string{"Deleted", "Merged records", "recX", "A_KM-1-2"},
			notWant: []string{"(dry run)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Migration(&buf, tt.res)
			for _, s := range tt.want {
				require.Contains(t, buf.String(), s)
			}
			for _, s := range tt.notWant {
				require.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestAnalysis(t *testing.T) {
	var buf bytes.Buffer
	Analysis(&buf, maintenance.Analysis{
		CSVPath:     "/archive/20241229/241229_members.csv",
		RemoteCount: 3,
		CSVCount:    2,
		OnlyRemote:  []string{"SUB2", "SUB3"},
		Test:        []string{"SUB3"},
		Withdrawn:   []string{"SUB2"},
	})

	out := buf.String()
	require.Contains(t, out, "241229_members.csv")
	require.Contains(t, out, "SUB2")
	require.Contains(t, out, "SUB3")
	require.NotContains(t, out, "/archive/")
}

func TestCountsAndRequiredFields(t *testing.T) {
	var buf bytes.Buffer
	Counts(&buf, "ISO backfill", []maintenance.TableCount{{Table: "Members", Count: 2}, {Table: "Orders", Count: 5}})
	require.Contains(t, buf.String(), "ISO backfill")
	require.Contains(t, buf.String(), "7")

	buf.Reset()
	RequiredFields(&buf, []maintenance.RequiredFieldsResult{{
		Table:   "Members",
		Total:   10,
		Missing: map[string]int{"Is Active": 3},
		Fixed:   map[string]int{"Is Active": 3},
	}})
	require.Contains(t, buf.String(), "Is Active")
}

func TestWithdrawal(t *testing.T) {
	var buf bytes.Buffer
	Withdrawal(&buf, reconcile.WithdrawalResult{ActiveCount: 5, CSVCount: 5, Skipped: true})
	require.Contains(t, buf.String(), "counts match")

	buf.Reset()
	Withdrawal(&buf, reconcile.WithdrawalResult{ActiveCount: 5, CSVCount: 3, Checked: 2, Withdrawn: 1, Deactivated: 1, TestRecordsSkipped: 1})
	require.Contains(t, buf.String(), "Deactivated")
	require.NotContains(t, buf.String(), "counts match")
}

func TestWithdrawalPrecheck(t *testing.T) {
	tests := []struct {
		name   string
		active int
		rows   int
		want   string
	}{
		{"counts match", 5, 5, "no, counts match"},
		{"counts differ", 6, 5, "yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			WithdrawalPrecheck(&buf, tt.active, tt.rows)
			out := buf.String()
			require.Contains(t, out, "Scan needed")
			require.Contains(t, out, tt.want)
		})
	}
}

func TestSources(t *testing.T) {
	var buf bytes.Buffer
	Sources(&buf, []core.SourceDefinition{{
		Info: core.SourceInfo{Label: "Refunds", FilePattern: "*_refunds.csv", UniqueKey: core.FieldOrderNumber},
		FieldSpecs: []core.FieldSpec{
			{Name: core.FieldOrderNumber, Required: true},
			{Name: core.FieldRefundStatus, Required: true},
			{Name: core.FieldRefundPrice},
		},
	}})

	out := buf.String()
	require.Contains(t, out, "*_refunds.csv")
	require.Contains(t, out, "Order Number, Refund Status")
	require.NotContains(t, out, core.FieldRefundPrice)
}

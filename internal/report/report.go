// Package report renders run summaries and maintenance results as tables.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/maintenance"
	"github.com/JonMunkholm/publsync/internal/pipeline"
	"github.com/JonMunkholm/publsync/internal/reconcile"
)

// NewTable returns a rounded table that renders to w.
func NewTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// Summary prints the outcome of a full run: downloaded files, per-entity
// counts, stage status and the archive count.
func Summary(w io.Writer, res pipeline.Result, downloaded []string, archived int) {
	if len(downloaded) > 0 {
		t := NewTable(w, "Downloaded")
		t.AppendHeader(table.Row{"File"})
		for _, f := range downloaded {
			t.AppendRow(table.Row{filepath.Base(f)})
		}
		t.Render()
	}

	t := NewTable(w, "Sync "+res.RunID)
	t.AppendHeader(table.Row{"Entity", "New", "Updated", "Skipped", "Failed"})
	t.AppendRows([]table.Row{
		{"Members", res.Members.Inserted, "", res.Members.Skipped, res.Members.Failed},
		{"Withdrawals", "", res.Withdrawal.Deactivated, withdrawalNote(res.Withdrawal), ""},
		{"Orders", res.Orders.Inserted, res.OrderLinks.Updated, res.Orders.Skipped, res.Orders.Failed + res.OrderLinks.Failed},
		{"Products", res.Products.Inserted, "", res.Products.Skipped, res.Products.Failed},
		{"MemberPrograms", res.Programs.Inserted, "", res.Programs.Skipped + res.Programs.Unresolved, res.Programs.Failed},
		{"Refunds", res.Refunds.Insert.Inserted, res.Refunds.Status.Updated + res.RefundLinks.Updated, res.Refunds.Insert.Skipped, res.Refunds.Insert.Failed + res.Refunds.Status.Failed},
	})
	t.AppendFooter(table.Row{"Status", res.Status(), "", "Duration", res.Duration.Round(100 * time.Millisecond).String()})
	t.Render()

	Stages(w, res)

	if !res.Members.Duplicates.Empty() {
		Duplicates(w, res.Members.Duplicates)
	}
	if archived > 0 {
		fmt.Fprintf(w, "Archived %d file(s)\n", archived)
	}
}

func withdrawalNote(r reconcile.WithdrawalResult) string {
	if r.Skipped {
		return "counts match"
	}
	if r.TestRecordsSkipped > 0 {
		return fmt.Sprintf("%d test", r.TestRecordsSkipped)
	}
	return ""
}

// Stages prints one row per stage with a coded message for failures.
func Stages(w io.Writer, res pipeline.Result) {
	t := NewTable(w, "Stages")
	t.AppendHeader(table.Row{"Stage", "Result", "Time", "Message"})
	for _, s := range res.Stages {
		status, msg := text.FgGreen.Sprint("ok"), ""
		if s.Err != nil {
			status, msg = text.FgRed.Sprint("failed"), core.FormatUserError(s.Err)
		}
		t.AppendRow(table.Row{s.Name, status, s.Duration.Round(time.Millisecond).String(), msg})
	}
	if res.Fatal != nil {
		t.AppendRow(table.Row{"fatal", text.FgRed.Sprint("failed"), "", core.FormatUserError(res.Fatal)})
	}
	t.Render()
}

// Duplicates prints the member duplicate report.
func Duplicates(w io.Writer, d reconcile.DuplicateReport) {
	t := NewTable(w, "Possible duplicate members")
	t.AppendHeader(table.Row{"Kind", "Code", "Detail"})
	for _, code := range sortedKeys(d.Remote) {
		t.AppendRow(table.Row{"store", code, strings.Join(d.Remote[code], ", ")})
	}
	for _, code := range sortedKeys(d.CSV) {
		t.AppendRow(table.Row{"csv", code, fmt.Sprintf("%d rows", d.CSV[code])})
	}
	for _, n := range d.Near {
		t.AppendRow(table.Row{"similar", n.NewCode, fmt.Sprintf("%s (%.2f)", n.ExistingCode, n.Similarity)})
	}
	t.Render()
}

// Counts prints a per-table count under title.
func Counts(w io.Writer, title string, counts []maintenance.TableCount) {
	t := NewTable(w, title)
	t.AppendHeader(table.Row{"Table", "Updated"})
	total := 0
	for _, c := range counts {
		t.AppendRow(table.Row{c.Table, c.Count})
		total += c.Count
	}
	t.AppendFooter(table.Row{"Total", total})
	t.Render()
}

// Links prints the outcome of a link backfill.
func Links(w io.Writer, title string, r reconcile.LinkResult) {
	t := NewTable(w, title)
	t.AppendRows([]table.Row{
		{"Linked", r.Updated},
		{"Failed", r.Failed},
		{"Missing target", r.Missing},
	})
	if len(r.MissingExamples) > 0 {
		t.AppendRow(table.Row{"Examples", strings.Join(r.MissingExamples, ", ")})
	}
	t.Render()
}

// RequiredFields prints missing and fixed counts per table and field.
func RequiredFields(w io.Writer, results []maintenance.RequiredFieldsResult) {
	t := NewTable(w, "Required fields")
	t.AppendHeader(table.Row{"Table", "Field", "Records", "Missing", "Fixed"})
	for _, r := range results {
		for _, field := range sortedKeys(r.Missing) {
			t.AppendRow(table.Row{r.Table, field, r.Total, r.Missing[field], r.Fixed[field]})
		}
	}
	t.Render()
}

// Withdrawal prints the outcome of a withdrawal check.
func Withdrawal(w io.Writer, r reconcile.WithdrawalResult) {
	t := NewTable(w, "Withdrawal check")
	t.AppendRows([]table.Row{
		{"Active in store", r.ActiveCount},
		{"Rows in export", r.CSVCount},
	})
	if r.Skipped {
		t.AppendRow(table.Row{"Skipped", "counts match"})
	} else {
		t.AppendRows([]table.Row{
			{"Absent from export", r.Checked},
			{"Test records skipped", r.TestRecordsSkipped},
			{"Withdrawn", r.Withdrawn},
			{"Deactivated", r.Deactivated},
			{"Already inactive", r.AlreadyInactive},
		})
	}
	t.Render()
}

// WithdrawalPrecheck prints the active-versus-export comparison that decides
// whether a withdrawal scan runs.
func WithdrawalPrecheck(w io.Writer, active, rows int) {
	scan := "no, counts match"
	if active != rows {
		scan = "yes"
	}
	t := NewTable(w, "Withdrawal precheck")
	t.AppendRows([]table.Row{
		{"Active in store", active},
		{"Rows in export", rows},
		{"Scan needed", scan},
	})
	t.Render()
}

// Sources prints the registered exports with their file pattern, unique key
// and required columns.
func Sources(w io.Writer, defs []core.SourceDefinition) {
	t := NewTable(w, "Exports")
	t.AppendHeader(table.Row{"Source", "Pattern", "Unique key", "Required columns"})
	for _, def := range defs {
		var required []string
		for _, f := range def.FieldSpecs {
			if f.Required {
				required = append(required, f.Name)
			}
		}
		t.AppendRow(table.Row{def.Info.Label, def.Info.FilePattern, def.Info.UniqueKey, strings.Join(required, ", ")})
	}
	t.Render()
}

// Migration prints a program-code migration plan or result.
func Migration(w io.Writer, r maintenance.MigrationResult) {
	title := "Program code migration"
	if r.DryRun {
		title += " (dry run)"
	}
	t := NewTable(w, title)
	t.AppendRows([]table.Row{
		{"Total", r.Total},
		{"Unique codes", r.Unique},
		{"Duplicate codes", r.Duplicates},
		{"To update", r.ToUpdate},
		{"To delete", r.ToDelete},
		{"Skipped", r.Skipped},
	})
	if !r.DryRun {
		t.AppendRows([]table.Row{{"Updated", r.Updated}, {"Deleted", r.Deleted}})
	}
	t.Render()

	if len(r.Losers) == 0 {
		return
	}
	l := NewTable(w, "Merged records")
	l.AppendHeader(table.Row{"Record", "Old code", "New code", "Product"})
	for _, m := range r.Losers {
		l.AppendRow(table.Row{m.ID, m.OldCode, m.NewCode, m.ProductCode})
	}
	l.Render()
}

// Analysis prints the member discrepancy analysis.
func Analysis(w io.Writer, a maintenance.Analysis) {
	t := NewTable(w, "Member analysis")
	t.AppendRows([]table.Row{
		{"Export", filepath.Base(a.CSVPath)},
		{"Members in store", a.RemoteCount},
		{"Members in export", a.CSVCount},
		{"Duplicate codes in store", len(a.Duplicates)},
		{"Only in store", len(a.OnlyRemote)},
		{"  test accounts", len(a.Test)},
		{"  withdrawn", len(a.Withdrawn)},
		{"Only in export", len(a.OnlyCSV)},
	})
	t.Render()

	list := func(title string, codes []string) {
		if len(codes) == 0 {
			return
		}
		l := NewTable(w, title)
		for _, c := range codes {
			l.AppendRow(table.Row{c})
		}
		l.Render()
	}
	list("Withdrawn", a.Withdrawn)
	list("Test accounts", a.Test)
	list("Only in export", a.OnlyCSV)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

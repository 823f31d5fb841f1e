package maintenance

import (
	"context"
	"fmt"
	"sort"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/source"
)

// Analysis compares the remote members with the newest members export.
type Analysis struct {
	CSVPath     string
	RemoteCount int                 // distinct remote member codes
	CSVCount    int                 // distinct export member codes
	Duplicates  map[string][]string // remote code -> record ids, when repeated
	OnlyRemote  []string            // in the store but not in the export
	OnlyCSV     []string            // in the export but never synced
	Test        []string            // OnlyRemote codes that look like test accounts
	Withdrawn   []string            // OnlyRemote codes that look like real withdrawals
}

// Analyze finds the newest members export in dirs (searched recursively, so
// the archive tree can be passed) and compares it with the store.
func (j *Jobs) Analyze(ctx context.Context, dirs ...string) (Analysis, error) {
	def := core.MustGet(core.SourceMembers)
	path, err := source.FindLatest(def.Info.FilePattern, dirs...)
	if err != nil {
		return Analysis{}, fmt.Errorf("members: %w", err)
	}
	snap, err := source.Read(path)
	if err != nil {
		return Analysis{}, err
	}

	records, err := j.table(j.settings.Tables.Members).FetchAll(ctx)
	if err != nil {
		return Analysis{}, fmt.Errorf("fetch members: %w", err)
	}

	a := Analysis{CSVPath: path, Duplicates: make(map[string][]string)}

	type member struct{ name, email string }
	remote := make(map[string]member)
	ids := make(map[string][]string)
	for _, rec := range records {
		code := rec.Fields.String(core.FieldMemberCode)
		if code == "" {
			continue
		}
		ids[code] = append(ids[code], rec.ID)
		if _, ok := remote[code]; !ok {
			remote[code] = member{rec.Fields.String(core.FieldName), rec.Fields.String(core.FieldEmail)}
		}
	}
	for code, list := range ids {
		if len(list) > 1 {
			a.Duplicates[code] = list
		}
	}

	inCSV := make(map[string]bool)
	for _, row := range snap.Rows() {
		if code := row.Get(core.FieldMemberCode); code != "" {
			inCSV[code] = true
		}
	}
	a.RemoteCount, a.CSVCount = len(remote), len(inCSV)

	for code, m := range remote {
		if inCSV[code] {
			continue
		}
		a.OnlyRemote = append(a.OnlyRemote, code)
		if j.settings.TestRecords.IsTestRecord(code, m.name, m.email) {
			a.Test = append(a.Test, code)
		} else {
			a.Withdrawn = append(a.Withdrawn, code)
		}
	}
	for code := range inCSV {
		if _, ok := remote[code]; !ok {
			a.OnlyCSV = append(a.OnlyCSV, code)
		}
	}

	sort.Strings(a.OnlyRemote)
	sort.Strings(a.OnlyCSV)
	sort.Strings(a.Test)
	sort.Strings(a.Withdrawn)

	j.log.Info("member analysis",
		"csv", path,
		"remote", a.RemoteCount,
		"csv_members", a.CSVCount,
		"duplicates", len(a.Duplicates),
		"only_remote", len(a.OnlyRemote),
		"only_csv", len(a.OnlyCSV),
	)
	return a, nil
}

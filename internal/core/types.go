package core

import "strings"

// FieldType represents the expected data type for a CSV field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDateTime
	FieldNumeric
	FieldBool
)

// FieldSpec defines the expectations for a single CSV column.
type FieldSpec struct {
	Name       string // Column header name (matched case-insensitively)
	Type       FieldType
	Required   bool     // Column must exist in the CSV header
	EnumValues []string // Known values for FieldEnum; informational only
}

// SourceInfo describes one CSV export produced by the publ console.
type SourceInfo struct {
	Key         string // "members", "orders", "refunds"
	Label       string // Display name
	FilePattern string // Glob matched against the download directory
	UniqueKey   string // Column used for presence and duplicate detection
	Columns     []string
}

// SourceDefinition contains everything needed to load a CSV source.
type SourceDefinition struct {
	Info       SourceInfo
	FieldSpecs []FieldSpec
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// Row is a header-keyed CSV row. Missing columns read as "".
type Row interface {
	Get(column string) string
}

// MapRow is a Row backed by a plain map. Keys are matched exactly.
type MapRow map[string]string

func (r MapRow) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// TableNames maps logical tables to their names in the remote store.
type TableNames struct {
	Members        string `json:"members" yaml:"members"`
	Orders         string `json:"orders" yaml:"orders"`
	Refunds        string `json:"refunds" yaml:"refunds"`
	Products       string `json:"products" yaml:"products"`
	MemberPrograms string `json:"member_programs" yaml:"member_programs"`
	SyncHistory    string `json:"sync_history" yaml:"sync_history"`
}

// DefaultTableNames returns the table names used by the production base.
func DefaultTableNames() TableNames {
	return TableNames{
		Members:        "Members",
		Orders:         "Orders",
		Refunds:        "Refunds",
		Products:       "Products",
		MemberPrograms: "MemberPrograms",
		SyncHistory:    "SyncHistory",
	}
}

// ByKey resolves a logical key ("members", "member_programs", ...) to a table name.
func (t TableNames) ByKey(key string) (string, bool) {
	switch key {
	case "members":
		return t.Members, t.Members != ""
	case "orders":
		return t.Orders, t.Orders != ""
	case "refunds":
		return t.Refunds, t.Refunds != ""
	case "products":
		return t.Products, t.Products != ""
	case "member_programs":
		return t.MemberPrograms, t.MemberPrograms != ""
	case "sync_history":
		return t.SyncHistory, t.SyncHistory != ""
	}
	return "", false
}

// RequiredField is the default written when a required field is found empty.
type RequiredField struct {
	Default     any    `json:"default" yaml:"default"`
	Description string `json:"description" yaml:"description"`
}

// MergePolicy selects the surviving record when several program records
// collapse onto the same code.
type MergePolicy string

const (
	MergeWelcomeSentWins MergePolicy = "welcome-sent-wins"
	MergeFirstWins       MergePolicy = "first-wins"
)

// Valid reports whether p is a known policy.
func (p MergePolicy) Valid() bool {
	return p == MergeWelcomeSentWins || p == MergeFirstWins
}

// DeletePolicy controls what happens to the losing records of a merge.
type DeletePolicy string

const (
	DeleteReport DeletePolicy = "report"
	DeleteRemove DeletePolicy = "delete"
)

// Valid reports whether p is a known policy.
func (p DeletePolicy) Valid() bool {
	return p == DeleteReport || p == DeleteRemove
}

// Keys of the built-in CSV sources.
const (
	SourceMembers = "members"
	SourceOrders  = "orders"
	SourceRefunds = "refunds"
)

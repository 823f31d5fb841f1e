package core

// convert.go normalizes raw publ export values before they are written to the store.
//
// The console exports prices with thousands separators and a currency suffix
// ("1,234원"), and timestamps as "YYYY-MM-DD HH:MM[:SS]" in local time with no
// zone. Both are normalized here; anything unparseable degrades to a zero
// value rather than failing the row.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultOffset is the UTC offset of timestamps in the publ exports (KST).
const DefaultOffset = "+09:00"

// programRegex captures the first three dash-separated segments of a product code.
var programRegex = regexp.MustCompile(`^([^-]+(?:-[^-]+){2})`)

// offsetRegex validates a fixed UTC offset such as "+09:00".
var offsetRegex = regexp.MustCompile(`^[+-]\d{2}:\d{2}$`)

// dateTimeLayouts are the accepted raw timestamp formats, most specific first.
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParsePrice converts a price value to an integer, truncating any fraction.
// Strings have thousands separators and the "원" suffix removed first.
// nil, empty and unparseable values return 0.
func ParsePrice(v any) int {
	switch p := v.(type) {
	case nil:
		return 0
	case int:
		return p
	case int64:
		return int(p)
	case float64:
		return truncate(p)
	case float32:
		return truncate(float64(p))
	case string:
		s := strings.ReplaceAll(p, ",", "")
		s = strings.ReplaceAll(s, "원", "")
		s = strings.TrimSpace(s)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return truncate(f)
	default:
		return 0
	}
}

func truncate(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Trunc(f))
}

// ToISO converts "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD HH:MM" to ISO-8601 with
// the given fixed offset, e.g. "2024-12-27T15:30:45+09:00".
// Returns "" for empty or unsupported input; callers omit the ISO field then.
func ToISO(raw, offset string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !ValidOffset(offset) {
		offset = DefaultOffset
	}
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.Format("2006-01-02T15:04:05") + offset
		}
	}
	return ""
}

// LooksISO reports whether a raw value is already an ISO-8601 timestamp.
func LooksISO(raw string) bool {
	return strings.Contains(raw, "T")
}

// ValidOffset reports whether offset has the form "+HH:MM" or "-HH:MM".
func ValidOffset(offset string) bool {
	return offsetRegex.MatchString(offset)
}

// OffsetLocation returns a fixed zone for an offset such as "+09:00".
// Invalid offsets use DefaultOffset.
func OffsetLocation(offset string) *time.Location {
	if !ValidOffset(offset) {
		offset = DefaultOffset
	}
	h, _ := strconv.Atoi(offset[1:3])
	m, _ := strconv.Atoi(offset[4:6])
	secs := h*3600 + m*60
	if offset[0] == '-' {
		secs = -secs
	}
	return time.FixedZone(offset, secs)
}

// ExtractProgram returns the program code of a product code: its first three
// dash-separated segments. Codes with fewer segments are returned unchanged.
//
//	ExtractProgram("KM-CMDS-OBM-ME-1") == "KM-CMDS-OBM"
//	ExtractProgram("SIMPLE") == "SIMPLE"
func ExtractProgram(productCode string) string {
	if m := programRegex.FindStringSubmatch(productCode); m != nil {
		return m[1]
	}
	return productCode
}

// MemberProgramCode builds the composite key of a member-program record.
func MemberProgramCode(memberCode, programCode string) string {
	return memberCode + "_" + programCode
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, exists := idx[key]; exists {
			continue
		}
		idx[key] = i
	}
	return idx
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes a stray BOM left on the first header cell
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	}

	return s
}

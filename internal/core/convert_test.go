package core

import (
	"math"
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParsePrice Tests
// ----------------------------------------------------------------------------

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  int
	}{
		{name: "nil", input: nil, want: 0},
		{name: "empty string", input: "", want: 0},
		{name: "whitespace", input: "   ", want: 0},
		{name: "plain integer", input: "1000", want: 1000},
		{name: "thousands separator", input: "1,234", want: 1234},
		{name: "millions", input: "1,234,567", want: 1234567},
		{name: "bare won suffix", input: "500원", want: 500},
		{name: "won suffix", input: "1,234원", want: 1234},
		{name: "won suffix with space", input: " 55,000 원 ", want: 55000},
		{name: "fraction truncated", input: "1234.9", want: 1234},
		{name: "negative fraction truncated toward zero", input: "-12.7", want: -12},
		{name: "garbage", input: "free", want: 0},
		{name: "int", input: 42, want: 42},
		{name: "int64", input: int64(42), want: 42},
		{name: "float64", input: 99.99, want: 99},
		{name: "float64 not rounded", input: 1000.9, want: 1000},
		{name: "float32", input: float32(3.5), want: 3},
		{name: "NaN", input: math.NaN(), want: 0},
		{name: "Inf", input: math.Inf(1), want: 0},
		{name: "unsupported type", input: []int{1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePrice(tt.input); got != tt.want {
				t.Errorf("ParsePrice(%v) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToISO Tests
// ----------------------------------------------------------------------------

func TestToISO(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		offset string
		want   string
	}{
		{
			name:   "seconds",
			raw:    "2024-12-27 15:30:45",
			offset: "+09:00",
			want:   "2024-12-27T15:30:45+09:00",
		},
		{
			name:   "minutes only",
			raw:    "2024-12-27 15:30",
			offset: "+09:00",
			want:   "2024-12-27T15:30:00+09:00",
		},
		{
			name:   "surrounding whitespace",
			raw:    "  2024-01-02 03:04:05 ",
			offset: "+09:00",
			want:   "2024-01-02T03:04:05+09:00",
		},
		{
			name:   "custom offset",
			raw:    "2024-01-02 03:04:05",
			offset: "-05:00",
			want:   "2024-01-02T03:04:05-05:00",
		},
		{
			name:   "invalid offset falls back to default",
			raw:    "2024-01-02 03:04:05",
			offset: "KST",
			want:   "2024-01-02T03:04:05+09:00",
		},
		{
			name:   "empty",
			raw:    "",
			offset: "+09:00",
			want:   "",
		},
		{
			name:   "date only is unsupported",
			raw:    "2024-12-27",
			offset: "+09:00",
			want:   "",
		},
		{
			name:   "already iso is unsupported",
			raw:    "2024-12-27T15:30:45+09:00",
			offset: "+09:00",
			want:   "",
		},
		{
			name:   "invalid calendar date",
			raw:    "2024-02-30 10:00:00",
			offset: "+09:00",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToISO(tt.raw, tt.offset); got != tt.want {
				t.Errorf("ToISO(%q, %q) = %q, want %q", tt.raw, tt.offset, got, tt.want)
			}
		})
	}
}

func TestValidOffset(t *testing.T) {
	for _, ok := range []string{"+09:00", "-05:30", "+00:00"} {
		if !ValidOffset(ok) {
			t.Errorf("ValidOffset(%q) = false, want true", ok)
		}
	}
	for _, bad := range []string{"", "09:00", "+9:00", "+0900", "UTC"} {
		if ValidOffset(bad) {
			t.Errorf("ValidOffset(%q) = true, want false", bad)
		}
	}
}

func TestOffsetLocation(t *testing.T) {
	tests := []struct {
		offset string
		want   string
	}{
		{"+09:00", "2024-12-27T15:30:45+09:00"},
		{"-05:30", "2024-12-27T01:00:45-05:30"},
		{"bogus", "2024-12-27T15:30:45+09:00"},
	}

	at := time.Date(2024, 12, 27, 6, 30, 45, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.offset, func(t *testing.T) {
			got := at.In(OffsetLocation(tt.offset)).Format(time.RFC3339)
			if got != tt.want {
				t.Errorf("OffsetLocation(%q) formatted = %q, want %q", tt.offset, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Program code Tests
// ----------------------------------------------------------------------------

func TestExtractProgram(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"KM-CMDS-OBM-ME-1", "KM-CMDS-OBM"},
		{"KM-CMDS-OBM-ME-3", "KM-CMDS-OBM"},
		{"KM-CMDS-OBM", "KM-CMDS-OBM"},
		{"A-B", "A-B"},
		{"SIMPLE", "SIMPLE"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ExtractProgram(tt.input); got != tt.want {
				t.Errorf("ExtractProgram(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMemberProgramCode(t *testing.T) {
	got := MemberProgramCode("SUB1", ExtractProgram("KM-CMDS-OBM-ME-1"))
	if got != "SUB1_KM-CMDS-OBM" {
		t.Errorf("MemberProgramCode() = %q", got)
	}
}

// ----------------------------------------------------------------------------
// CleanCell / MakeHeaderIndex Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "abc", want: "abc"},
		{name: "whitespace", input: "  abc\t", want: "abc"},
		{name: "excel formula", input: `="00123"`, want: "00123"},
		{name: "bom", input: "\ufeffMember Code", want: "Member Code"},
		{name: "lone equals kept", input: "=SUM(A1)", want: "=SUM(A1)"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMakeHeaderIndex(t *testing.T) {
	idx := MakeHeaderIndex([]string{"\ufeffMember Code", " E-mail ", "Name"})

	want := map[string]int{"member code": 0, "e-mail": 1, "name": 2}
	if len(idx) != len(want) {
		t.Fatalf("len(idx) = %d, want %d", len(idx), len(want))
	}
	for k, v := range want {
		if idx[k] != v {
			t.Errorf("idx[%q] = %d, want %d", k, idx[k], v)
		}
	}
}

func TestMakeHeaderIndex_DuplicateHeaders(t *testing.T) {
	idx := MakeHeaderIndex([]string{"Name", "E-mail", "name"})
	if idx["name"] != 0 {
		t.Errorf("first occurrence should win, got %d", idx["name"])
	}
}

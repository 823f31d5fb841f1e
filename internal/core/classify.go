package core

import "strings"

// TestRecordRules classify a member as a test account. A member matching any
// rule is never deactivated by withdrawal detection.
type TestRecordRules struct {
	// CodePrefix is the prefix every real member code carries (default "SUB").
	// Codes without it are treated as test records. Empty disables the check.
	CodePrefix string `json:"code_prefix" yaml:"code_prefix"`

	// NameKeywords match anywhere in the name, case-insensitively.
	NameKeywords []string `json:"name_keywords" yaml:"name_keywords"`

	// EmailDomains match the part after "@".
	EmailDomains []string `json:"email_domains" yaml:"email_domains"`
}

// DefaultTestRecordRules returns the heuristics used in production.
func DefaultTestRecordRules() TestRecordRules {
	return TestRecordRules{
		CodePrefix:   "SUB",
		NameKeywords: []string{"테스트", "test", "TEST", "임시", "temp", "demo"},
		EmailDomains: []string{"test.com", "example.com", "temp.com", "fake.com"},
	}
}

// IsTestRecord reports whether a member looks like a test account.
func (r TestRecordRules) IsTestRecord(code, name, email string) bool {
	if r.CodePrefix != "" && !strings.HasPrefix(code, r.CodePrefix) {
		return true
	}

	lowerName := strings.ToLower(name)
	for _, kw := range r.NameKeywords {
		if kw != "" && strings.Contains(lowerName, strings.ToLower(kw)) {
			return true
		}
	}

	for _, domain := range r.EmailDomains {
		if domain != "" && strings.HasSuffix(email, "@"+domain) {
			return true
		}
	}

	return false
}

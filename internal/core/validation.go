package core

// validation.go checks CSV exports at the boundary, before any row is decoded.
//
// A source whose header lacks a required column fails with a MissingFieldError
// instead of silently decoding empty values for the missing fields.

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field/column name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// MissingFieldError reports required columns absent from a CSV header.
type MissingFieldError struct {
	Source string
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Source, strings.Join(e.Fields, ", "))
}

// ValidateHeaders validates that all required columns exist in the CSV headers.
// Returns the header index, or a *MissingFieldError listing missing columns.
func ValidateHeaders(source string, headers []string, specs []FieldSpec) (HeaderIndex, error) {
	idx := MakeHeaderIndex(headers)
	var missing []string

	for _, spec := range specs {
		if !spec.Required {
			continue
		}
		if _, ok := idx[strings.ToLower(spec.Name)]; !ok {
			missing = append(missing, spec.Name)
		}
	}

	if len(missing) > 0 {
		return nil, &MissingFieldError{Source: source, Fields: missing}
	}

	return idx, nil
}

// ValidateCell validates a single cell value against a field specification.
// Empty values are always valid.
func ValidateCell(value string, spec FieldSpec) error {
	if value == "" {
		return nil
	}

	switch spec.Type {
	case FieldNumeric:
		s := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(value, ",", ""), "원", ""))
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return ValidationError{Field: spec.Name, Value: value, Message: "invalid number format"}
		}
	case FieldDateTime:
		if ToISO(value, DefaultOffset) == "" && !LooksISO(value) {
			return ValidationError{Field: spec.Name, Value: value, Message: "invalid date format (use YYYY-MM-DD HH:MM:SS)"}
		}
	case FieldBool:
		switch strings.ToLower(value) {
		case "true", "false", "yes", "no", "1", "0":
		default:
			return ValidationError{Field: spec.Name, Value: value, Message: "must be true/false"}
		}
	}
	return nil
}

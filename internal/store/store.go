// Package store defines the remote table store the sync engine writes to.
//
// A store is a set of named tables holding flat field maps. Three backends
// implement it: the Airtable REST API (store/airtable), a SQL database
// (store/sqlstore), and an in-memory store for tests (store/memstore).
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// MaxBatchSize is the most records a single create or update may carry.
const MaxBatchSize = 10

// Fields is the field map of one record, keyed by field name.
type Fields map[string]any

// String returns the field as text. Numbers are formatted without a trailing
// ".0"; missing fields and nil read as "".
func (f Fields) String(name string) string {
	switch v := f[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// IsTrue reports whether a checkbox field is checked.
// Airtable omits unchecked checkboxes, so a missing field is false.
func (f Fields) IsTrue(name string) bool {
	b, ok := f[name].(bool)
	return ok && b
}

// Links returns the record ids of a link field.
func (f Fields) Links(name string) []string {
	switch v := f[name].(type) {
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	}
	return nil
}

// Empty reports whether a field holds no value: nil, "", false, or an empty list.
func (f Fields) Empty(name string) bool {
	switch v := f[name].(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case bool:
		return !v
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}

// Record is one row of a table.
type Record struct {
	ID          string `json:"id,omitempty"`
	Fields      Fields `json:"fields"`
	CreatedTime string `json:"createdTime,omitempty"`
}

// Table is a handle to one named table.
type Table interface {
	Name() string

	// FetchAll returns every record. It returns the complete set or an error,
	// never a partial result.
	FetchAll(ctx context.Context) ([]Record, error)

	// BatchCreate inserts up to MaxBatchSize records and returns them with ids.
	BatchCreate(ctx context.Context, fields []Fields) ([]Record, error)

	// BatchUpdate patches up to MaxBatchSize records by id. Only the given
	// fields change.
	BatchUpdate(ctx context.Context, records []Record) ([]Record, error)
}

// Deleter is implemented by tables that support deleting records.
type Deleter interface {
	BatchDelete(ctx context.Context, ids []string) error
}

// Base is a collection of tables plus schema operations.
type Base interface {
	Table(name string) Table
	Tables(ctx context.Context) ([]TableSchema, error)
	CreateTable(ctx context.Context, schema TableSchema) (TableSchema, error)
}

// Chunk splits items into consecutive batches of at most size elements.
// The last batch holds the remainder.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = MaxBatchSize
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// ClampBatchSize caps n to MaxBatchSize; non-positive values become MaxBatchSize.
func ClampBatchSize(n int) int {
	if n <= 0 || n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

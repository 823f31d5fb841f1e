// Package memstore is an in-memory store.Base.
//
// Tables are created on first write. A table created through CreateTable
// keeps its schema, and writes to it are checked against its single-select
// choices the way the hosted store checks them. Every create and update call
// is counted by batch size so tests can assert on request shape.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/publsync/internal/store"
)

// Base is a thread-safe in-memory store.
type Base struct {
	mu       sync.Mutex
	tables   map[string]*table
	order    []string
	nextID   int
	failures map[string]error
}

type table struct {
	schema  store.TableSchema
	typed   bool
	records []store.Record
	creates []int
	updates []int
}

// New returns an empty Base.
func New() *Base {
	return &Base{
		tables:   make(map[string]*table),
		failures: make(map[string]error),
	}
}

// Table returns a handle to the named table.
func (b *Base) Table(name string) store.Table {
	return &Table{base: b, name: name}
}

// Tables returns the schema of every table in creation order.
func (b *Base) Tables(ctx context.Context) ([]store.TableSchema, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]store.TableSchema, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.tables[name].schema)
	}
	return out, nil
}

// CreateTable adds a table with the given schema and assigns ids to it and
// its fields.
func (b *Base) CreateTable(ctx context.Context, schema store.TableSchema) (store.TableSchema, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.tables[schema.Name]; exists {
		return store.TableSchema{}, fmt.Errorf("create table %s: already exists", schema.Name)
	}

	schema.ID = b.newID("tbl")
	fields := make([]store.FieldSchema, len(schema.Fields))
	for i, f := range schema.Fields {
		f.ID = b.newID("fld")
		fields[i] = f
	}
	schema.Fields = fields

	b.tables[schema.Name] = &table{schema: schema, typed: true}
	b.order = append(b.order, schema.Name)
	return schema, nil
}

// Seed inserts records directly, bypassing counters and validation.
func (b *Base) Seed(name string, fields ...store.Fields) []store.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tableLocked(name)
	out := make([]store.Record, 0, len(fields))
	for _, f := range fields {
		rec := store.Record{ID: b.newID("rec"), Fields: copyFields(f)}
		t.records = append(t.records, rec)
		out = append(out, copyRecord(rec))
	}
	return out
}

// Records returns a copy of every record in the table.
func (b *Base) Records(name string) []store.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tables[name]
	if !ok {
		return nil
	}
	out := make([]store.Record, len(t.records))
	for i, r := range t.records {
		out[i] = copyRecord(r)
	}
	return out
}

// CreateCalls returns the batch size of every BatchCreate on the table.
func (b *Base) CreateCalls(name string) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tables[name]; ok {
		return append([]int(nil), t.creates...)
	}
	return nil
}

// UpdateCalls returns the batch size of every BatchUpdate on the table.
func (b *Base) UpdateCalls(name string) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tables[name]; ok {
		return append([]int(nil), t.updates...)
	}
	return nil
}

// FailOn makes every operation on the table return err. A nil err clears it.
func (b *Base) FailOn(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, name)
		return
	}
	b.failures[name] = err
}

func (b *Base) tableLocked(name string) *table {
	t, ok := b.tables[name]
	if !ok {
		t = &table{schema: store.TableSchema{ID: b.newID("tbl"), Name: name}}
		b.tables[name] = t
		b.order = append(b.order, name)
	}
	return t
}

func (b *Base) newID(prefix string) string {
	b.nextID++
	return fmt.Sprintf("%s%014d", prefix, b.nextID)
}

// Table is a handle to one table of a Base.
type Table struct {
	base *Base
	name string
}

func (t *Table) Name() string { return t.name }

func (t *Table) FetchAll(ctx context.Context) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := t.base
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failures[t.name]; err != nil {
		return nil, err
	}
	tbl, ok := b.tables[t.name]
	if !ok {
		return nil, nil
	}
	out := make([]store.Record, len(tbl.records))
	for i, r := range tbl.records {
		out[i] = copyRecord(r)
	}
	return out, nil
}

func (t *Table) BatchCreate(ctx context.Context, fields []store.Fields) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(fields) > store.MaxBatchSize {
		return nil, fmt.Errorf("%s: %w: %d records", t.name, store.ErrBatchTooLarge, len(fields))
	}
	b := t.base
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failures[t.name]; err != nil {
		return nil, err
	}
	tbl := b.tableLocked(t.name)
	tbl.creates = append(tbl.creates, len(fields))

	if tbl.typed {
		for _, f := range fields {
			if err := store.ValidateOptions(tbl.schema, f); err != nil {
				return nil, err
			}
		}
	}

	out := make([]store.Record, 0, len(fields))
	for _, f := range fields {
		rec := store.Record{ID: b.newID("rec"), Fields: copyFields(f)}
		tbl.records = append(tbl.records, rec)
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

func (t *Table) BatchUpdate(ctx context.Context, records []store.Record) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) > store.MaxBatchSize {
		return nil, fmt.Errorf("%s: %w: %d records", t.name, store.ErrBatchTooLarge, len(records))
	}
	b := t.base
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failures[t.name]; err != nil {
		return nil, err
	}
	tbl := b.tableLocked(t.name)
	tbl.updates = append(tbl.updates, len(records))

	// Validate the whole batch before applying any of it.
	positions := make([]int, len(records))
	for i, r := range records {
		pos := indexOf(tbl.records, r.ID)
		if pos < 0 {
			return nil, fmt.Errorf("%s: record %s not found", t.name, r.ID)
		}
		if tbl.typed {
			if err := store.ValidateOptions(tbl.schema, r.Fields); err != nil {
				return nil, err
			}
		}
		positions[i] = pos
	}

	out := make([]store.Record, 0, len(records))
	for i, r := range records {
		target := &tbl.records[positions[i]]
		for k, v := range r.Fields {
			if v == nil {
				delete(target.Fields, k)
				continue
			}
			target.Fields[k] = v
		}
		out = append(out, copyRecord(*target))
	}
	return out, nil
}

// BatchDelete removes records by id.
func (t *Table) BatchDelete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) > store.MaxBatchSize {
		return fmt.Errorf("%s: %w: %d records", t.name, store.ErrBatchTooLarge, len(ids))
	}
	b := t.base
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failures[t.name]; err != nil {
		return err
	}
	tbl := b.tableLocked(t.name)
	for _, id := range ids {
		pos := indexOf(tbl.records, id)
		if pos < 0 {
			return fmt.Errorf("%s: record %s not found", t.name, id)
		}
		tbl.records = append(tbl.records[:pos], tbl.records[pos+1:]...)
	}
	return nil
}

func indexOf(records []store.Record, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func copyFields(f store.Fields) store.Fields {
	out := make(store.Fields, len(f))
	for k, v := range f {
		if ids, ok := v.([]string); ok {
			v = append([]string(nil), ids...)
		}
		out[k] = v
	}
	return out
}

func copyRecord(r store.Record) store.Record {
	return store.Record{ID: r.ID, Fields: copyFields(r.Fields), CreatedTime: r.CreatedTime}
}

// Package sqlstore implements store.Base on a SQL database.
//
// It is the self-hosted variant of the hosted table store: Postgres through
// pgx, or a single SQLite file. Each logical table is one SQL table holding
// the field map as JSON; table schemas live in the publsync_schema table and
// drive single-select validation the same way the hosted store does.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/publsync/internal/store"
)

const schemaTable = "publsync_schema"

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name      string
	JSONType  string
	SeqColumn string
	numbered  bool
}

var (
	Postgres = Dialect{Name: "postgres", JSONType: "JSONB", SeqColumn: "seq BIGSERIAL PRIMARY KEY", numbered: true}
	SQLite   = Dialect{Name: "sqlite", JSONType: "TEXT", SeqColumn: "seq INTEGER PRIMARY KEY AUTOINCREMENT"}
)

// Placeholder returns the bind parameter for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Base is a store.Base over a *sql.DB.
type Base struct {
	db      *sql.DB
	dialect Dialect

	mu      sync.Mutex
	created map[string]bool
}

// OpenPostgres connects to Postgres through the pgx driver.
func OpenPostgres(ctx context.Context, databaseURL string) (*Base, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(ctx, db, Postgres)
}

// OpenSQLite opens or creates a SQLite database file.
func OpenSQLite(ctx context.Context, path string) (*Base, error) {
	if path == "" {
		return nil, errors.New("sqlite: a path was not specified")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return New(ctx, db, SQLite)
}

// New wraps an open database and creates the schema table if needed.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Base, error) {
	b := &Base{db: db, dialect: dialect, created: make(map[string]bool)}
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s, name TEXT NOT NULL UNIQUE, id TEXT NOT NULL, schema %s NOT NULL)",
		quoteIdentifier(schemaTable), dialect.SeqColumn, dialect.JSONType,
	)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create schema table: %w", err)
	}
	return b, nil
}

// Close closes the database.
func (b *Base) Close() error {
	return b.db.Close()
}

// Table returns a handle to the named table.
func (b *Base) Table(name string) store.Table {
	return &Table{base: b, name: name}
}

// Tables returns every registered table schema in creation order.
func (b *Base) Tables(ctx context.Context) ([]store.TableSchema, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("SELECT schema FROM %s ORDER BY seq", quoteIdentifier(schemaTable)))
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []store.TableSchema
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		var s store.TableSchema
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode table schema: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateTable registers a schema and creates its data table.
func (b *Base) CreateTable(ctx context.Context, schema store.TableSchema) (store.TableSchema, error) {
	if _, ok, err := b.schema(ctx, schema.Name); err != nil {
		return store.TableSchema{}, err
	} else if ok {
		return store.TableSchema{}, fmt.Errorf("create table %s: already exists", schema.Name)
	}

	schema.ID = newID("tbl")
	fields := make([]store.FieldSchema, len(schema.Fields))
	for i, f := range schema.Fields {
		f.ID = newID("fld")
		fields[i] = f
	}
	schema.Fields = fields

	if err := b.register(ctx, schema); err != nil {
		return store.TableSchema{}, err
	}
	if err := b.ensureDataTable(ctx, schema.Name); err != nil {
		return store.TableSchema{}, err
	}
	return schema, nil
}

func (b *Base) register(ctx context.Context, schema store.TableSchema) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	d := b.dialect
	q := fmt.Sprintf("INSERT INTO %s (name, id, schema) VALUES (%s, %s, %s)",
		quoteIdentifier(schemaTable), d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
	if _, err := b.db.ExecContext(ctx, q, schema.Name, schema.ID, string(raw)); err != nil {
		return fmt.Errorf("register table %s: %w", schema.Name, err)
	}
	return nil
}

// schema loads a registered table schema.
func (b *Base) schema(ctx context.Context, name string) (store.TableSchema, bool, error) {
	q := fmt.Sprintf("SELECT schema FROM %s WHERE name = %s", quoteIdentifier(schemaTable), b.dialect.Placeholder(1))
	var raw []byte
	err := b.db.QueryRowContext(ctx, q, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.TableSchema{}, false, nil
	}
	if err != nil {
		return store.TableSchema{}, false, fmt.Errorf("load schema %s: %w", name, err)
	}
	var s store.TableSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return store.TableSchema{}, false, fmt.Errorf("decode schema %s: %w", name, err)
	}
	return s, true, nil
}

// ensureDataTable creates the data table on first use and registers a bare
// schema for tables that were never created through CreateTable.
func (b *Base) ensureDataTable(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.created[name] {
		return nil
	}

	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s, id TEXT NOT NULL UNIQUE, fields %s NOT NULL, created_at TEXT NOT NULL)",
		quoteIdentifier(name), b.dialect.SeqColumn, b.dialect.JSONType,
	)
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	if _, ok, err := b.schema(ctx, name); err != nil {
		return err
	} else if !ok {
		if err := b.register(ctx, store.TableSchema{ID: newID("tbl"), Name: name}); err != nil {
			return err
		}
	}

	b.created[name] = true
	return nil
}

// Table is a handle to one SQL-backed table.
type Table struct {
	base *Base
	name string
}

func (t *Table) Name() string { return t.name }

func (t *Table) FetchAll(ctx context.Context) ([]store.Record, error) {
	if err := t.base.ensureDataTable(ctx, t.name); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT id, fields, created_at FROM %s ORDER BY seq", quoteIdentifier(t.name))
	rows, err := t.base.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var rec store.Record
		var raw []byte
		if err := rows.Scan(&rec.ID, &raw, &rec.CreatedTime); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", t.name, err)
		}
		if err := json.Unmarshal(raw, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", t.name, rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t.name, err)
	}
	return out, nil
}

func (t *Table) BatchCreate(ctx context.Context, fields []store.Fields) ([]store.Record, error) {
	if len(fields) > store.MaxBatchSize {
		return nil, fmt.Errorf("create %s: %w: %d records", t.name, store.ErrBatchTooLarge, len(fields))
	}
	if len(fields) == 0 {
		return nil, nil
	}
	if err := t.base.ensureDataTable(ctx, t.name); err != nil {
		return nil, err
	}
	if err := t.validate(ctx, fields); err != nil {
		return nil, err
	}

	d := t.base.dialect
	q := fmt.Sprintf("INSERT INTO %s (id, fields, created_at) VALUES (%s, %s, %s)",
		quoteIdentifier(t.name), d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
	now := time.Now().UTC().Format(time.RFC3339)

	out := make([]store.Record, 0, len(fields))
	err := t.base.inTx(ctx, func(tx *sql.Tx) error {
		for _, f := range fields {
			raw, err := json.Marshal(f)
			if err != nil {
				return err
			}
			rec := store.Record{ID: newID("rec"), CreatedTime: now}
			if _, err := tx.ExecContext(ctx, q, rec.ID, string(raw), now); err != nil {
				return err
			}
			// Round-trip so callers see the same value types a fetch returns.
			if err := json.Unmarshal(raw, &rec.Fields); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", t.name, err)
	}
	return out, nil
}

func (t *Table) BatchUpdate(ctx context.Context, records []store.Record) ([]store.Record, error) {
	if len(records) > store.MaxBatchSize {
		return nil, fmt.Errorf("update %s: %w: %d records", t.name, store.ErrBatchTooLarge, len(records))
	}
	if len(records) == 0 {
		return nil, nil
	}
	if err := t.base.ensureDataTable(ctx, t.name); err != nil {
		return nil, err
	}
	patches := make([]store.Fields, len(records))
	for i, r := range records {
		patches[i] = r.Fields
	}
	if err := t.validate(ctx, patches); err != nil {
		return nil, err
	}

	d := t.base.dialect
	sel := fmt.Sprintf("SELECT fields, created_at FROM %s WHERE id = %s", quoteIdentifier(t.name), d.Placeholder(1))
	upd := fmt.Sprintf("UPDATE %s SET fields = %s WHERE id = %s", quoteIdentifier(t.name), d.Placeholder(1), d.Placeholder(2))

	out := make([]store.Record, 0, len(records))
	err := t.base.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			var raw []byte
			rec := store.Record{ID: r.ID}
			if err := tx.QueryRowContext(ctx, sel, r.ID).Scan(&raw, &rec.CreatedTime); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("record %s not found", r.ID)
				}
				return err
			}
			if err := json.Unmarshal(raw, &rec.Fields); err != nil {
				return err
			}
			if rec.Fields == nil {
				rec.Fields = store.Fields{}
			}
			for k, v := range r.Fields {
				if v == nil {
					delete(rec.Fields, k)
					continue
				}
				rec.Fields[k] = v
			}
			merged, err := json.Marshal(rec.Fields)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, upd, string(merged), r.ID); err != nil {
				return err
			}
			rec.Fields = nil
			if err := json.Unmarshal(merged, &rec.Fields); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", t.name, err)
	}
	return out, nil
}

// BatchDelete removes records by id.
func (t *Table) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) > store.MaxBatchSize {
		return fmt.Errorf("delete %s: %w: %d records", t.name, store.ErrBatchTooLarge, len(ids))
	}
	if len(ids) == 0 {
		return nil
	}
	if err := t.base.ensureDataTable(ctx, t.name); err != nil {
		return err
	}

	d := t.base.dialect
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = d.Placeholder(i + 1)
		args[i] = id
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", quoteIdentifier(t.name), strings.Join(placeholders, ", "))
	if _, err := t.base.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	return nil
}

func (t *Table) validate(ctx context.Context, fields []store.Fields) error {
	schema, ok, err := t.base.schema(ctx, t.name)
	if err != nil || !ok {
		return err
	}
	for _, f := range fields {
		if err := store.ValidateOptions(schema, f); err != nil {
			return err
		}
	}
	return nil
}

func (b *Base) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

// quoteIdentifier safely quotes a SQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

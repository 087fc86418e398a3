// Package sqlite is the SQLite corpus mirror, backed by the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"menuscrape/internal/records"
	"menuscrape/internal/storage"
)

// insertChunk keeps statements well below SQLite's bound-variable limit.
const insertChunk = 500

// Repo implements storage.Repository for SQLite.
type Repo struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN (a file path or ":memory:").
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, table: cfg.TableName()}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// ReplaceAll deletes every stored row and inserts c, all in one transaction.
func (r *Repo) ReplaceAll(ctx context.Context, c records.Corpus) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqlIdent(r.table)); err != nil {
		return 0, fmt.Errorf("clear %s: %w", r.table, err)
	}

	var total int64
	for _, chunk := range storage.Chunk(storage.ProductRows(c), insertChunk) {
		q, args := buildInsertSQL(r.table, storage.ColumnNames(), chunk)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", r.table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Repo) LoadAll(ctx context.Context) (records.Corpus, error) {
	rows, err := r.db.QueryContext(ctx, buildSelectSQL(r.table, storage.ColumnNames()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := records.Corpus{}
	for rows.Next() {
		var (
			pos int64
			rec records.ProductRecord
		)
		if err := rows.Scan(storage.ScanTargets(&pos, &rec)...); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnType(k storage.ColumnKind) string {
	switch k {
	case storage.ColumnPosition:
		return "INTEGER NOT NULL PRIMARY KEY"
	case storage.ColumnKey:
		return "TEXT NOT NULL UNIQUE"
	default:
		return "TEXT NOT NULL DEFAULT ''"
	}
}

func buildCreateSQL(table string) string {
	specs := storage.ProductColumns()
	defs := make([]string, len(specs))
	for i, c := range specs {
		defs[i] = sqlIdent(c.Name) + " " + columnType(c.Kind)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqlIdent(table), strings.Join(defs, ", "))
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	row := "(" + strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, vals := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		args = append(args, vals...)
	}
	return b.String(), args
}

func buildSelectSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqlIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(quoted, ", "), sqlIdent(table), sqlIdent("position"))
}

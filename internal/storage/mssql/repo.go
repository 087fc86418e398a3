// Package mssql is the SQL Server corpus mirror.
//
// This package does not import a SQL Server driver; the application must
// register one under "sqlserver" (menuscrape/internal/storage/all does).
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"menuscrape/internal/records"
	"menuscrape/internal/storage"
)

// insertChunk keeps a chunk under SQL Server's 2100 parameter limit.
const insertChunk = 150

// Repo implements storage.Repository for SQL Server.
type Repo struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, table: cfg.TableName()}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// ReplaceAll deletes every stored row and inserts c in one transaction.
func (r *Repo) ReplaceAll(ctx context.Context, c records.Corpus) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+mssqlTableIdent(r.table)); err != nil {
		return 0, fmt.Errorf("clear %s: %w", r.table, err)
	}

	var total int64
	for _, chunk := range storage.Chunk(storage.ProductRows(c), insertChunk) {
		q, args := buildBulkInsertSQL(r.table, storage.ColumnNames(), chunk)
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

// mssqlIdent returns a bracket-quoted identifier.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.menu_products" -> [dbo].[menu_products]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func columnType(k storage.ColumnKind) string {
	switch k {
	case storage.ColumnPosition:
		return "BIGINT NOT NULL PRIMARY KEY"
	case storage.ColumnKey:
		// NVARCHAR(MAX) cannot carry a UNIQUE index.
		return "NVARCHAR(400) NOT NULL UNIQUE"
	default:
		return "NVARCHAR(MAX) NOT NULL DEFAULT N''"
	}
}

// buildCreateSQL returns a CREATE TABLE wrapped in an OBJECT_ID guard, which
// keeps EnsureSchema idempotent without IF NOT EXISTS syntax.
func buildCreateSQL(table string) string {
	specs := storage.ProductColumns()
	defs := make([]string, len(specs))
	for i, c := range specs {
		defs[i] = mssqlIdent(c.Name) + " " + columnType(c.Kind)
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(table, "'", "''"),
		mssqlTableIdent(table),
		strings.Join(defs, ", "),
	)
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for all rows
// with @pN placeholders.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	return b.String(), args
}

func buildSelectSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = mssqlIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(quoted, ", "), mssqlTableIdent(table), mssqlIdent("position"))
}

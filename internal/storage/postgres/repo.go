// Package postgres is the PostgreSQL corpus mirror, backed by a pgx pool.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"menuscrape/internal/records"
	"menuscrape/internal/storage"
)

// insertChunk bounds rows per INSERT; 11 columns keep a chunk far below the
// 65535 parameter limit.
const insertChunk = 1000

// Repo implements storage.Repository for Postgres.
type Repo struct {
	pool  *pgxpool.Pool
	table string
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool, table: cfg.TableName()}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureSchema creates the schema (for a qualified table name) and the table.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	schemaSQL, tableSQL := buildCreateSQL(r.table)
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", r.table, err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// ReplaceAll clears the table and sends every insert chunk in one pgx batch,
// inside a single transaction.
func (r *Repo) ReplaceAll(ctx context.Context, c records.Corpus) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue("DELETE FROM " + tableIdent(r.table))
	chunks := storage.Chunk(storage.ProductRows(c), insertChunk)
	for _, chunk := range chunks {
		q, args := buildInsertSQL(r.table, storage.ColumnNames(), chunk)
		batch.Queue(q, args...)
	}

	br := tx.SendBatch(ctx, batch)
	var total int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("replace %s (statement %d): %w", r.table, i, err)
		}
		if i > 0 {
			total += tag.RowsAffected()
		}
	}
	if err := br.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

// LoadAll reads the corpus in position order.
func (r *Repo) LoadAll(ctx context.Context) (records.Corpus, error) {
	rows, err := r.pool.Query(ctx, buildSelectSQL(r.table, storage.ColumnNames()))
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (records.ProductRecord, error) {
		var (
			pos int64
			rec records.ProductRecord
		)
		err := row.Scan(storage.ScanTargets(&pos, &rec)...)
		return rec, err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []records.ProductRecord{}
	}
	return out, nil
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// tableIdent quotes a possibly schema-qualified table name.
func tableIdent(name string) string {
	if schema, table := splitQualifiedName(name); schema != "" {
		return pgIdent(schema) + "." + pgIdent(table)
	}
	return pgIdent(strings.TrimSpace(name))
}

// splitQualifiedName splits "schema.table"; anything else is unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func columnType(k storage.ColumnKind) string {
	switch k {
	case storage.ColumnPosition:
		return "BIGINT NOT NULL PRIMARY KEY"
	case storage.ColumnKey:
		return "TEXT NOT NULL UNIQUE"
	default:
		return "TEXT NOT NULL DEFAULT ''"
	}
}

// buildCreateSQL returns DDL for the products table and, for a qualified
// name, its schema.
func buildCreateSQL(table string) (schemaSQL, tableSQL string) {
	if schema, _ := splitQualifiedName(table); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	specs := storage.ProductColumns()
	defs := make([]string, len(specs))
	for i, c := range specs {
		defs[i] = pgIdent(c.Name) + " " + columnType(c.Kind)
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, tableIdent(table), strings.Join(defs, ", "))
	return schemaSQL, tableSQL
}

// buildInsertSQL constructs one multi-row INSERT with $n placeholders
// numbered row-major.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
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
			fmt.Fprintf(&b, "$%d", p)
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
		quoted[i] = pgIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(quoted, ", "), tableIdent(table), pgIdent("position"))
}

package storage

import (
	"menuscrape/internal/records"
)

// ProductsTable is the default table name.
const ProductsTable = "menu_products"

// ColumnKind tells a backend which SQL type to use for a column.
type ColumnKind int

const (
	// ColumnPosition is the integer primary key holding corpus order.
	ColumnPosition ColumnKind = iota
	// ColumnKey is the unique product name; backends that cannot index
	// unbounded text give it a bounded type.
	ColumnKey
	// ColumnText is a non-null text column defaulting to ''.
	ColumnText
)

// ColumnSpec is one column of the products table.
type ColumnSpec struct {
	Name string
	Kind ColumnKind
}

// ProductColumns returns the products table layout in insert/select order.
func ProductColumns() []ColumnSpec {
	cols := []ColumnSpec{
		{Name: "position", Kind: ColumnPosition},
		{Name: "name", Kind: ColumnKey},
		{Name: "description", Kind: ColumnText},
		{Name: "portion", Kind: ColumnText},
	}
	for _, k := range records.MetricKeys {
		cols = append(cols, ColumnSpec{Name: k, Kind: ColumnText})
	}
	return cols
}

// ColumnNames returns the names of ProductColumns.
func ColumnNames() []string {
	specs := ProductColumns()
	out := make([]string, len(specs))
	for i, c := range specs {
		out[i] = c.Name
	}
	return out
}

// ProductRows converts c into insert rows in ColumnNames order. Nameless
// records and later duplicates are dropped so the unique name holds.
func ProductRows(c records.Corpus) [][]any {
	c = records.Dedupe(c)
	rows := make([][]any, len(c))
	for i, r := range c {
		n := r.Nutrition
		rows[i] = []any{
			int64(i),
			r.Name,
			r.Description,
			r.Portion,
			n.Calories,
			n.Fats,
			n.Carbs,
			n.Proteins,
			n.Sugar,
			n.Salt,
			n.UnsaturatedFats,
		}
	}
	return rows
}

// ScanTargets returns scan destinations matching ColumnNames order.
func ScanTargets(position *int64, r *records.ProductRecord) []any {
	n := &r.Nutrition
	return []any{
		position,
		&r.Name,
		&r.Description,
		&r.Portion,
		&n.Calories,
		&n.Fats,
		&n.Carbs,
		&n.Proteins,
		&n.Sugar,
		&n.Salt,
		&n.UnsaturatedFats,
	}
}

// Chunk splits rows into batches of at most size rows.
func Chunk(rows [][]any, size int) [][][]any {
	if size < 1 {
		size = 1
	}
	var out [][][]any
	for len(rows) > size {
		out = append(out, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}

package store

import (
	"context"
	"fmt"

	"github.com/goliatone/go-report-cache/sqlbuild"
)

// Catalog lists tables and columns through the store's metadata views.
type Catalog struct {
	store *Store
}

// Catalog returns the metadata view of s.
func (s *Store) Catalog() *Catalog {
	return &Catalog{store: s}
}

// TableExists reports whether a table or view with this name exists.
func (c *Catalog) TableExists(ctx context.Context, table string) (bool, error) {
	db := c.store.db
	q := db.NewSelect().ColumnExpr("COUNT(*)")

	switch c.store.dialect.(type) {
	case sqlbuild.SQLite:
		q = q.TableExpr("sqlite_master").
			Where("type IN (?, ?)", "table", "view").
			Where("name = ?", table)
	default:
		q = q.TableExpr("information_schema.tables").
			Where("table_schema = ?", c.store.schema).
			Where("table_name = ?", table)
	}

	var n int
	if err := q.Scan(ctx, &n); err != nil {
		return false, fmt.Errorf("probe table %q: %w", table, classify(err))
	}
	return n > 0, nil
}

// Columns lists the columns of table in declaration order.
func (c *Catalog) Columns(ctx context.Context, table string) ([]string, error) {
	db := c.store.db
	q := db.NewSelect()

	switch c.store.dialect.(type) {
	case sqlbuild.SQLite:
		q = q.ColumnExpr("name").
			TableExpr("pragma_table_info(?)", table).
			OrderExpr("cid")
	default:
		q = q.ColumnExpr("column_name").
			TableExpr("information_schema.columns").
			Where("table_schema = ?", c.store.schema).
			Where("table_name = ?", table).
			OrderExpr("ordinal_position")
	}

	var columns []string
	if err := q.Scan(ctx, &columns); err != nil {
		return nil, fmt.Errorf("list columns of %q: %w", table, classify(err))
	}
	return columns, nil
}

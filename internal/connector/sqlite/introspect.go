package sqlite

import (
	"context"
	"fmt"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/schema"
)

// columnsQuery joins sqlite_master with pragma_table_info to list every
// column of every user table. Primary-key columns report NOT NULL since an
// INTEGER PRIMARY KEY never holds NULL even without the constraint.
const columnsQuery = `
	SELECT
		m.name AS table_name,
		p.name AS column_name,
		p.type AS data_type,
		CASE WHEN p."notnull" = 0 AND p.pk = 0 THEN 'YES' ELSE 'NO' END AS is_nullable,
		p.dflt_value AS column_default,
		p.pk > 0 AS is_primary_key
	FROM sqlite_master m
	JOIN pragma_table_info(m.name) p
	WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
	ORDER BY m.name, p.cid`

// ColumnRows returns the raw introspection rows for the database.
func (c *SQLiteConnector) ColumnRows(ctx context.Context) ([]model.ColumnRow, error) {
	rows := []model.ColumnRow{}
	if err := c.db.SelectContext(ctx, &rows, columnsQuery); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	return rows, nil
}

// IntrospectSchema returns the normalized schema of the database.
func (c *SQLiteConnector) IntrospectSchema(ctx context.Context) (*model.DbSchema, error) {
	rows, err := c.ColumnRows(ctx)
	if err != nil {
		return nil, err
	}
	db := schema.FromColumnRows(rows)
	return &db, nil
}

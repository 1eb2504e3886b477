package postgres

import (
	"context"
	"fmt"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/schema"
)

// columnsQuery lists every column of every base table in the schema together
// with its primary-key membership, ordered by table then ordinal position.
const columnsQuery = `
	SELECT
		c.table_name,
		c.column_name,
		c.data_type,
		c.is_nullable,
		c.column_default,
		EXISTS (
			SELECT 1
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = c.table_schema
				AND tc.table_name = c.table_name
				AND kcu.column_name = c.column_name
		) AS is_primary_key
	FROM information_schema.columns c
	JOIN information_schema.tables t
		ON t.table_schema = c.table_schema
		AND t.table_name = c.table_name
	WHERE c.table_schema = $1
		AND t.table_type = 'BASE TABLE'
	ORDER BY c.table_name, c.ordinal_position`

// ColumnRows returns the raw introspection rows for the configured schema.
func (c *PostgresConnector) ColumnRows(ctx context.Context) ([]model.ColumnRow, error) {
	rows := []model.ColumnRow{}
	if err := c.db.SelectContext(ctx, &rows, columnsQuery, c.schemaName); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	return rows, nil
}

// IntrospectSchema returns the normalized schema of the configured
// PostgreSQL schema.
func (c *PostgresConnector) IntrospectSchema(ctx context.Context) (*model.DbSchema, error) {
	rows, err := c.ColumnRows(ctx)
	if err != nil {
		return nil, err
	}
	db := schema.FromColumnRows(rows)
	return &db, nil
}

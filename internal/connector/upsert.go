package connector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/handsdb/hands/internal/schema"
)

// BuildUpsertSQL renders an INSERT for a single row with one placeholder
// per column, in req.Columns order. When req.Key is set the statement
// updates every non-key column on key conflict (ON CONFLICT ... DO UPDATE,
// understood by both PostgreSQL and SQLite).
func BuildUpsertSQL(d schema.Dialect, placeholder func(int) string, req UpsertRequest) (string, error) {
	if req.Table == "" {
		return "", fmt.Errorf("table name is required")
	}
	if len(req.Columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	if err := schema.ValidateIdentifier(req.Table); err != nil {
		return "", fmt.Errorf("table: %w", err)
	}

	quoted := make([]string, len(req.Columns))
	params := make([]string, len(req.Columns))
	hasKey := false
	for i, col := range req.Columns {
		if err := schema.ValidateIdentifier(col); err != nil {
			return "", fmt.Errorf("column: %w", err)
		}
		quoted[i] = d.QuoteIdentifier(col)
		params[i] = placeholder(i + 1)
		if col == req.Key {
			hasKey = true
		}
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QualifyTable(req.Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(params, ", "))
	b.WriteString(")")

	if req.Key == "" {
		return b.String(), nil
	}
	if !hasKey {
		return "", fmt.Errorf("key column %q is not among the written columns", req.Key)
	}

	updates := make([]string, 0, len(req.Columns)-1)
	for _, col := range req.Columns {
		if col == req.Key {
			continue
		}
		q := d.QuoteIdentifier(col)
		updates = append(updates, q+" = EXCLUDED."+q)
	}
	sort.Strings(updates)

	b.WriteString(" ON CONFLICT (")
	b.WriteString(d.QuoteIdentifier(req.Key))
	if len(updates) == 0 {
		b.WriteString(") DO NOTHING")
		return b.String(), nil
	}
	b.WriteString(") DO UPDATE SET ")
	b.WriteString(strings.Join(updates, ", "))
	return b.String(), nil
}

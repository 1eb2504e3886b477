package schema

import (
	"fmt"
	"strings"

	"github.com/handsdb/hands/internal/model"
)

// Dialect renders identifiers and column types for a specific database.
// Workbook connectors implement it.
type Dialect interface {
	// QuoteIdentifier quotes a single identifier.
	QuoteIdentifier(name string) string
	// QualifyTable returns the quoted, schema-qualified name of a table.
	QualifyTable(name string) string
	// ColumnType maps a semantic column type to the dialect's SQL type.
	ColumnType(t model.ColumnType) string
	// AutoIncrementKey is the SQL type of a synthesized surrogate key.
	AutoIncrementKey() string
}

// PostgresDialect renders unqualified Postgres DDL. It is the default when no
// connector is at hand, for example when printing DDL from the CLI.
var PostgresDialect Dialect = postgresDialect{}

type postgresDialect struct{}

func (postgresDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d postgresDialect) QualifyTable(name string) string {
	return d.QuoteIdentifier(name)
}

func (postgresDialect) ColumnType(t model.ColumnType) string {
	return PostgresColumnType(t)
}

func (postgresDialect) AutoIncrementKey() string {
	return "BIGSERIAL"
}

// PostgresColumnType maps a semantic column type to its Postgres SQL type.
func PostgresColumnType(t model.ColumnType) string {
	switch t {
	case model.TypeInteger:
		return "BIGINT"
	case model.TypeReal:
		return "DOUBLE PRECISION"
	case model.TypeNumeric:
		return "NUMERIC"
	case model.TypeBoolean:
		return "BOOLEAN"
	case model.TypeTimestamp:
		return "TIMESTAMPTZ"
	case model.TypeDate:
		return "DATE"
	case model.TypeJSON:
		return "JSONB"
	case model.TypeUUID:
		return "UUID"
	case model.TypeBlob:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// keyColumn is the conventional primary key column name.
const keyColumn = "id"

// GenerateCreateTable renders an idempotent CREATE TABLE statement for a
// declared table. A declared "id" column becomes the primary key; without
// one, an auto-increment "id" key is synthesized as the first column. Other
// columns are nullable unless marked not_null.
func GenerateCreateTable(d Dialect, t model.RequiredTable) (string, error) {
	if t.Name == "" {
		return "", fmt.Errorf("table name is required")
	}
	if err := ValidateIdentifier(t.Name); err != nil {
		return "", fmt.Errorf("table %q: %w", t.Name, err)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %q declares no columns", t.Name)
	}

	seen := make(map[string]bool, len(t.Columns))
	hasKey := false
	for _, col := range t.Columns {
		if err := ValidateIdentifier(col.Name); err != nil {
			return "", fmt.Errorf("table %q: column: %w", t.Name, err)
		}
		if seen[col.Name] {
			return "", fmt.Errorf("table %q: duplicate column %q", t.Name, col.Name)
		}
		seen[col.Name] = true
		if col.Name == keyColumn {
			hasKey = true
		}
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(d.QualifyTable(t.Name))
	b.WriteString(" (\n")

	lines := make([]string, 0, len(t.Columns)+2)
	if !hasKey {
		lines = append(lines, d.QuoteIdentifier(keyColumn)+" "+d.AutoIncrementKey()+" NOT NULL")
	}
	for _, col := range t.Columns {
		line := d.QuoteIdentifier(col.Name) + " " + d.ColumnType(ParseColumnType(string(col.Type)))
		if col.NotNull || col.Name == keyColumn {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}
	lines = append(lines, "PRIMARY KEY ("+d.QuoteIdentifier(keyColumn)+")")

	for i, line := range lines {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("  ")
		b.WriteString(line)
	}
	b.WriteString("\n)")

	return b.String(), nil
}

// GenerateCreateTables renders one statement per table, in input order.
func GenerateCreateTables(d Dialect, tables []model.RequiredTable) ([]string, error) {
	stmts := make([]string, 0, len(tables))
	for _, t := range tables {
		stmt, err := GenerateCreateTable(d, t)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// GenerateAddColumn renders an ALTER TABLE statement adding col to an
// existing table. The column is always added as nullable since existing rows
// have no value for it.
func GenerateAddColumn(d Dialect, table string, col model.RequiredColumn) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("table: %w", err)
	}
	if err := ValidateIdentifier(col.Name); err != nil {
		return "", fmt.Errorf("table %q: column: %w", table, err)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		d.QualifyTable(table),
		d.QuoteIdentifier(col.Name),
		d.ColumnType(ParseColumnType(string(col.Type))),
	), nil
}

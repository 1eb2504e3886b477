package model

// ColumnType is the semantic column type shared by introspected schemas and
// declared action requirements. Raw database types are normalized into this
// set; DDL generation maps it back to a dialect-specific type.
type ColumnType string

const (
	TypeText      ColumnType = "TEXT"
	TypeInteger   ColumnType = "INTEGER"
	TypeReal      ColumnType = "REAL"
	TypeNumeric   ColumnType = "NUMERIC"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeDate      ColumnType = "DATE"
	TypeJSON      ColumnType = "JSON"
	TypeUUID      ColumnType = "UUID"
	TypeBlob      ColumnType = "BLOB"
)

// DbSchema is the normalized introspection result for the workbook database.
// Table names are unique within a DbSchema.
type DbSchema struct {
	Tables []Table `json:"tables"`
}

// Table describes a single live table. Column names are unique within a table.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Column describes a single live column.
type Column struct {
	Name         string     `json:"name"`
	Position     int        `json:"position"`
	Type         ColumnType `json:"type"`
	DBType       string     `json:"db_type"`
	Nullable     bool       `json:"nullable"`
	Default      *string    `json:"default,omitempty"`
	IsPrimaryKey bool       `json:"is_primary_key"`
}

// Table looks up a table by exact, case-sensitive name.
func (s DbSchema) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Column looks up a column by exact, case-sensitive name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnRow is one row of the raw introspection query, the form returned by
// GET /postgres/schema and consumed by the schema normalizer.
type ColumnRow struct {
	TableName     string  `json:"table_name" db:"table_name"`
	ColumnName    string  `json:"column_name" db:"column_name"`
	DataType      string  `json:"data_type" db:"data_type"`
	IsNullable    string  `json:"is_nullable" db:"is_nullable"`
	ColumnDefault *string `json:"column_default" db:"column_default"`
	IsPrimaryKey  bool    `json:"is_primary_key" db:"is_primary_key"`
}

// ActionSchema is the set of tables and columns an action or source needs to
// exist. It is declared by the definition author and is usually a subset of
// the live schema.
type ActionSchema struct {
	Tables []RequiredTable `json:"tables" yaml:"tables" validate:"dive"`
}

// RequiredTable is a table an action depends on.
type RequiredTable struct {
	Name    string           `json:"name" yaml:"name" validate:"required,sqlident"`
	Columns []RequiredColumn `json:"columns" yaml:"columns" validate:"dive"`
}

// RequiredColumn is a column an action depends on. Optional columns may be
// absent without failing validation. NotNull only affects generated DDL.
type RequiredColumn struct {
	Name     string     `json:"name" yaml:"name" validate:"required,sqlident"`
	Type     ColumnType `json:"type" yaml:"type"`
	Optional bool       `json:"optional,omitempty" yaml:"optional,omitempty"`
	NotNull  bool       `json:"not_null,omitempty" yaml:"not_null,omitempty"`
}

// IsEmpty reports whether the schema declares no tables.
func (s ActionSchema) IsEmpty() bool {
	return len(s.Tables) == 0
}

// MissingColumn identifies a required column absent from an existing table.
type MissingColumn struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ValidationResult is the outcome of checking an ActionSchema against a
// DbSchema. It is derived on every call and never persisted.
type ValidationResult struct {
	Valid          bool            `json:"valid"`
	MissingTables  []string        `json:"missing_tables"`
	MissingColumns []MissingColumn `json:"missing_columns"`
	Errors         []string        `json:"errors"`
}

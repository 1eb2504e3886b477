package schema

import (
	"strings"

	"github.com/handsdb/hands/internal/model"
)

// dbTypeToColumnType maps raw database column types to semantic column types
// (case-insensitive lookup after NormalizeType strips modifiers).
var dbTypeToColumnType = map[string]model.ColumnType{
	// Integer types
	"int":       model.TypeInteger,
	"int2":      model.TypeInteger,
	"int4":      model.TypeInteger,
	"int8":      model.TypeInteger,
	"integer":   model.TypeInteger,
	"bigint":    model.TypeInteger,
	"smallint":  model.TypeInteger,
	"tinyint":   model.TypeInteger,
	"serial":    model.TypeInteger,
	"bigserial": model.TypeInteger,
	"oid":       model.TypeInteger,

	// Float types
	"float":            model.TypeReal,
	"float4":           model.TypeReal,
	"float8":           model.TypeReal,
	"double":           model.TypeReal,
	"double precision": model.TypeReal,
	"real":             model.TypeReal,

	// Exact numerics
	"decimal": model.TypeNumeric,
	"numeric": model.TypeNumeric,
	"money":   model.TypeNumeric,

	// String types
	"varchar":           model.TypeText,
	"char":              model.TypeText,
	"character":         model.TypeText,
	"character varying": model.TypeText,
	"text":              model.TypeText,
	"citext":            model.TypeText,
	"name":              model.TypeText,

	// Date/time types
	"date":                        model.TypeDate,
	"datetime":                    model.TypeTimestamp,
	"timestamp":                   model.TypeTimestamp,
	"timestamptz":                 model.TypeTimestamp,
	"timestamp with time zone":    model.TypeTimestamp,
	"timestamp without time zone": model.TypeTimestamp,

	// Boolean
	"boolean": model.TypeBoolean,
	"bool":    model.TypeBoolean,

	// Binary
	"bytea": model.TypeBlob,
	"blob":  model.TypeBlob,

	// UUID
	"uuid": model.TypeUUID,

	// JSON
	"json":  model.TypeJSON,
	"jsonb": model.TypeJSON,
}

// NormalizeType converts a raw database column type into a semantic column
// type. Falls back to TEXT for unknown types.
func NormalizeType(dbType string) model.ColumnType {
	normalized := strings.ToLower(strings.TrimSpace(dbType))

	// "varchar(255)" -> "varchar"
	if idx := strings.IndexByte(normalized, '('); idx >= 0 {
		normalized = normalized[:idx]
	}
	normalized = strings.TrimSuffix(normalized, " unsigned")
	normalized = strings.TrimSpace(normalized)
	normalized = strings.TrimSuffix(normalized, "[]")

	if t, ok := dbTypeToColumnType[normalized]; ok {
		return t
	}
	return model.TypeText
}

// ParseColumnType accepts a declared column type, either a semantic name
// ("integer", "TEXT") or a raw database type ("varchar(40)"). Empty means TEXT.
func ParseColumnType(s string) model.ColumnType {
	switch ct := model.ColumnType(strings.ToUpper(strings.TrimSpace(s))); ct {
	case model.TypeText, model.TypeInteger, model.TypeReal, model.TypeNumeric,
		model.TypeBoolean, model.TypeTimestamp, model.TypeDate, model.TypeJSON,
		model.TypeUUID, model.TypeBlob:
		return ct
	}
	return NormalizeType(s)
}

// FromColumnRows groups raw introspection rows into a DbSchema. Tables keep
// the order in which they first appear; a repeated (table, column) pair is
// ignored after its first occurrence.
func FromColumnRows(rows []model.ColumnRow) model.DbSchema {
	db := model.DbSchema{Tables: []model.Table{}}
	index := make(map[string]int)
	seen := make(map[string]map[string]bool)

	for _, r := range rows {
		i, ok := index[r.TableName]
		if !ok {
			i = len(db.Tables)
			index[r.TableName] = i
			seen[r.TableName] = make(map[string]bool)
			db.Tables = append(db.Tables, model.Table{Name: r.TableName, Columns: []model.Column{}})
		}
		if seen[r.TableName][r.ColumnName] {
			continue
		}
		seen[r.TableName][r.ColumnName] = true

		t := &db.Tables[i]
		t.Columns = append(t.Columns, model.Column{
			Name:         r.ColumnName,
			Position:     len(t.Columns) + 1,
			Type:         NormalizeType(r.DataType),
			DBType:       r.DataType,
			Nullable:     strings.EqualFold(r.IsNullable, "YES"),
			Default:      r.ColumnDefault,
			IsPrimaryKey: r.IsPrimaryKey,
		})
	}
	return db
}

package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/handsdb/hands/internal/model"
)

// TypeMapping maps a workbook column type to an OpenAPI type/format pair.
type TypeMapping struct {
	Type   string // OpenAPI type: string, integer, number, boolean, object
	Format string // OpenAPI format: int64, double, date, date-time, uuid, byte
}

var columnTypeToOpenAPI = map[model.ColumnType]TypeMapping{
	model.TypeText:      {"string", ""},
	model.TypeInteger:   {"integer", "int64"},
	model.TypeReal:      {"number", "double"},
	model.TypeNumeric:   {"number", "double"},
	model.TypeBoolean:   {"boolean", ""},
	model.TypeTimestamp: {"string", "date-time"},
	model.TypeDate:      {"string", "date"},
	model.TypeJSON:      {"object", ""},
	model.TypeUUID:      {"string", "uuid"},
	model.TypeBlob:      {"string", "byte"},
}

// MapColumnType converts a workbook column type to an OpenAPI type mapping.
// Falls back to {"string", ""} for unknown types.
func MapColumnType(t model.ColumnType) TypeMapping {
	if m, ok := columnTypeToOpenAPI[t]; ok {
		return m
	}
	return TypeMapping{"string", ""}
}

func columnTypeSchema(m TypeMapping) *openapi3.Schema {
	s := &openapi3.Schema{
		Type: &openapi3.Types{m.Type},
	}
	if m.Format != "" {
		s.Format = m.Format
	}
	return s
}

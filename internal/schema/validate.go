package schema

import (
	"fmt"
	"strings"

	"github.com/handsdb/hands/internal/model"
)

// ValidateSchema checks that every table and non-optional column declared in
// required exists in db. Lookups are exact and case-sensitive. Columns of a
// missing table are not reported individually. Table errors come first, then
// column errors, each in declaration order.
func ValidateSchema(required model.ActionSchema, db model.DbSchema) model.ValidationResult {
	result := model.ValidationResult{
		MissingTables:  []string{},
		MissingColumns: []model.MissingColumn{},
		Errors:         []string{},
	}

	// Index live tables by name for fast lookup.
	live := make(map[string]map[string]struct{}, len(db.Tables))
	for _, t := range db.Tables {
		cols := make(map[string]struct{}, len(t.Columns))
		for _, c := range t.Columns {
			cols[c.Name] = struct{}{}
		}
		live[t.Name] = cols
	}

	var columnErrors []string
	for _, rt := range required.Tables {
		cols, exists := live[rt.Name]
		if !exists {
			result.MissingTables = append(result.MissingTables, rt.Name)
			result.Errors = append(result.Errors, fmt.Sprintf("Table \"%s\" does not exist", rt.Name))
			continue
		}

		for _, rc := range rt.Columns {
			if _, ok := cols[rc.Name]; ok || rc.Optional {
				continue
			}
			result.MissingColumns = append(result.MissingColumns, model.MissingColumn{
				Table:  rt.Name,
				Column: rc.Name,
			})
			columnErrors = append(columnErrors, fmt.Sprintf("Column \"%s.%s\" does not exist", rt.Name, rc.Name))
		}
	}

	result.Errors = append(result.Errors, columnErrors...)
	result.Valid = len(result.MissingTables) == 0 && len(result.MissingColumns) == 0
	return result
}

// ValidationError is returned by AssertSchema when a declaration does not
// match the live schema.
type ValidationError struct {
	Result model.ValidationResult
}

func (e *ValidationError) Error() string {
	return "schema validation failed: " + strings.Join(e.Result.Errors, "; ")
}

// AssertSchema is ValidateSchema for call sites that want to fail fast.
func AssertSchema(required model.ActionSchema, db model.DbSchema) error {
	result := ValidateSchema(required, db)
	if result.Valid {
		return nil
	}
	return &ValidationError{Result: result}
}

package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/handsdb/hands/internal/model"
)

// Execer is the subset of *sqlx.DB needed to apply DDL.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PlanProvision returns the statements that would bring db in line with
// required: CREATE TABLE for each missing table, ADD COLUMN for each missing
// non-optional column of an existing table.
func PlanProvision(d Dialect, required model.ActionSchema, db model.DbSchema) ([]string, error) {
	var stmts []string
	for _, rt := range required.Tables {
		live, ok := db.Table(rt.Name)
		if !ok {
			stmt, err := GenerateCreateTable(d, rt)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
			continue
		}
		for _, rc := range rt.Columns {
			if rc.Optional {
				continue
			}
			if _, exists := live.Column(rc.Name); exists {
				continue
			}
			stmt, err := GenerateAddColumn(d, rt.Name, rc)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

// Provision applies PlanProvision's statements in order and returns those
// that were executed. It stops at the first failing statement.
func Provision(ctx context.Context, exec Execer, d Dialect, required model.ActionSchema, db model.DbSchema) ([]string, error) {
	stmts, err := PlanProvision(d, required, db)
	if err != nil {
		return nil, fmt.Errorf("plan provision: %w", err)
	}
	for i, stmt := range stmts {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return stmts[:i], fmt.Errorf("provision: %w", err)
		}
	}
	return stmts, nil
}

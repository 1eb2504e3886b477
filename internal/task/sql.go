package task

import (
	"context"
	"fmt"
)

// sqlConfig is the config of the "sql" kind.
type sqlConfig struct {
	Statements []string `mapstructure:"statements"`
	Query      string   `mapstructure:"query"`
}

// SQL runs statements in order against the workbook database and, when a
// query is configured, returns its rows as the run result.
type SQL struct {
	cfg sqlConfig
}

// NewSQL is the Factory for the "sql" kind.
func NewSQL(config map[string]interface{}) (Handler, error) {
	var cfg sqlConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Statements) == 0 && cfg.Query == "" {
		return nil, fmt.Errorf("at least one of statements or query is required")
	}
	return &SQL{cfg: cfg}, nil
}

// Run executes the configured statements, then the query.
func (h *SQL) Run(ctx context.Context, env *Env) (interface{}, error) {
	if env.Conn == nil || env.Conn.DB() == nil {
		return nil, fmt.Errorf("sql handler requires a workbook database")
	}
	db := env.Conn.DB()

	var affected int64
	for i, stmt := range h.cfg.Statements {
		res, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
			env.Log.Info("statement executed", "index", i+1, "rows_affected", n)
		}
	}

	if h.cfg.Query == "" {
		return map[string]interface{}{"rows_affected": affected}, nil
	}

	rows, err := db.QueryxContext(ctx, h.cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	results := []map[string]interface{}{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	env.Log.Info("query returned rows", "count", len(results))
	return results, nil
}

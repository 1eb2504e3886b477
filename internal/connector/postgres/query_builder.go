package postgres

import "github.com/handsdb/hands/internal/connector"

// BuildUpsert constructs a single-row INSERT with $n placeholders, schema
// qualified, upserting on req.Key when set.
func (c *PostgresConnector) BuildUpsert(req connector.UpsertRequest) (string, error) {
	return connector.BuildUpsertSQL(c, c.ParameterPlaceholder, req)
}

// Package connector wraps the workbook database behind a small driver
// interface: connection management, schema introspection, and the SQL
// dialect needed for DDL and record writes.
package connector

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/schema"
)

// ConnectionConfig holds database connection parameters.
type ConnectionConfig struct {
	Driver          string
	DSN             string
	SchemaName      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// UpsertRequest describes a single-row write. When Key is set the row
// replaces any existing row with the same key value.
type UpsertRequest struct {
	Table   string
	Columns []string
	Key     string
}

// Connector is the interface that all workbook database connectors implement.
type Connector interface {
	schema.Dialect

	// Connection management
	Connect(cfg ConnectionConfig) error
	Disconnect() error
	Ping(ctx context.Context) error
	DB() *sqlx.DB

	// Schema introspection
	ColumnRows(ctx context.Context) ([]model.ColumnRow, error)
	IntrospectSchema(ctx context.Context) (*model.DbSchema, error)

	// Record writes
	BuildUpsert(req UpsertRequest) (string, error)

	// Metadata
	DriverName() string
	ParameterPlaceholder(index int) string
}

// SanitizeDSN ensures that URL-style Postgres DSNs have their userinfo
// percent-encoded. Raw passwords containing @, # or % otherwise make the URL
// parser mis-split the authority. Other drivers are returned unchanged.
func SanitizeDSN(driver, dsn string) string {
	if driver != "postgres" {
		return dsn
	}

	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn // key=value DSN
	}
	scheme, rest := dsn[:schemeEnd], dsn[schemeEnd+3:]

	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query, rest = rest[qi:], rest[:qi]
	}

	// Everything before the LAST '@' is userinfo.
	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn
	}
	userinfo, hostpath := rest[:atIdx], rest[atIdx+1:]

	user, pass, hasPass := strings.Cut(userinfo, ":")
	if !hasPass {
		return scheme + "://" + url.PathEscape(user) + "@" + hostpath + query
	}
	return scheme + "://" + url.PathEscape(user) + ":" + url.PathEscape(pass) + "@" + hostpath + query
}

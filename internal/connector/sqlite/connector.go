package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/model"
)

// SQLiteConnector implements connector.Connector for an embedded SQLite
// workbook database.
type SQLiteConnector struct {
	db *sqlx.DB
}

// New creates a new SQLiteConnector.
func New() connector.Connector {
	return &SQLiteConnector{}
}

// Connect opens a connection to the SQLite database file specified in the DSN.
// The DSN should be a file path (e.g., "/path/to/db.sqlite") or ":memory:"
// for an in-memory database. Query parameters like ?_journal_mode=WAL are supported.
func (c *SQLiteConnector) Connect(cfg connector.ConnectionConfig) error {
	db, err := sqlx.Connect("sqlite", cfg.DSN)
	if err != nil {
		return fmt.Errorf("sqlite connect: %w", err)
	}

	// Each new connection to ":memory:" opens a separate, empty database.
	if strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	c.db = db
	return nil
}

// Disconnect closes the database connection.
func (c *SQLiteConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *SQLiteConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB connection pool.
func (c *SQLiteConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the driver identifier for SQLite.
func (c *SQLiteConnector) DriverName() string { return "sqlite" }

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double quotes to prevent SQL injection.
func (c *SQLiteConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifyTable returns the quoted table name. SQLite has a single schema.
func (c *SQLiteConnector) QualifyTable(name string) string {
	return c.QuoteIdentifier(name)
}

// ColumnType maps a semantic column type to a SQLite declared type. The
// names are chosen so that introspection normalizes them back unchanged.
func (c *SQLiteConnector) ColumnType(t model.ColumnType) string {
	switch t {
	case model.TypeInteger, model.TypeReal, model.TypeNumeric, model.TypeBoolean,
		model.TypeTimestamp, model.TypeDate, model.TypeJSON, model.TypeUUID, model.TypeBlob:
		return string(t)
	default:
		return "TEXT"
	}
}

// AutoIncrementKey returns INTEGER; an INTEGER PRIMARY KEY aliases the rowid.
func (c *SQLiteConnector) AutoIncrementKey() string { return "INTEGER" }

// ParameterPlaceholder returns a SQLite-style positional parameter
// placeholder (?). SQLite ignores the index.
func (c *SQLiteConnector) ParameterPlaceholder(_ int) string {
	return "?"
}

// BuildUpsert constructs a single-row INSERT with ? placeholders, upserting
// on req.Key when set.
func (c *SQLiteConnector) BuildUpsert(req connector.UpsertRequest) (string, error) {
	return connector.BuildUpsertSQL(c, c.ParameterPlaceholder, req)
}

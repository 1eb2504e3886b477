package sqlite

import (
	"context"
	"strings"
	"testing"

	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/schema"
)

// newTestConnector opens an in-memory SQLite workbook database.
func newTestConnector(t *testing.T) *SQLiteConnector {
	t.Helper()
	c := &SQLiteConnector{}
	if err := c.Connect(connector.ConnectionConfig{Driver: "sqlite", DSN: ":memory:"}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Disconnect() })
	return c
}

func TestIntrospectSchema(t *testing.T) {
	c := newTestConnector(t)
	ctx := context.Background()

	_, err := c.DB().ExecContext(ctx, `CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		name TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.DB().ExecContext(ctx, `CREATE TABLE orders (id INTEGER PRIMARY KEY, total NUMERIC)`); err != nil {
		t.Fatal(err)
	}

	db, err := c.IntrospectSchema(ctx)
	if err != nil {
		t.Fatalf("IntrospectSchema: %v", err)
	}
	if len(db.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(db.Tables))
	}

	users, ok := db.Table("users")
	if !ok {
		t.Fatal("users table missing")
	}
	if len(users.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(users.Columns))
	}
	id := users.Columns[0]
	if id.Name != "id" || !id.IsPrimaryKey || id.Nullable || id.Type != model.TypeInteger {
		t.Errorf("unexpected id column: %+v", id)
	}
	email, _ := users.Column("email")
	if email.Nullable || email.Type != model.TypeText || email.DBType != "VARCHAR(255)" {
		t.Errorf("unexpected email column: %+v", email)
	}
	name, _ := users.Column("name")
	if !name.Nullable {
		t.Error("name should be nullable")
	}
	createdAt, _ := users.Column("created_at")
	if createdAt.Type != model.TypeTimestamp || createdAt.Default == nil {
		t.Errorf("unexpected created_at column: %+v", createdAt)
	}
}

func TestColumnRows_Empty(t *testing.T) {
	c := newTestConnector(t)
	rows, err := c.ColumnRows(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("expected empty non-nil rows, got %#v", rows)
	}
}

func TestProvisionRoundTrip(t *testing.T) {
	c := newTestConnector(t)
	ctx := context.Background()

	req := model.ActionSchema{Tables: []model.RequiredTable{
		{Name: "contacts", Columns: []model.RequiredColumn{
			{Name: "email", Type: model.TypeText, NotNull: true},
			{Name: "score", Type: model.TypeReal},
			{Name: "tags", Type: model.TypeJSON, Optional: true},
		}},
	}}

	before, err := c.IntrospectSchema(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if schema.ValidateSchema(req, *before).Valid {
		t.Fatal("expected invalid before provisioning")
	}

	stmts, err := schema.Provision(ctx, c.DB(), c, req, *before)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %v", stmts)
	}

	after, err := c.IntrospectSchema(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result := schema.ValidateSchema(req, *after); !result.Valid {
		t.Fatalf("expected valid after provisioning, got %v", result.Errors)
	}
	contacts, _ := after.Table("contacts")
	for _, col := range contacts.Columns {
		if col.Name == "score" && col.Type != model.TypeReal {
			t.Errorf("score type = %s", col.Type)
		}
		if col.Name == "tags" && col.Type != model.TypeJSON {
			t.Errorf("tags type = %s", col.Type)
		}
	}

	// Provisioning again is a no-op.
	again, err := schema.Provision(ctx, c.DB(), c, req, *after)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("expected no statements, got %v", again)
	}
}

func TestBuildUpsertExecutes(t *testing.T) {
	c := newTestConnector(t)
	ctx := context.Background()

	if _, err := c.DB().ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatal(err)
	}

	stmt, err := c.BuildUpsert(connector.UpsertRequest{Table: "users", Columns: []string{"id", "name"}, Key: "id"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(stmt, "$") {
		t.Errorf("SQLite should use ? placeholders, got: %s", stmt)
	}

	for _, name := range []string{"Ada", "Grace"} {
		if _, err := c.DB().ExecContext(ctx, stmt, 1, name); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	var got string
	if err := c.DB().GetContext(ctx, &got, `SELECT name FROM users WHERE id = 1`); err != nil {
		t.Fatal(err)
	}
	if got != "Grace" {
		t.Errorf("expected upsert to replace name, got %q", got)
	}
}

func TestSQLiteDialect(t *testing.T) {
	c := &SQLiteConnector{}
	if got := c.QualifyTable("users"); got != `"users"` {
		t.Errorf("QualifyTable = %s", got)
	}
	if got := c.ColumnType(model.TypeTimestamp); got != "TIMESTAMP" {
		t.Errorf("ColumnType(TIMESTAMP) = %s", got)
	}
	if got := c.ColumnType(""); got != "TEXT" {
		t.Errorf("ColumnType(empty) = %s", got)
	}
	if c.ParameterPlaceholder(7) != "?" {
		t.Error("expected ? placeholder")
	}
}

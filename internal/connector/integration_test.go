package connector_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/connector/postgres"
	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/schema"
)

func TestMain(m *testing.M) {
	if os.Getenv("HANDS_INTEGRATION") == "" {
		fmt.Println("skipping integration tests: set HANDS_INTEGRATION=1 and HANDS_TEST_POSTGRES_DSN to run")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("HANDS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HANDS_TEST_POSTGRES_DSN not set")
	}

	r := connector.NewRegistry()
	r.RegisterDriver("postgres", postgres.New)

	conn, err := r.Open(connector.ConnectionConfig{Driver: "postgres", DSN: dsn, SchemaName: "public"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	table := fmt.Sprintf("hands_it_%d", time.Now().UnixNano())
	req := model.ActionSchema{Tables: []model.RequiredTable{{
		Name: table,
		Columns: []model.RequiredColumn{
			{Name: "email", Type: model.TypeText, NotNull: true},
			{Name: "payload", Type: model.TypeJSON},
		},
	}}}
	t.Cleanup(func() {
		conn.DB().Exec("DROP TABLE IF EXISTS " + conn.QualifyTable(table))
	})

	t.Run("Ping", func(t *testing.T) {
		if err := conn.Ping(ctx); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	})

	t.Run("Provision", func(t *testing.T) {
		before, err := conn.IntrospectSchema(ctx)
		if err != nil {
			t.Fatalf("IntrospectSchema failed: %v", err)
		}
		if _, err := schema.Provision(ctx, conn.DB(), conn, req, *before); err != nil {
			t.Fatalf("Provision failed: %v", err)
		}
	})

	t.Run("IntrospectSchema", func(t *testing.T) {
		db, err := conn.IntrospectSchema(ctx)
		if err != nil {
			t.Fatalf("IntrospectSchema failed: %v", err)
		}
		if result := schema.ValidateSchema(req, *db); !result.Valid {
			t.Fatalf("expected provisioned table to validate: %v", result.Errors)
		}
		tbl, _ := db.Table(table)
		id, ok := tbl.Column("id")
		if !ok || !id.IsPrimaryKey {
			t.Errorf("expected synthesized primary key, got %+v", id)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		stmt, err := conn.BuildUpsert(connector.UpsertRequest{Table: table, Columns: []string{"id", "email"}, Key: "id"})
		if err != nil {
			t.Fatal(err)
		}
		for _, email := range []string{"a@example.com", "b@example.com"} {
			if _, err := conn.DB().ExecContext(ctx, stmt, 1, email); err != nil {
				t.Fatalf("exec upsert: %v", err)
			}
		}
		var n int
		if err := conn.DB().GetContext(ctx, &n, "SELECT COUNT(*) FROM "+conn.QualifyTable(table)); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected 1 row after upsert, got %d", n)
		}
	})
}

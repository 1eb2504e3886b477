package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/connector/sqlite"
	"github.com/handsdb/hands/internal/model"
)

// newTestEnv opens an in-memory SQLite workbook database.
func newTestEnv(t *testing.T) *Env {
	t.Helper()
	conn := sqlite.New()
	if err := conn.Connect(connector.ConnectionConfig{Driver: "sqlite", DSN: ":memory:"}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { conn.Disconnect() })
	return &Env{
		SourceID: "test",
		Conn:     conn,
		Secrets:  map[string]string{},
		Log:      NewRunLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

func TestRegistryBuild(t *testing.T) {
	r := Builtins()

	if got := r.Kinds(); len(got) != 2 || got[0] != "http_json" || got[1] != "sql" {
		t.Errorf("Kinds() = %v", got)
	}

	_, err := r.Build("ftp", nil)
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}

	_, err = r.Build("sql", map[string]interface{}{})
	if err == nil || !strings.Contains(err.Error(), "sql config") {
		t.Errorf("expected config error, got %v", err)
	}

	_, err = r.Build("sql", map[string]interface{}{"query": "SELECT 1", "bogus": true})
	if err == nil {
		t.Error("expected unknown config key to be rejected")
	}

	r.Register("noop", func(map[string]interface{}) (Handler, error) {
		return HandlerFunc(func(context.Context, *Env) (interface{}, error) { return "ok", nil }), nil
	})
	h, err := r.Build("noop", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := h.Run(context.Background(), &Env{}); got != "ok" {
		t.Errorf("Run() = %v", got)
	}
}

func TestRunLogger(t *testing.T) {
	l := NewRunLogger(nil)
	l.Info("first")
	l.Warn("second", "rows", 3)
	l.Error("third", "dangling")

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []model.LogEntry{
		{Level: model.LevelInfo, Message: "first"},
		{Level: model.LevelWarn, Message: "second rows=3"},
		{Level: model.LevelError, Message: "third dangling"},
	}
	for i, w := range want {
		if entries[i].Level != w.Level || entries[i].Message != w.Message {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], w)
		}
		if entries[i].Timestamp.IsZero() {
			t.Errorf("entry %d has no timestamp", i)
		}
	}

	entries[0].Message = "mutated"
	if l.Entries()[0].Message != "first" {
		t.Error("Entries should return a copy")
	}

	var nilLogger *RunLogger
	nilLogger.Info("discarded")
	if len(nilLogger.Entries()) != 0 {
		t.Error("nil logger should have no entries")
	}
}

func TestSQLHandler(t *testing.T) {
	env := newTestEnv(t)

	h, err := NewSQL(map[string]interface{}{
		"statements": []interface{}{
			"CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER)",
			"INSERT INTO kv (k, v) VALUES ('a', 1), ('b', 2)",
		},
		"query": "SELECT k, v FROM kv ORDER BY k",
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := h.Run(context.Background(), env)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rows, ok := result.([]map[string]interface{})
	if !ok || len(rows) != 2 {
		t.Fatalf("unexpected result %#v", result)
	}
	if rows[0]["k"] != "a" || rows[1]["v"] != int64(2) {
		t.Errorf("unexpected rows %v", rows)
	}
	if len(env.Log.Entries()) == 0 {
		t.Error("expected run logs")
	}
}

func TestSQLHandler_StatementError(t *testing.T) {
	env := newTestEnv(t)
	h, err := NewSQL(map[string]interface{}{"statements": []interface{}{"SELECT 1", "NOT SQL"}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.Run(context.Background(), env)
	if err == nil || !strings.Contains(err.Error(), "statement 2") {
		t.Errorf("expected statement 2 error, got %v", err)
	}
}

func TestHTTPJSONConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
		errMsg string
	}{
		{"missing url", map[string]interface{}{"table": "t", "columns": map[string]interface{}{"a": "a"}}, "url is required"},
		{"missing table", map[string]interface{}{"url": "http://x", "columns": map[string]interface{}{"a": "a"}}, "table is required"},
		{"missing columns", map[string]interface{}{"url": "http://x", "table": "t"}, "columns mapping"},
		{"unmapped key", map[string]interface{}{"url": "http://x", "table": "t", "columns": map[string]interface{}{"a": "a"}, "key": "id"}, "key \"id\""},
		{"bad duration", map[string]interface{}{"url": "http://x", "table": "t", "columns": map[string]interface{}{"a": "a"}, "timeout": "soon"}, "decode config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPJSON(tt.config)
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestHTTPJSONHandler(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"items":[
			{"id": 1, "email": "ada@example.com", "profile": {"name": "Ada"}},
			{"id": 2, "email": "grace@example.com", "profile": {"name": "Grace"}},
			{"id": 1, "email": "ada@new.example.com", "profile": {"name": "Ada L"}}
		]}}`)
	}))
	defer srv.Close()

	env := newTestEnv(t)
	env.Secrets["API_TOKEN"] = "s3cret"
	if _, err := env.Conn.DB().Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT, name TEXT)`); err != nil {
		t.Fatal(err)
	}

	h, err := NewHTTPJSON(map[string]interface{}{
		"url":          srv.URL + "/users",
		"headers":      map[string]interface{}{"Authorization": "Bearer ${API_TOKEN}"},
		"records_path": "data.items",
		"table":        "users",
		"columns":      map[string]interface{}{"id": "id", "email": "email", "name": "profile.name"},
		"key":          "id",
		"retry":        map[string]interface{}{"attempts": 3, "delay": "1ms"},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := h.Run(context.Background(), env)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := result.(map[string]interface{})
	if got["fetched"] != 3 || got["written"] != 3 {
		t.Errorf("unexpected result %v", got)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected one retry, got %d calls", atomic.LoadInt32(&calls))
	}

	var count int
	env.Conn.DB().Get(&count, `SELECT COUNT(*) FROM users`)
	if count != 2 {
		t.Errorf("expected 2 rows after upsert, got %d", count)
	}
	var name string
	env.Conn.DB().Get(&name, `SELECT name FROM users WHERE id = 1`)
	if name != "Ada L" {
		t.Errorf("expected upserted name, got %q", name)
	}
}

func TestHTTPJSONHandler_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	env := newTestEnv(t)
	h, err := NewHTTPJSON(map[string]interface{}{
		"url":     srv.URL,
		"table":   "users",
		"columns": map[string]interface{}{"email": "email"},
		"retry":   map[string]interface{}{"attempts": 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.Run(context.Background(), env)
	if err == nil || !strings.Contains(err.Error(), "unexpected status 404") {
		t.Errorf("expected 404 error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("4xx should not be retried, got %d calls", atomic.LoadInt32(&calls))
	}
}

func TestExtractRecords(t *testing.T) {
	obj := map[string]interface{}{"a": map[string]interface{}{"b": []interface{}{1, 2}}}

	recs, err := extractRecords(obj, "a.b")
	if err != nil || len(recs) != 2 {
		t.Errorf("a.b -> %v, %v", recs, err)
	}
	recs, err = extractRecords(obj, "")
	if err != nil || len(recs) != 1 {
		t.Errorf("root object -> %v, %v", recs, err)
	}
	if _, err := extractRecords(obj, "a.c"); err == nil {
		t.Error("expected missing path error")
	}
	if _, err := extractRecords("text", ""); err == nil {
		t.Error("expected type error")
	}
}

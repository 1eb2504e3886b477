package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestActionRunJSONFlattensResult(t *testing.T) {
	run := ActionRun{
		ID:        7,
		RunID:     "0190b5a2-run",
		ActionID:  "hacker-news",
		Trigger:   TriggerSchedule,
		StartedAt: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
		SyncResult: SyncResult{
			Success:    false,
			Error:      "boom",
			DurationMs: 42,
			Logs:       []LogEntry{{Level: LevelError, Message: "boom"}},
		},
	}

	b, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	for _, key := range []string{"run_id", "action_id", "trigger", "started_at", "success", "error", "duration_ms", "logs"} {
		if _, ok := m[key]; !ok {
			t.Errorf("expected %q key in ActionRun JSON", key)
		}
	}
	if _, ok := m["SyncResult"]; ok {
		t.Error("SyncResult should be embedded, not nested")
	}
	if _, ok := m["result"]; ok {
		t.Error("result should be omitted when nil")
	}
	if m["duration_ms"] != float64(42) {
		t.Errorf("duration_ms = %v, want 42", m["duration_ms"])
	}
}

func TestActionRunStatus(t *testing.T) {
	ok := ActionRun{SyncResult: SyncResult{Success: true}}
	if got := ok.Status(); got != "success" {
		t.Errorf("Status() = %q, want success", got)
	}
	failed := ActionRun{}
	if got := failed.Status(); got != "failed" {
		t.Errorf("Status() = %q, want failed", got)
	}
}

func TestDbSchemaLookup(t *testing.T) {
	db := DbSchema{Tables: []Table{
		{Name: "stories", Columns: []Column{
			{Name: "id", Type: TypeInteger, IsPrimaryKey: true},
			{Name: "title", Type: TypeText, Nullable: true},
		}},
	}}

	tests := []struct {
		table, column string
		wantTable     bool
		wantColumn    bool
	}{
		{"stories", "id", true, true},
		{"stories", "url", true, false},
		{"Stories", "id", false, false},
		{"comments", "id", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.table+"."+tt.column, func(t *testing.T) {
			tbl, ok := db.Table(tt.table)
			if ok != tt.wantTable {
				t.Fatalf("Table(%q) ok = %v, want %v", tt.table, ok, tt.wantTable)
			}
			if !ok {
				return
			}
			if _, ok := tbl.Column(tt.column); ok != tt.wantColumn {
				t.Errorf("Column(%q) ok = %v, want %v", tt.column, ok, tt.wantColumn)
			}
		})
	}
}

func TestActionSchemaIsEmpty(t *testing.T) {
	if !(ActionSchema{}).IsEmpty() {
		t.Error("zero ActionSchema should be empty")
	}
	s := ActionSchema{Tables: []RequiredTable{{Name: "stories"}}}
	if s.IsEmpty() {
		t.Error("schema with a table should not be empty")
	}
}

func TestRequiredColumnOmitsFalseFlags(t *testing.T) {
	b, err := json.Marshal(RequiredColumn{Name: "id", Type: TypeInteger})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"name":"id","type":"INTEGER"}` {
		t.Errorf("JSON = %s", b)
	}
}

func TestListResponseJSON(t *testing.T) {
	lr := ListResponse{
		Resource: []ActionRun{{RunID: "a"}, {RunID: "b"}},
		Meta:     &ResponseMeta{Count: 2, Limit: 50, TookMs: 1.5},
	}

	b, err := json.Marshal(lr)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	resource, ok := m["resource"].([]interface{})
	if !ok || len(resource) != 2 {
		t.Fatalf("resource = %v, want 2-element array", m["resource"])
	}
	meta, ok := m["meta"].(map[string]interface{})
	if !ok {
		t.Fatal("meta should be an object")
	}
	if meta["count"] != float64(2) || meta["limit"] != float64(50) {
		t.Errorf("meta = %v", meta)
	}

	b2, _ := json.Marshal(ListResponse{Resource: []ActionRun{}})
	var m2 map[string]interface{}
	json.Unmarshal(b2, &m2)
	if _, ok := m2["meta"]; ok {
		t.Error("meta should be omitted when nil")
	}
}

func TestErrorResponseJSON(t *testing.T) {
	er := ErrorResponse{Error: ErrorDetail{
		Code:    404,
		Message: "Source not found",
		Context: map[string]interface{}{"id": "nope"},
	}}

	b, err := json.Marshal(er)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	errObj, ok := m["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected 'error' key to be an object")
	}
	if errObj["code"] != float64(404) {
		t.Errorf("error.code = %v, want 404", errObj["code"])
	}
	if ctx, ok := errObj["context"].(map[string]interface{}); !ok || ctx["id"] != "nope" {
		t.Errorf("error.context = %v", errObj["context"])
	}

	b2, _ := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: 500, Message: "Internal error"}})
	var m2 map[string]interface{}
	json.Unmarshal(b2, &m2)
	if _, ok := m2["error"].(map[string]interface{})["context"]; ok {
		t.Error("context should be omitted when nil")
	}
}

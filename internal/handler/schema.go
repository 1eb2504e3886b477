package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/model"
)

// SchemaHandler serves introspection of the workbook database.
type SchemaHandler struct {
	conn connector.Connector
}

// NewSchemaHandler creates a new SchemaHandler. conn may be nil when no
// workbook database is configured.
func NewSchemaHandler(conn connector.Connector) *SchemaHandler {
	return &SchemaHandler{conn: conn}
}

// RawColumns returns one row per column, as the catalog reports them.
// GET /api/v1/postgres/schema
func (h *SchemaHandler) RawColumns(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	rows, err := h.conn.ColumnRows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to introspect schema: "+err.Error())
		return
	}
	if rows == nil {
		rows = []model.ColumnRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetSchema returns the normalized schema of every base table.
// GET /api/v1/schema
func (h *SchemaHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	db, err := h.conn.IntrospectSchema(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to introspect schema: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// GetTable returns the normalized schema of a single table.
// GET /api/v1/schema/{table}
func (h *SchemaHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	name := chi.URLParam(r, "table")
	db, err := h.conn.IntrospectSchema(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to introspect schema: "+err.Error())
		return
	}
	table, ok := db.Table(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Table not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (h *SchemaHandler) available(w http.ResponseWriter) bool {
	if h.conn == nil {
		writeError(w, http.StatusServiceUnavailable, "No workbook database configured")
		return false
	}
	return true
}

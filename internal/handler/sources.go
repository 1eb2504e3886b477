package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/executor"
	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/schema"
	"github.com/handsdb/hands/internal/source"
)

// RunIDHeader carries the run id of a finished sync.
const RunIDHeader = "X-Run-ID"

// ScheduleView exposes scheduler state to handlers. A nil ScheduleView means
// the scheduler is disabled.
type ScheduleView interface {
	NextRun(id string) (time.Time, bool)
}

// SourceHandler serves the discovered sources and actions and triggers their
// runs.
type SourceHandler struct {
	registry *source.Registry
	exec     *executor.Executor
	conn     connector.Connector
	sched    ScheduleView
	logger   *slog.Logger
}

// NewSourceHandler creates a new SourceHandler. conn and sched may be nil.
func NewSourceHandler(registry *source.Registry, exec *executor.Executor, conn connector.Connector, sched ScheduleView, logger *slog.Logger) *SourceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceHandler{
		registry: registry,
		exec:     exec,
		conn:     conn,
		sched:    sched,
		logger:   logger,
	}
}

type sourceSummary struct {
	ID          string      `json:"id"`
	Type        source.Type `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Kind        string      `json:"kind"`
	Schedule    string      `json:"schedule,omitempty"`
	Secrets     []string    `json:"secrets,omitempty"`
	HasSchema   bool        `json:"has_schema"`
	Running     bool        `json:"running"`
	NextRun     *time.Time  `json:"next_run,omitempty"`
}

type sourceDetail struct {
	sourceSummary
	Path       string            `json:"path"`
	Definition source.Definition `json:"definition"`
}

type sourceList struct {
	Resource []sourceSummary        `json:"resource"`
	Errors   []model.DiscoveryError `json:"errors"`
	LoadedAt time.Time              `json:"loaded_at"`
}

func (h *SourceHandler) summarize(src *source.Source) sourceSummary {
	sum := sourceSummary{
		ID:          src.ID,
		Type:        src.Type,
		Name:        src.Definition.Name,
		Description: src.Definition.Description,
		Kind:        src.Definition.Kind,
		Schedule:    src.Definition.Schedule,
		Secrets:     src.Definition.Secrets,
		HasSchema:   src.HasSchema(),
		Running:     h.exec.IsRunning(src.ID),
	}
	if h.sched != nil {
		if next, ok := h.sched.NextRun(src.ID); ok {
			sum.NextRun = &next
		}
	}
	return sum
}

func (h *SourceHandler) list() sourceList {
	srcs := h.registry.List()
	out := sourceList{
		Resource: make([]sourceSummary, 0, len(srcs)),
		Errors:   h.registry.Errors(),
		LoadedAt: h.registry.LoadedAt(),
	}
	for _, src := range srcs {
		out.Resource = append(out.Resource, h.summarize(src))
	}
	if out.Errors == nil {
		out.Errors = []model.DiscoveryError{}
	}
	return out
}

// ListSources returns every discovered source and action with the files that
// failed to load.
// GET /api/v1/sources
func (h *SourceHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.list())
}

// ReloadSources rescans the workbook and replaces the registry contents.
// POST /api/v1/sources/_reload
func (h *SourceHandler) ReloadSources(w http.ResponseWriter, r *http.Request) {
	h.registry.Load(r.Context())
	writeJSON(w, http.StatusOK, h.list())
}

// GetSource returns one definition.
// GET /api/v1/sources/{id}
func (h *SourceHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	src, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sourceDetail{
		sourceSummary: h.summarize(src),
		Path:          src.Path,
		Definition:    src.Definition,
	})
}

type syncRequest struct {
	Input map[string]interface{} `json:"input"`
}

// SyncSource runs a source and waits for its result. Failed runs still
// answer 200; the SyncResult carries the error and the logs.
// POST /api/v1/sources/{id}/sync
// POST /api/v1/sync/{id}
// POST /api/v1/actions/{id}/run
func (h *SourceHandler) SyncSource(w http.ResponseWriter, r *http.Request) {
	src, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req syncRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	run, err := h.exec.Run(r.Context(), src, model.TriggerManual, req.Input)
	if err != nil {
		switch {
		case errors.Is(err, executor.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, "already running", map[string]interface{}{"id": src.ID})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			h.logger.Info("client left before sync finished; run continues", "source_id", src.ID)
			writeError(w, http.StatusServiceUnavailable, "request ended before the run finished")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to run: "+err.Error())
		}
		return
	}

	if run.RunID != "" {
		w.Header().Set(RunIDHeader, run.RunID)
	}
	writeJSON(w, http.StatusOK, run.SyncResult)
}

// ValidateSource checks a definition's required schema against the live
// workbook database.
// POST /api/v1/sources/{id}/validate
func (h *SourceHandler) ValidateSource(w http.ResponseWriter, r *http.Request) {
	src, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.conn == nil {
		writeError(w, http.StatusServiceUnavailable, "No workbook database configured")
		return
	}

	db, err := h.conn.IntrospectSchema(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to introspect schema: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, schema.ValidateSchema(src.Definition.Schema, *db))
}

type ddlResponse struct {
	ID         string   `json:"id"`
	Dialect    string   `json:"dialect"`
	Statements []string `json:"statements"`
}

// SourceDDL returns the CREATE TABLE statements for a definition's required
// schema. With ?missing=true only the statements that the live database
// still needs are returned.
// GET /api/v1/sources/{id}/ddl
func (h *SourceHandler) SourceDDL(w http.ResponseWriter, r *http.Request) {
	src, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var d schema.Dialect = schema.PostgresDialect
	dialect := "postgres"
	if h.conn != nil {
		d = h.conn
		dialect = h.conn.DriverName()
	}

	var (
		stmts []string
		err   error
	)
	if queryBool(r, "missing") {
		if h.conn == nil {
			writeError(w, http.StatusServiceUnavailable, "No workbook database configured")
			return
		}
		db, ierr := h.conn.IntrospectSchema(r.Context())
		if ierr != nil {
			writeError(w, http.StatusInternalServerError, "Failed to introspect schema: "+ierr.Error())
			return
		}
		stmts, err = schema.PlanProvision(d, src.Definition.Schema, *db)
	} else {
		stmts, err = schema.GenerateCreateTables(d, src.Definition.Schema.Tables)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if stmts == nil {
		stmts = []string{}
	}
	writeJSON(w, http.StatusOK, ddlResponse{ID: src.ID, Dialect: dialect, Statements: stmts})
}

func (h *SourceHandler) lookup(w http.ResponseWriter, r *http.Request) (*source.Source, bool) {
	id := chi.URLParam(r, "id")
	src, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Source not found: "+id)
		return nil, false
	}
	return src, true
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/store"
)

// RunStore is the run history the RunHandler reads and prunes.
type RunStore interface {
	GetActionRun(ctx context.Context, ref string) (*model.ActionRun, error)
	QueryActionRuns(ctx context.Context, q model.RunQuery) ([]model.ActionRun, error)
	GetActionRunStats(ctx context.Context, actionID string) (*model.RunStats, error)
	CleanupOldRuns(ctx context.Context, r model.Retention) (int64, error)
}

// RunHandler serves the run history.
type RunHandler struct {
	runs      RunStore
	retention model.Retention
}

// NewRunHandler creates a new RunHandler. retention is the policy applied by
// cleanup requests that do not set their own bounds.
func NewRunHandler(runs RunStore, retention model.Retention) *RunHandler {
	return &RunHandler{runs: runs, retention: retention}
}

// ListRuns returns runs newest first.
// GET /api/v1/runs?action_id=&since=&limit=
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	since, err := queryTime(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := model.RunQuery{
		ActionID: queryString(r, "action_id"),
		Since:    since,
		Limit:    clampInt(queryInt(r, "limit", 50), 1, 1000),
	}

	runs, err := h.runs.QueryActionRuns(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query runs: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: runs,
		Meta: &model.ResponseMeta{
			Count:  len(runs),
			Limit:  q.Limit,
			TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}

// GetRun returns one run by run_id or numeric id.
// GET /api/v1/runs/{runId}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "runId")
	run, err := h.runs.GetActionRun(r.Context(), ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found: "+ref)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// RunStats aggregates the history of one action.
// GET /api/v1/runs/stats/{actionId}
func (h *RunHandler) RunStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.runs.GetActionRunStats(r.Context(), chi.URLParam(r, "actionId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// cleanupRequest overrides the configured retention. Durations use Go syntax
// ("72h").
type cleanupRequest struct {
	MaxAge   string `json:"max_age"`
	MaxCount *int   `json:"max_count"`
	ActionID string `json:"action_id"`
}

type cleanupResponse struct {
	Deleted   int64           `json:"deleted"`
	Retention model.Retention `json:"retention"`
}

// CleanupRuns deletes runs outside the retention policy.
// POST /api/v1/runs/_cleanup
func (h *RunHandler) CleanupRuns(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	policy := h.retention
	policy.ActionID = req.ActionID
	if req.MaxAge != "" {
		d, err := time.ParseDuration(req.MaxAge)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "max_age must be a non-negative duration such as 72h")
			return
		}
		policy.MaxAge = d
	}
	if req.MaxCount != nil {
		if *req.MaxCount < 0 {
			writeError(w, http.StatusBadRequest, "max_count must not be negative")
			return
		}
		policy.MaxCount = *req.MaxCount
	}

	n, err := h.runs.CleanupOldRuns(r.Context(), policy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clean up runs: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Deleted: n, Retention: policy})
}

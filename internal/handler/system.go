package handler

import (
	"net/http"
	"time"

	"github.com/handsdb/hands/internal/scheduler"
)

// SchedulerView reports scheduler state. A nil SchedulerView means the
// scheduler is disabled.
type SchedulerView interface {
	Status() scheduler.Status
}

// InFlight lists the ids with a run in progress.
type InFlight interface {
	Running() []string
}

// Info describes the running instance.
type Info struct {
	Version     string   `json:"version"`
	Driver      string   `json:"driver,omitempty"`
	WorkbookDir string   `json:"workbook_dir"`
	Kinds       []string `json:"kinds"`
	AuthEnabled bool     `json:"auth_enabled"`
}

// SystemHandler serves instance metadata and scheduler state.
type SystemHandler struct {
	info   Info
	sched  SchedulerView
	runner InFlight
}

// NewSystemHandler creates a new SystemHandler. sched may be nil.
func NewSystemHandler(info Info, sched SchedulerView, runner InFlight) *SystemHandler {
	if info.Kinds == nil {
		info.Kinds = []string{}
	}
	return &SystemHandler{info: info, sched: sched, runner: runner}
}

// GetInfo returns the instance description.
// GET /api/v1/system
func (h *SystemHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.info)
}

// SchedulerStatus returns the scheduler's next due times and in-flight runs.
// When the scheduler is disabled only the in-flight runs are reported.
// GET /api/v1/scheduler
func (h *SystemHandler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.sched != nil {
		writeJSON(w, http.StatusOK, h.sched.Status())
		return
	}
	st := scheduler.Status{
		NextRuns: map[string]time.Time{},
		InFlight: h.runner.Running(),
	}
	if st.InFlight == nil {
		st.InFlight = []string{}
	}
	writeJSON(w, http.StatusOK, st)
}

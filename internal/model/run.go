package model

import "time"

// Log levels recorded in LogEntry.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Trigger values recorded on ActionRun.Trigger.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
	TriggerMCP      = "mcp"
)

// LogEntry is a single line logged by a run handler.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// SyncResult is the structured outcome of one execution. Logs are returned
// whether or not the run succeeded.
type SyncResult struct {
	Success    bool        `json:"success"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
	Logs       []LogEntry  `json:"logs"`
}

// ActionRun is a persisted SyncResult. Runs are immutable once saved.
type ActionRun struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	ActionID  string    `json:"action_id"`
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"started_at"`
	SyncResult
}

// Status returns "success" or "failed".
func (r *ActionRun) Status() string {
	if r.Success {
		return "success"
	}
	return "failed"
}

// RunQuery filters run history. Zero values mean "no filter".
type RunQuery struct {
	ActionID string    `json:"action_id,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}

// RunStats aggregates the run history of a single action.
type RunStats struct {
	ActionID      string     `json:"action_id"`
	Count         int64      `json:"count"`
	SuccessCount  int64      `json:"success_count"`
	SuccessRate   float64    `json:"success_rate"`
	AvgDurationMs float64    `json:"avg_duration_ms"`
	LastRun       *ActionRun `json:"last_run,omitempty"`
}

// Retention bounds how much run history is kept. A zero MaxAge or MaxCount
// disables that bound. ActionID scopes cleanup to one action.
type Retention struct {
	MaxAge   time.Duration `json:"max_age,omitempty"`
	MaxCount int           `json:"max_count,omitempty"`
	ActionID string        `json:"action_id,omitempty"`
}

// DiscoveryError records a definition file that failed to load.
type DiscoveryError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

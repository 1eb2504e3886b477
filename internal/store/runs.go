package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/handsdb/hands/internal/model"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 1000
)

// runRow is a flat struct that maps 1:1 to the action_runs table columns.
// started_at is stored as Unix milliseconds so ordering and range filters
// compare integers.
type runRow struct {
	ID         int64  `db:"id"`
	RunID      string `db:"run_id"`
	ActionID   string `db:"action_id"`
	Trigger    string `db:"trigger"`
	StartedAt  int64  `db:"started_at"`
	Success    bool   `db:"success"`
	ResultJSON string `db:"result_json"`
	Error      string `db:"error"`
	DurationMs int64  `db:"duration_ms"`
	LogsJSON   string `db:"logs_json"`
}

func runRowFromModel(run *model.ActionRun) (runRow, error) {
	resultJSON, err := json.Marshal(run.Result)
	if err != nil {
		return runRow{}, fmt.Errorf("marshal result: %w", err)
	}
	logs := run.Logs
	if logs == nil {
		logs = []model.LogEntry{}
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return runRow{}, fmt.Errorf("marshal logs: %w", err)
	}
	return runRow{
		RunID:      run.RunID,
		ActionID:   run.ActionID,
		Trigger:    run.Trigger,
		StartedAt:  run.StartedAt.UnixMilli(),
		Success:    run.Success,
		ResultJSON: string(resultJSON),
		Error:      run.Error,
		DurationMs: run.DurationMs,
		LogsJSON:   string(logsJSON),
	}, nil
}

func (r runRow) toModel() (model.ActionRun, error) {
	run := model.ActionRun{
		ID:        r.ID,
		RunID:     r.RunID,
		ActionID:  r.ActionID,
		Trigger:   r.Trigger,
		StartedAt: time.UnixMilli(r.StartedAt).UTC(),
		SyncResult: model.SyncResult{
			Success:    r.Success,
			Error:      r.Error,
			DurationMs: r.DurationMs,
			Logs:       []model.LogEntry{},
		},
	}
	if err := json.Unmarshal([]byte(r.ResultJSON), &run.Result); err != nil {
		return run, fmt.Errorf("unmarshal result of run %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.LogsJSON), &run.Logs); err != nil {
		return run, fmt.Errorf("unmarshal logs of run %d: %w", r.ID, err)
	}
	return run, nil
}

// SaveActionRun appends a run to the history. ID is populated after a
// successful insert; RunID and StartedAt are filled in when empty.
func (s *Store) SaveActionRun(ctx context.Context, run *model.ActionRun) error {
	if run.ActionID == "" {
		return fmt.Errorf("action id is required")
	}
	if run.RunID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate run id: %w", err)
		}
		run.RunID = id.String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Trigger == "" {
		run.Trigger = model.TriggerManual
	}

	row, err := runRowFromModel(run)
	if err != nil {
		return err
	}

	const q = `INSERT INTO action_runs
		(run_id, action_id, trigger, started_at, success, result_json, error, duration_ms, logs_json)
		VALUES
		(:run_id, :action_id, :trigger, :started_at, :success, :result_json, :error, :duration_ms, :logs_json)`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("save action run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("save action run last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// GetActionRun returns a run by its numeric ID or its run_id.
func (s *Store) GetActionRun(ctx context.Context, ref string) (*model.ActionRun, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM action_runs WHERE run_id = ? OR CAST(id AS TEXT) = ?", ref, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get action run: %w", err)
	}
	run, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// QueryActionRuns returns runs newest first, filtered by q.
func (s *Store) QueryActionRuns(ctx context.Context, q model.RunQuery) ([]model.ActionRun, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.ActionID != "" {
		where = append(where, "action_id = ?")
		args = append(args, q.ActionID)
	}
	if !q.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}

	query := "SELECT * FROM action_runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, clampLimit(q.Limit))

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query action runs: %w", err)
	}

	runs := make([]model.ActionRun, 0, len(rows))
	for _, r := range rows {
		run, err := r.toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// GetActionRunStats aggregates the history of one action. An action with no
// runs yields zero-valued stats.
func (s *Store) GetActionRunStats(ctx context.Context, actionID string) (*model.RunStats, error) {
	var agg struct {
		Count        int64   `db:"count"`
		SuccessCount int64   `db:"success_count"`
		AvgDuration  float64 `db:"avg_duration"`
	}
	const q = `SELECT
		COUNT(*) AS count,
		COALESCE(SUM(success), 0) AS success_count,
		COALESCE(AVG(duration_ms), 0.0) AS avg_duration
		FROM action_runs WHERE action_id = ?`
	if err := s.db.GetContext(ctx, &agg, q, actionID); err != nil {
		return nil, fmt.Errorf("action run stats: %w", err)
	}

	stats := &model.RunStats{
		ActionID:      actionID,
		Count:         agg.Count,
		SuccessCount:  agg.SuccessCount,
		AvgDurationMs: agg.AvgDuration,
	}
	if agg.Count == 0 {
		return stats, nil
	}
	stats.SuccessRate = float64(agg.SuccessCount) / float64(agg.Count)

	last, err := s.QueryActionRuns(ctx, model.RunQuery{ActionID: actionID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(last) == 1 {
		stats.LastRun = &last[0]
	}
	return stats, nil
}

// CleanupOldRuns deletes runs older than MaxAge, then every run beyond the
// MaxCount newest. Both steps are limited to ActionID when it is set;
// otherwise MaxCount bounds the whole history. It returns the number of runs
// deleted.
func (s *Store) CleanupOldRuns(ctx context.Context, r model.Retention) (int64, error) {
	var deleted int64

	if r.MaxAge > 0 {
		cutoff := time.Now().Add(-r.MaxAge).UnixMilli()
		q := "DELETE FROM action_runs WHERE started_at < ?"
		args := []interface{}{cutoff}
		if r.ActionID != "" {
			q += " AND action_id = ?"
			args = append(args, r.ActionID)
		}
		n, err := s.execCount(ctx, q, args...)
		if err != nil {
			return deleted, fmt.Errorf("cleanup by age: %w", err)
		}
		deleted += n
	}

	if r.MaxCount > 0 {
		scope := ""
		args := []interface{}{}
		if r.ActionID != "" {
			scope = "WHERE action_id = ?"
			args = append(args, r.ActionID)
		}
		args = append(args, r.MaxCount)
		q := `DELETE FROM action_runs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					ORDER BY started_at DESC, id DESC
				) AS rn
				FROM action_runs ` + scope + `
			) WHERE rn > ?
		)`
		n, err := s.execCount(ctx, q, args...)
		if err != nil {
			return deleted, fmt.Errorf("cleanup by count: %w", err)
		}
		deleted += n
	}

	if err := s.SetSetting(ctx, SettingLastCleanup, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (s *Store) execCount(ctx context.Context, q string, args ...interface{}) (int64, error) {
	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRunLimit
	}
	if limit > maxRunLimit {
		return maxRunLimit
	}
	return limit
}

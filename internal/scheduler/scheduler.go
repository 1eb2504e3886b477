// Package scheduler fires scheduled sources. A single ticker polls the
// registry; each source with a schedule keeps its next due time, and a due
// source is started unless a run of it is still in flight. Missed ticks are
// never caught up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/source"
)

const (
	DefaultInterval        = time.Minute
	DefaultCleanupInterval = time.Hour
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextRunTime returns the first time strictly after from at which expr fires.
// expr is a 5-field cron expression or a descriptor such as @daily or
// @every 15m.
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(from)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("schedule %q never fires", expr)
	}
	return next, nil
}

// Validate reports whether expr is a usable schedule.
func Validate(expr string) error {
	_, err := NextRunTime(expr, time.Now())
	return err
}

// Lister yields the currently registered sources.
type Lister interface {
	List() []*source.Source
}

// Runner starts runs. *executor.Executor satisfies it.
type Runner interface {
	Start(ctx context.Context, src *source.Source, trigger string, input map[string]interface{}) (<-chan *model.ActionRun, error)
	IsRunning(id string) bool
	Running() []string
}

// Cleaner prunes run history.
type Cleaner interface {
	CleanupOldRuns(ctx context.Context, r model.Retention) (int64, error)
}

// Config controls the scheduler loops. Cleanup runs only when Cleaner is set
// and Retention limits something.
type Config struct {
	Interval        time.Duration
	CleanupInterval time.Duration
	Retention       model.Retention
	Cleaner         Cleaner
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running  bool                 `json:"running"`
	NextRuns map[string]time.Time `json:"next_runs"`
	InFlight []string             `json:"in_flight"`
	LastTick time.Time            `json:"last_tick,omitempty"`
}

type entry struct {
	expr string
	next time.Time
}

// Scheduler polls a Lister and starts due sources on a Runner.
type Scheduler struct {
	lister Lister
	runner Runner
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	entries  map[string]*entry
	invalid  map[string]bool
	lastTick time.Time
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. It does nothing until Start.
func New(lister Lister, runner Runner, cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		lister:  lister,
		runner:  runner,
		cfg:     cfg,
		logger:  logger.With("module", "scheduler"),
		now:     time.Now,
		entries: make(map[string]*entry),
		invalid: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins polling. Calling Start on a running scheduler is a no-op; a
// stopped scheduler cannot be restarted.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.New("scheduler is stopped")
	}
	if s.started {
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.started = true

	// Register schedules right away so the first due time is known.
	s.tickLocked(ctx, s.now())

	go s.loop(ctx)

	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "schedules", len(s.entries))
	return nil
}

// Stop halts polling and waits for the loop to exit. Runs already started
// finish and are recorded by the runner.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var cleanup <-chan time.Time
	if s.cleanupEnabled() {
		t := time.NewTicker(s.cfg.CleanupInterval)
		defer t.Stop()
		cleanup = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, s.now())
		case <-cleanup:
			s.cleanup(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked(ctx, now)
}

// tickLocked evaluates every schedule against now. A source seen for the
// first time, or whose expression changed, only gets its next due time.
func (s *Scheduler) tickLocked(ctx context.Context, now time.Time) {
	s.lastTick = now
	seen := make(map[string]bool)

	for _, src := range s.lister.List() {
		expr := src.Definition.Schedule
		if expr == "" {
			continue
		}
		seen[src.ID] = true

		ent, ok := s.entries[src.ID]
		if !ok || ent.expr != expr {
			next, err := NextRunTime(expr, now)
			if err != nil {
				if !s.invalid[expr] {
					s.invalid[expr] = true
					s.logger.Warn("invalid schedule, skipping", "source_id", src.ID, "schedule", expr, "error", err)
				}
				delete(s.entries, src.ID)
				continue
			}
			s.entries[src.ID] = &entry{expr: expr, next: next}
			continue
		}

		if ent.next.After(now) {
			continue
		}

		if s.runner.IsRunning(src.ID) {
			s.logger.Warn("previous run still in flight, skipping", "source_id", src.ID, "due_at", ent.next)
		} else if _, err := s.runner.Start(ctx, src, model.TriggerSchedule, nil); err != nil {
			s.logger.Warn("scheduled run not started", "source_id", src.ID, "error", err)
		} else {
			s.logger.Info("scheduled run started", "source_id", src.ID, "due_at", ent.next)
		}

		next, err := NextRunTime(expr, now)
		if err != nil {
			delete(s.entries, src.ID)
			continue
		}
		ent.next = next
	}

	for id := range s.entries {
		if !seen[id] {
			delete(s.entries, id)
		}
	}
}

func (s *Scheduler) cleanupEnabled() bool {
	return s.cfg.Cleaner != nil && (s.cfg.Retention.MaxAge > 0 || s.cfg.Retention.MaxCount > 0)
}

func (s *Scheduler) cleanup(ctx context.Context) {
	n, err := s.cfg.Cleaner.CleanupOldRuns(ctx, s.cfg.Retention)
	if err != nil {
		s.logger.Error("run history cleanup failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("run history cleaned up", "deleted", n)
	}
}

// Status reports the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{
		Running:  s.started && !s.stopped,
		NextRuns: make(map[string]time.Time, len(s.entries)),
		LastTick: s.lastTick,
	}
	for id, ent := range s.entries {
		st.NextRuns[id] = ent.next
	}
	s.mu.Unlock()

	st.InFlight = s.runner.Running()
	if st.InFlight == nil {
		st.InFlight = []string{}
	}
	return st
}

// NextRun returns the next due time of id, if it is scheduled.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return ent.next, true
}

// Scheduled returns the ids with a known next due time, sorted.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Package executor runs a source's handler once: it resolves secrets,
// checks input and the workbook schema, invokes the handler under a
// timeout and turns the outcome into a SyncResult. It also guards against
// concurrent runs of the same source and records every run.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/schema"
	"github.com/handsdb/hands/internal/secrets"
	"github.com/handsdb/hands/internal/source"
	"github.com/handsdb/hands/internal/task"
)

// DefaultTimeout bounds a run whose definition sets no timeout.
const DefaultTimeout = 5 * time.Minute

// ErrAlreadyRunning is returned by Start when the source has a run in flight.
var ErrAlreadyRunning = errors.New("already running")

// errRunTimeout is the cancel cause of a run that outlived its own timeout.
var errRunTimeout = errors.New("run timeout")

// History records finished runs.
type History interface {
	SaveActionRun(ctx context.Context, run *model.ActionRun) error
}

// Executor executes sources against the workbook database.
type Executor struct {
	conn           connector.Connector
	secrets        secrets.Store
	history        History
	logger         *slog.Logger
	defaultTimeout time.Duration
	provision      bool
	now            func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// Option configures an Executor.
type Option func(*Executor)

// WithDefaultTimeout sets the timeout for definitions that declare none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.defaultTimeout = d
		}
	}
}

// WithProvision enables creating missing tables and columns before a run.
// A definition's own provision setting takes precedence.
func WithProvision(enabled bool) Option {
	return func(e *Executor) { e.provision = enabled }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New creates an Executor. conn may be nil when no workbook database is
// configured; sources that declare a schema then fail. history may be nil.
func New(conn connector.Connector, store secrets.Store, history History, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		conn:           conn,
		secrets:        store,
		history:        history,
		logger:         logger,
		defaultTimeout: DefaultTimeout,
		now:            time.Now,
		running:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteSync runs src once and reports the outcome. It never returns an
// error: every failure is described by the result.
func (e *Executor) ExecuteSync(ctx context.Context, src *source.Source, input map[string]interface{}) model.SyncResult {
	runLog := task.NewRunLogger(e.logger.With("source_id", src.ID))
	fail := func(msg string, durationMs int64) model.SyncResult {
		return model.SyncResult{Success: false, Error: msg, DurationMs: durationMs, Logs: runLog.Entries()}
	}

	values, missing, err := secrets.Resolve(ctx, e.secrets, src.Definition.Secrets)
	if err != nil {
		return fail(err.Error(), 0)
	}
	if len(missing) > 0 {
		return fail(secrets.MissingError(missing), 0)
	}

	if err := src.ValidateInput(input); err != nil {
		return fail(err.Error(), 0)
	}

	if src.HasSchema() {
		if err := e.ensureSchema(ctx, src, runLog); err != nil {
			return fail(err.Error(), 0)
		}
	}

	timeout := src.Definition.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	runCtx, cancel := context.WithTimeoutCause(ctx, timeout, errRunTimeout)
	defer cancel()

	env := &task.Env{
		SourceID: src.ID,
		Conn:     e.conn,
		Secrets:  values,
		Input:    input,
		Log:      runLog,
	}

	start := e.now()
	value, err := invoke(runCtx, src.Handler, env)
	durationMs := e.now().Sub(start).Milliseconds()

	if errors.Is(context.Cause(runCtx), errRunTimeout) {
		return fail(fmt.Sprintf("sync timed out after %s", timeout), durationMs)
	}
	if err != nil {
		return fail(err.Error(), durationMs)
	}
	return model.SyncResult{
		Success:    true,
		Result:     value,
		DurationMs: durationMs,
		Logs:       runLog.Entries(),
	}
}

// ensureSchema validates the declared schema against the live database,
// provisioning the difference first when allowed.
func (e *Executor) ensureSchema(ctx context.Context, src *source.Source, runLog *task.RunLogger) error {
	if e.conn == nil {
		return errors.New("source declares a schema but no workbook database is configured")
	}
	required := src.Definition.Schema

	db, err := e.conn.IntrospectSchema(ctx)
	if err != nil {
		return fmt.Errorf("introspect schema: %w", err)
	}
	result := schema.ValidateSchema(required, *db)
	if result.Valid {
		return nil
	}

	provision := e.provision
	if src.Definition.Provision != nil {
		provision = *src.Definition.Provision
	}
	if !provision {
		return errors.New(strings.Join(result.Errors, "; "))
	}

	stmts, err := schema.Provision(ctx, e.conn.DB(), e.conn, required, *db)
	for _, stmt := range stmts {
		runLog.Info("provisioned", "statement", stmt)
	}
	if err != nil {
		return err
	}

	db, err = e.conn.IntrospectSchema(ctx)
	if err != nil {
		return fmt.Errorf("introspect schema: %w", err)
	}
	result = schema.ValidateSchema(required, *db)
	if !result.Valid {
		return errors.New(strings.Join(result.Errors, "; "))
	}
	return nil
}

// invoke calls the handler, converting a panic into an error.
func invoke(ctx context.Context, h task.Handler, env *task.Env) (value interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			env.Log.Error("handler panicked", "stack", string(debug.Stack()))
			value, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()
	if h == nil {
		return nil, errors.New("source has no handler")
	}
	return h.Run(ctx, env)
}

// Start claims src's run slot and executes it in the background. The run
// continues if ctx is cancelled; it is saved to history and then delivered
// on the returned channel. Start fails with ErrAlreadyRunning when src
// already has a run in flight.
func (e *Executor) Start(ctx context.Context, src *source.Source, trigger string, input map[string]interface{}) (<-chan *model.ActionRun, error) {
	e.mu.Lock()
	if _, busy := e.running[src.ID]; busy {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, src.ID)
	}
	e.running[src.ID] = struct{}{}
	e.wg.Add(1)
	e.mu.Unlock()

	done := make(chan *model.ActionRun, 1)
	runCtx := context.WithoutCancel(ctx)

	go func() {
		defer e.wg.Done()

		run := &model.ActionRun{
			ActionID:  src.ID,
			Trigger:   trigger,
			StartedAt: e.now().UTC(),
		}
		e.logger.Info("sync started", "source_id", src.ID, "trigger", trigger)
		run.SyncResult = e.ExecuteSync(runCtx, src, input)

		attrs := []any{"source_id", src.ID, "trigger", trigger, "duration_ms", run.DurationMs}
		if run.Success {
			e.logger.Info("sync finished", attrs...)
		} else {
			e.logger.Warn("sync failed", append(attrs, "error", run.Error)...)
		}

		if e.history != nil {
			if err := e.history.SaveActionRun(runCtx, run); err != nil {
				e.logger.Error("failed to record run", "source_id", src.ID, "error", err)
			}
		}
		// Free the slot before delivering so the caller may start again at once.
		e.release(src.ID)
		done <- run
		close(done)
	}()

	return done, nil
}

// Run starts src and waits for the run to finish. If ctx ends first the run
// keeps going in the background and ctx's error is returned.
func (e *Executor) Run(ctx context.Context, src *source.Source, trigger string, input map[string]interface{}) (*model.ActionRun, error) {
	done, err := e.Start(ctx, src, trigger, input)
	if err != nil {
		return nil, err
	}
	select {
	case run := <-done:
		return run, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Executor) release(id string) {
	e.mu.Lock()
	delete(e.running, id)
	e.mu.Unlock()
}

// IsRunning reports whether id has a run in flight.
func (e *Executor) IsRunning(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[id]
	return ok
}

// Running returns the ids with a run in flight, sorted.
func (e *Executor) Running() []string {
	e.mu.Lock()
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Wait blocks until every in-flight run has been recorded, or ctx ends.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/handsdb/hands/internal/model"
)

// RunLogger buffers the log lines of a single run, in order, and mirrors
// each one to the process logger. It is safe for concurrent use; a nil
// *RunLogger discards everything.
type RunLogger struct {
	mu      sync.Mutex
	entries []model.LogEntry
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunLogger creates a RunLogger mirroring to logger. A nil logger
// disables mirroring.
func NewRunLogger(logger *slog.Logger) *RunLogger {
	return &RunLogger{
		entries: []model.LogEntry{},
		logger:  logger,
		now:     time.Now,
	}
}

func (l *RunLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, model.LevelDebug, msg, args)
}

func (l *RunLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, model.LevelInfo, msg, args)
}

func (l *RunLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, model.LevelWarn, msg, args)
}

func (l *RunLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, model.LevelError, msg, args)
}

func (l *RunLogger) log(level slog.Level, name, msg string, args []any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, model.LogEntry{
		Timestamp: l.now().UTC(),
		Level:     name,
		Message:   formatMessage(msg, args),
	})
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Log(context.Background(), level, msg, args...)
	}
}

// Entries returns a copy of the buffered entries.
func (l *RunLogger) Entries() []model.LogEntry {
	if l == nil {
		return []model.LogEntry{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// formatMessage renders slog-style key/value args after the message.
func formatMessage(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fmt.Fprintf(&b, " %v", args[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}

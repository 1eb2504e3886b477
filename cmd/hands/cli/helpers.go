package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/handsdb/hands/internal/config"
	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/connector/postgres"
	"github.com/handsdb/hands/internal/connector/sqlite"
	"github.com/handsdb/hands/internal/executor"
	"github.com/handsdb/hands/internal/scheduler"
	"github.com/handsdb/hands/internal/secrets"
	"github.com/handsdb/hands/internal/source"
	"github.com/handsdb/hands/internal/store"
	"github.com/handsdb/hands/internal/task"
)

// secretEnvPrefix maps a declared secret NAME to the HANDS_SECRET_NAME
// environment variable.
const secretEnvPrefix = "HANDS_SECRET_"

// loadConfig decodes the effective configuration and builds the process
// logger from it.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg, os.Stderr), nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := cfg.SlogLevel()
	if devMode {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newConnectorRegistry creates a connector registry with the supported
// workbook database drivers registered.
func newConnectorRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterDriver("postgres", func() connector.Connector { return postgres.New() })
	registry.RegisterDriver("sqlite", func() connector.Connector { return sqlite.New() })
	return registry
}

// workbook is the set of components most commands operate on. Close
// releases whatever was opened.
type workbook struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	conn     connector.Connector
	kinds    *task.Registry
	registry *source.Registry
	exec     *executor.Executor
}

// openWorkbook opens the state store and the workbook database, discovers
// definitions and builds the executor.
func openWorkbook(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*workbook, error) {
	wb := &workbook{cfg: cfg, logger: logger}

	st, err := store.New(cfg.Workbook.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init state store: %w", err)
	}
	wb.store = st

	conn, err := newConnectorRegistry().Open(cfg.ConnectionConfig())
	if err != nil {
		st.Close()
		return nil, err
	}
	wb.conn = conn
	logger.Debug("workbook database connected", "driver", cfg.Database.Driver)

	wb.kinds = task.Builtins()
	wb.registry = source.NewRegistry(source.FileLoader{}, wb.kinds, []source.Root{
		{Dir: cfg.Workbook.SourcesDir, Type: source.TypeSource},
		{Dir: cfg.Workbook.ActionsDir, Type: source.TypeAction},
	}, source.WithScheduleCheck(scheduler.Validate), source.WithLogger(logger))
	wb.registry.Load(ctx)

	wb.exec = executor.New(conn,
		secrets.Chain(secrets.EnvStore{Prefix: secretEnvPrefix}, st),
		st,
		logger,
		executor.WithDefaultTimeout(cfg.Executor.DefaultTimeout),
		executor.WithProvision(cfg.Executor.Provision),
	)
	return wb, nil
}

// Close disconnects the workbook database and closes the state store.
func (wb *workbook) Close() {
	if wb.conn != nil {
		wb.conn.Disconnect()
	}
	if wb.store != nil {
		wb.store.Close()
	}
}

// lookup resolves a definition id, listing the known ids on a miss.
func (wb *workbook) lookup(id string) (*source.Source, error) {
	src, ok := wb.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("source %q not found (available: %s)", id, strings.Join(wb.registry.IDs(), ", "))
	}
	return src, nil
}

// openStore opens only the state store, for commands that never touch the
// workbook database.
func openStore() (*store.Store, *config.Config, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(cfg.Workbook.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init state store: %w", err)
	}
	return st, cfg, nil
}

// --- Output ---

// wantJSON reports whether output should be JSON: when asked for, or when
// stdout is not a terminal.
func wantJSON(flag bool) bool {
	return flag || !term.IsTerminal(int(os.Stdout.Fd()))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- PID file management ---

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Workbook.DataDir, "hands.pid")
}

func writePID(cfg *config.Config, pid int) error {
	if err := os.MkdirAll(cfg.Workbook.DataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(cfg), []byte(strconv.Itoa(pid)), 0644)
}

func readPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(pidFilePath(cfg))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID(cfg *config.Config) {
	os.Remove(pidFilePath(cfg))
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}

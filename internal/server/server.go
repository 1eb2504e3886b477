package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/executor"
	"github.com/handsdb/hands/internal/handler"
	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/scheduler"
	"github.com/handsdb/hands/internal/server/middleware"
	"github.com/handsdb/hands/internal/service"
	"github.com/handsdb/hands/internal/source"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimit       int   // sync requests per minute per client; 0 disables
	MaxBodySize     int64 // bytes
}

// DefaultConfig returns a Config with sensible defaults for a local workbook.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            8420,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		MaxBodySize:     10 * 1024 * 1024, // 10MB
	}
}

// Deps are the components the server routes requests to. Conn, Scheduler
// and MCP may be nil.
type Deps struct {
	Registry  *source.Registry
	Executor  *executor.Executor
	Scheduler *scheduler.Scheduler
	Runs      handler.RunStore
	Conn      connector.Connector
	Auth      *service.AuthService
	MCP       http.Handler
	Retention model.Retention
	Info      handler.Info
}

// Server is the top-level HTTP server for Hands. It owns the Chi router and
// drives graceful shutdown of the scheduler and in-flight runs.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{middleware.RequestIDHeader, handler.RunIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.deps.Registry).ServeSpec)

	// The scheduler is optional; keep typed nils out of the interfaces.
	var (
		nextRuns handler.ScheduleView
		status   handler.SchedulerView
	)
	if s.deps.Scheduler != nil {
		nextRuns = s.deps.Scheduler
		status = s.deps.Scheduler
	}

	sourceHandler := handler.NewSourceHandler(s.deps.Registry, s.deps.Executor, s.deps.Conn, nextRuns, s.logger)
	schemaHandler := handler.NewSchemaHandler(s.deps.Conn)
	runHandler := handler.NewRunHandler(s.deps.Runs, s.deps.Retention)
	sysHandler := handler.NewSystemHandler(s.deps.Info, status, s.deps.Executor)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(s.deps.Auth))

		// One limiter shared by every route that starts a run.
		syncLimit := middleware.RateLimit(s.cfg.RateLimit)

		r.Get("/system", sysHandler.GetInfo)
		r.Get("/scheduler", sysHandler.SchedulerStatus)

		// Sources and actions
		r.Get("/sources", sourceHandler.ListSources)
		r.Post("/sources/_reload", sourceHandler.ReloadSources)
		r.Get("/sources/{id}", sourceHandler.GetSource)
		r.Post("/sources/{id}/validate", sourceHandler.ValidateSource)
		r.Get("/sources/{id}/ddl", sourceHandler.SourceDDL)
		r.With(syncLimit).Post("/sources/{id}/sync", sourceHandler.SyncSource)
		r.With(syncLimit).Post("/sync/{id}", sourceHandler.SyncSource)
		r.With(syncLimit).Post("/actions/{id}/run", sourceHandler.SyncSource)

		// Workbook schema
		r.Get("/schema", schemaHandler.GetSchema)
		r.Get("/schema/{table}", schemaHandler.GetTable)
		r.Get("/postgres/schema", schemaHandler.RawColumns)

		// Run history
		r.Get("/runs", runHandler.ListRuns)
		r.Post("/runs/_cleanup", runHandler.CleanupRuns)
		r.Get("/runs/stats/{actionId}", runHandler.RunStats)
		r.Get("/runs/{runId}", runHandler.GetRun)
	})

	// --- MCP over streamable HTTP ---
	if s.deps.MCP != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.Auth))
			r.Handle("/mcp", s.deps.MCP)
		})
	}

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the workbook database
// is reachable, or 503 when it is configured but unhealthy.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.deps.Conn == nil {
		checks["workbook"] = "not configured"
	} else if err := s.deps.Conn.Ping(r.Context()); err != nil {
		checks["workbook"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["workbook"] = "ok"
	}

	if n := len(s.deps.Registry.Errors()); n > 0 {
		checks["discovery"] = fmt.Sprintf("%d definition(s) failed to load", n)
	} else {
		checks["discovery"] = "ok"
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  status,
		"checks":  checks,
		"sources": len(s.deps.Registry.IDs()),
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received, then shuts down gracefully.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done. Shutdown stops the scheduler, drains
// in-flight requests and waits for running syncs to be recorded, all within
// ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Syncs answer only when the run finishes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Stop()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := s.deps.Executor.Wait(shutdownCtx); err != nil {
		s.logger.Warn("in-flight syncs did not finish before shutdown", "running", s.deps.Executor.Running())
		return fmt.Errorf("wait for syncs: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

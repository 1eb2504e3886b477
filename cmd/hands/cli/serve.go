package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/handsdb/hands/internal/handler"
	hmcp "github.com/handsdb/hands/internal/mcp"
	"github.com/handsdb/hands/internal/scheduler"
	"github.com/handsdb/hands/internal/server"
	"github.com/handsdb/hands/internal/service"
)

const banner = `
 _                     _
| |__   __ _ _ __   __| |___
| '_ \ / _` + "`" + ` | '_ \ / _` + "`" + ` / __|
| | | | (_| | | | | (_| \__ \
|_| |_|\__,_|_| |_|\__,_|___/
`

func newServeCmd() *cobra.Command {
	var (
		noScheduler bool
		noMCP       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Hands API server and scheduler",
		Long: `Start the HTTP server that exposes sync, schema and run-history endpoints for
the workbook, and the scheduler that runs definitions with a cron schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), noScheduler, noMCP)
		},
	}

	cmd.Flags().IntP("port", "p", 8420, "HTTP listen port")
	cmd.Flags().String("host", "127.0.0.1", "HTTP listen host")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run scheduled syncs")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "Do not mount the MCP endpoint at /mcp")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context, noScheduler, noMCP bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Print(banner)
	fmt.Println()

	// 1. State store, workbook database, definitions and executor
	wb, err := openWorkbook(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer wb.Close()
	logger.Info("workbook opened",
		"dir", cfg.Workbook.Dir,
		"driver", cfg.Database.Driver,
		"definitions", len(wb.registry.IDs()),
	)

	// 2. Scheduler
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled && !noScheduler {
		sched = scheduler.New(wb.registry, wb.exec, scheduler.Config{
			Interval:        cfg.Scheduler.Interval,
			CleanupInterval: cfg.Scheduler.CleanupInterval,
			Retention:       cfg.RetentionPolicy(),
			Cleaner:         wb.store,
		}, logger)
		if err := sched.Start(context.Background()); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		logger.Info("scheduler disabled")
	}

	// 3. Auth
	authSvc := service.NewAuthService(cfg.Auth.JWTSecret)
	if !authSvc.Enabled() {
		logger.Warn("API authentication disabled; set auth.jwt_secret to require bearer tokens")
	}

	// 4. HTTP server
	deps := server.Deps{
		Registry:  wb.registry,
		Executor:  wb.exec,
		Scheduler: sched,
		Runs:      wb.store,
		Conn:      wb.conn,
		Auth:      authSvc,
		Retention: cfg.RetentionPolicy(),
		Info: handler.Info{
			Version:     versionString(),
			Driver:      cfg.Database.Driver,
			WorkbookDir: cfg.Workbook.Dir,
			Kinds:       wb.kinds.Kinds(),
			AuthEnabled: authSvc.Enabled(),
		},
	}
	if !noMCP {
		deps.MCP = hmcp.NewMCPServer(wb.registry, wb.exec, wb.conn, wb.store, versionString(), logger).HTTPHandler()
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	srvCfg.CORSOrigins = cfg.Server.CORSOrigins
	srvCfg.RateLimit = cfg.Server.RateLimit

	srv := server.New(srvCfg, deps, logger)

	if err := writePID(cfg, os.Getpid()); err != nil {
		logger.Warn("failed to write pid file", "error", err)
	}
	defer removePID(cfg)

	fmt.Printf("→ Hands %s\n", versionString())
	fmt.Printf("→ Listening on http://%s\n", cfg.Addr())
	fmt.Printf("→ OpenAPI:    http://%s/openapi.json\n", cfg.Addr())
	fmt.Printf("→ Health:     http://%s/healthz\n", cfg.Addr())
	if deps.MCP != nil {
		fmt.Printf("→ MCP:        http://%s/mcp\n", cfg.Addr())
	}
	fmt.Printf("→ Definitions: %d\n", len(wb.registry.IDs()))
	fmt.Println()

	return srv.ListenAndServe()
}

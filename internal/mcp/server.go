package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/executor"
	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/source"
)

// RunHistory is the slice of the run store the MCP tools read from.
type RunHistory interface {
	GetActionRun(ctx context.Context, ref string) (*model.ActionRun, error)
	QueryActionRuns(ctx context.Context, q model.RunQuery) ([]model.ActionRun, error)
	GetActionRunStats(ctx context.Context, actionID string) (*model.RunStats, error)
}

// MCPServer wraps the mcp-go server with the Hands tools and resources. It
// lets AI agents discover workbook sources, trigger syncs and inspect run
// history.
type MCPServer struct {
	registry *source.Registry
	exec     *executor.Executor
	conn     connector.Connector
	runs     RunHistory
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all tools and resources.
// conn may be nil when no workbook database is configured; the schema tools
// then report an error instead of failing the session.
func NewMCPServer(registry *source.Registry, exec *executor.Executor, conn connector.Connector, runs RunHistory, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		registry: registry,
		exec:     exec,
		conn:     conn,
		runs:     runs,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"Hands Workbook",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio runs the MCP server over stdin/stdout, for clients that launch
// hands as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts a standalone Streamable HTTP listener on addr
// (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

// HTTPHandler returns a Streamable HTTP handler for mounting inside the main
// API server.
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.server, server.WithStateLess(true))
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}

package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/handsdb/hands/internal/executor"
	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/schema"
	"github.com/handsdb/hands/internal/source"
	"github.com/handsdb/hands/internal/store"
)

// registerTools registers all Hands MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("hands_list_sources",
			mcp.WithDescription(
				"List every source and action discovered in the workbook. Returns each "+
					"definition's id, name, kind, schedule and whether a sync is in flight. "+
					"Use this first to find the id to pass to the other tools.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListSources,
	)

	srv.AddTool(
		mcp.NewTool("hands_get_source",
			mcp.WithDescription(
				"Get the full definition of one source or action, including its declared "+
					"tables and the JSON Schema its sync input must satisfy.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Source or action id"),
			),
		),
		s.handleGetSource,
	)

	srv.AddTool(
		mcp.NewTool("hands_get_schema",
			mcp.WithDescription(
				"Describe the workbook database: every table with its columns and "+
					"normalized types. Pass table to describe a single table.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Description("Only describe this table"),
			),
		),
		s.handleGetSchema,
	)

	srv.AddTool(
		mcp.NewTool("hands_validate_source",
			mcp.WithDescription(
				"Check a source's declared tables against the workbook database without "+
					"running it. Reports missing tables, missing columns and type mismatches.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Source or action id"),
			),
		),
		s.handleValidateSource,
	)

	// ----- Sync tool -----

	srv.AddTool(
		mcp.NewTool("hands_sync_source",
			mcp.WithDescription(
				"Run a source or action now and wait for it to finish. Returns the recorded "+
					"run: success flag, result, error, duration and the log lines it emitted. "+
					"Fails if the same source already has a sync in flight.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Source or action id"),
			),
			mcp.WithObject("input",
				mcp.Description("Input for the run; must match the source's input schema"),
			),
		),
		s.handleSyncSource,
	)

	// ----- Run history tools -----

	srv.AddTool(
		mcp.NewTool("hands_query_runs",
			mcp.WithDescription(
				"List recorded runs, newest first. Filter by action id and by start time.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("action_id",
				mcp.Description("Only runs of this source or action"),
			),
			mcp.WithString("since",
				mcp.Description("Only runs started at or after this time (RFC 3339 or Unix milliseconds)"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum runs to return (default 20, max 200)"),
			),
		),
		s.handleQueryRuns,
	)

	srv.AddTool(
		mcp.NewTool("hands_run_stats",
			mcp.WithDescription(
				"Summarize the run history of one source or action: run count, success "+
					"rate, average duration and the most recent run.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("action_id",
				mcp.Required(),
				mcp.Description("Source or action id"),
			),
		),
		s.handleRunStats,
	)

	srv.AddTool(
		mcp.NewTool("hands_get_run",
			mcp.WithDescription("Fetch one recorded run by its run id or numeric id."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("run_id",
				mcp.Required(),
				mcp.Description("Run id"),
			),
		),
		s.handleGetRun,
	)
}

type sourceInfo struct {
	ID        string      `json:"id"`
	Type      source.Type `json:"type"`
	Name      string      `json:"name,omitempty"`
	Kind      string      `json:"kind"`
	Schedule  string      `json:"schedule,omitempty"`
	HasSchema bool        `json:"has_schema"`
	HasInput  bool        `json:"has_input"`
	Running   bool        `json:"running"`
}

func (s *MCPServer) summarize(src *source.Source) sourceInfo {
	return sourceInfo{
		ID:        src.ID,
		Type:      src.Type,
		Name:      src.Definition.Name,
		Kind:      src.Definition.Kind,
		Schedule:  src.Definition.Schedule,
		HasSchema: src.HasSchema(),
		HasInput:  len(src.Definition.Input) > 0,
		Running:   s.exec.IsRunning(src.ID),
	}
}

func (s *MCPServer) handleListSources(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	list := s.registry.List()
	items := make([]sourceInfo, len(list))
	for i, src := range list {
		items[i] = s.summarize(src)
	}
	return successJSON(map[string]interface{}{
		"sources": items,
		"errors":  s.registry.Errors(),
	})
}

func (s *MCPServer) handleGetSource(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	src, res := s.lookup(request)
	if res != nil {
		return res, nil
	}
	return successJSON(src)
}

func (s *MCPServer) handleGetSchema(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	if s.conn == nil {
		return toolError("No workbook database configured")
	}
	db, err := s.conn.IntrospectSchema(ctx)
	if err != nil {
		return toolError("Failed to introspect schema: %v", err)
	}
	if name := optionalString(request, "table"); name != "" {
		table, ok := db.Table(name)
		if !ok {
			return toolError("Table not found: %s", name)
		}
		return successJSON(table)
	}
	return successJSON(db)
}

func (s *MCPServer) handleValidateSource(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	src, res := s.lookup(request)
	if res != nil {
		return res, nil
	}
	if s.conn == nil {
		return toolError("No workbook database configured")
	}
	db, err := s.conn.IntrospectSchema(ctx)
	if err != nil {
		return toolError("Failed to introspect schema: %v", err)
	}
	return successJSON(schema.ValidateSchema(src.Definition.Schema, *db))
}

func (s *MCPServer) handleSyncSource(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	src, res := s.lookup(request)
	if res != nil {
		return res, nil
	}

	run, err := s.exec.Run(ctx, src, model.TriggerMCP, getObjectArg(request, "input"))
	if errors.Is(err, executor.ErrAlreadyRunning) {
		return toolError("Source %s is already running; wait for it to finish", src.ID)
	}
	if err != nil {
		return toolError("Sync of %s did not finish: %v", src.ID, err)
	}

	result, err := successJSON(run)
	if err != nil {
		return nil, err
	}
	result.IsError = !run.Success
	return result, nil
}

func (s *MCPServer) handleQueryRuns(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	since, err := optionalTime(request, "since")
	if err != nil {
		return toolError("%v", err)
	}
	runs, err := s.runs.QueryActionRuns(ctx, model.RunQuery{
		ActionID: optionalString(request, "action_id"),
		Since:    since,
		Limit:    clamp(optionalInt(request, "limit", 20), 1, 200),
	})
	if err != nil {
		return toolError("Failed to query runs: %v", err)
	}
	return successJSON(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *MCPServer) handleRunStats(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	id, err := requireString(request, "action_id")
	if err != nil {
		return toolError("%v", err)
	}
	stats, err := s.runs.GetActionRunStats(ctx, id)
	if err != nil {
		return toolError("Failed to compute stats: %v", err)
	}
	return successJSON(stats)
}

func (s *MCPServer) handleGetRun(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	ref, err := requireString(request, "run_id")
	if err != nil {
		return toolError("%v", err)
	}
	run, err := s.runs.GetActionRun(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return toolError("Run not found: %s", ref)
	}
	if err != nil {
		return toolError("Failed to load run: %v", err)
	}
	return successJSON(run)
}

// lookup resolves the "id" argument. On failure it returns the tool result
// to hand back to the client.
func (s *MCPServer) lookup(request mcp.CallToolRequest) (*source.Source, *mcp.CallToolResult) {
	id, err := requireString(request, "id")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	src, ok := s.registry.Get(id)
	if !ok {
		return nil, mcp.NewToolResultError("Source not found: " + id + ". Call hands_list_sources to see available ids.")
	}
	return src, nil
}

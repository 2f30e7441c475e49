package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerRunTools() {
	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent pipeline runs with acceptance/rejection/duplicate totals"),
		mcp.WithString("jobId", mcp.Description("Filter by job ID (optional)")),
	), s.handleListRuns)

	s.mcp.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get one run: summary, rejection breakdown by reason code, and the per-row outcome log"),
		mcp.WithString("runId", mcp.Description("Run ID"), mcp.Required()),
	), s.handleGetRun)
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.svc.ListRuns(req.GetString("jobId", ""))
	if err != nil {
		return nil, err
	}
	return jsonResult(runs)
}

func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("runId", "")
	if runID == "" {
		return nil, fmt.Errorf("runId is required")
	}
	run, outcomes, err := s.svc.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"run":  run,
		"rows": outcomes,
	})
}

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"scrub/internal/pipeline"
)

func (s *Server) registerJobTools() {
	s.mcp.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List all stored cleaning jobs with their reader, trigger, and last status"),
	), s.handleListJobs)

	s.mcp.AddTool(mcp.NewTool("create_job",
		mcp.WithDescription(`Create a cleaning job. jobJSON mirrors the stored job shape:
{
  "name": "legacy-contacts",
  "readerType": "csv_file",
  "readerConfig": {"filePath": "/data/contacts.csv"},
  "pipeline": {
    "fields":   {"full_name": [{"column": "Full Name", "extractor": "text"}]},
    "rules":    {"full_name": {"transforms": [{"name": "trim"}, {"name": "title_case"}],
                               "validator": {"name": "not_empty", "reason": "EMPTY_NAME"}}},
    "required": ["full_name"],
    "identity": ["full_name"]
  },
  "triggerType": "manual"
}
Use list_readers and list_rules for the available reader types, extractors, transforms, and validators.`),
		mcp.WithString("jobJSON", mcp.Description("Full job definition as JSON"), mcp.Required()),
	), s.handleCreateJob)

	s.mcp.AddTool(mcp.NewTool("delete_job",
		mcp.WithDescription("Delete a cleaning job definition. Run history and committed records are kept."),
		mcp.WithString("jobId", mcp.Description("Job ID"), mcp.Required()),
	), s.handleDeleteJob)

	s.mcp.AddTool(mcp.NewTool("run_job",
		mcp.WithDescription("🛑 DESTRUCTIVE: Execute a cleaning job. Commits accepted records to the destination store."),
		mcp.WithString("jobId", mcp.Description("Job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunJob)
}

func (s *Server) handleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.svc.ListJobs()
	if err != nil {
		return nil, err
	}
	return jsonResult(jobs)
}

func (s *Server) handleCreateJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobJSON := req.GetString("jobJSON", "")
	if jobJSON == "" {
		return nil, fmt.Errorf("jobJSON is required")
	}

	var job pipeline.Job
	if err := json.Unmarshal([]byte(jobJSON), &job); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	if err := s.svc.CreateJob(ctx, &job); err != nil {
		return nil, err
	}
	return jsonResult(job)
}

func (s *Server) handleDeleteJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	if err := s.svc.DeleteJob(ctx, jobID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("deleted job %s", jobID)), nil
}

func (s *Server) handleRunJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}

	sum, err := s.svc.RunJob(ctx, jobID)
	if err != nil {
		// An aborted run still has a summary worth returning.
		if sum != nil {
			return jsonResult(map[string]any{"error": err.Error(), "summary": sum})
		}
		return nil, err
	}
	return jsonResult(sum)
}

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"scrub/internal/pipeline"
)

func (s *Server) registerPreviewTools() {
	s.mcp.AddTool(mcp.NewTool("preview_reader",
		mcp.WithDescription("Run extraction and normalization over the first rows of a reader. Nothing is committed — use this to tune rule tables before a real run."),
		mcp.WithString("readerType", mcp.Description("Reader type (use list_readers)"), mcp.Required()),
		mcp.WithString("readerConfigJSON", mcp.Description("Reader configuration as JSON"), mcp.Required()),
		mcp.WithString("pipelineJSON", mcp.Description("Pipeline configuration as JSON (fields, rules, required, identity)"), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description("Rows to preview (default 10)")),
	), s.handlePreviewReader)

	s.mcp.AddTool(mcp.NewTool("discover_columns",
		mcp.WithDescription("Sample a reader and return its column labels"),
		mcp.WithString("readerType", mcp.Description("Reader type"), mcp.Required()),
		mcp.WithString("readerConfigJSON", mcp.Description("Reader configuration as JSON"), mcp.Required()),
	), s.handleDiscoverColumns)

	s.mcp.AddTool(mcp.NewTool("list_readers",
		mcp.WithDescription("List available reader types with their configuration schemas"),
	), s.handleListReaders)

	s.mcp.AddTool(mcp.NewTool("list_rules",
		mcp.WithDescription("List the built-in extractors, transforms, validators, and cross-field checks rule tables can reference"),
	), s.handleListRules)
}

func parseReaderArgs(req mcp.CallToolRequest) (string, map[string]any, error) {
	readerType := req.GetString("readerType", "")
	if readerType == "" {
		return "", nil, fmt.Errorf("readerType is required")
	}
	cfgJSON := req.GetString("readerConfigJSON", "")
	var cfg map[string]any
	if cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
			return "", nil, fmt.Errorf("parse readerConfig: %w", err)
		}
	}
	return readerType, cfg, nil
}

func (s *Server) handlePreviewReader(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	readerType, cfg, err := parseReaderArgs(req)
	if err != nil {
		return nil, err
	}

	var pcfg pipeline.Config
	if err := json.Unmarshal([]byte(req.GetString("pipelineJSON", "")), &pcfg); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}

	maxRows := req.GetInt("maxRows", 10)
	recs, err := s.svc.Preview(ctx, readerType, cfg, &pcfg, maxRows)
	if err != nil {
		return nil, err
	}
	return jsonResult(recs)
}

func (s *Server) handleDiscoverColumns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	readerType, cfg, err := parseReaderArgs(req)
	if err != nil {
		return nil, err
	}
	cols, err := s.svc.DiscoverColumns(ctx, readerType, cfg)
	if err != nil {
		return nil, err
	}
	return jsonResult(cols)
}

func (s *Server) handleListReaders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.ListReaders())
}

func (s *Server) handleListRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"extractors":  pipeline.ExtractorNames(),
		"transforms":  pipeline.TransformNames(),
		"validators":  pipeline.ValidatorNames(),
		"crossChecks": pipeline.CrossCheckNames(),
	})
}

package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"scrub/internal/service"
)

// Server is the MCP control surface for the cleaning pipeline. It
// exposes job, run, and preview tools over stdio so agents can define
// rule tables, trigger runs, and audit outcomes.
type Server struct {
	mcp *server.MCPServer
	svc *service.JobService
	log zerolog.Logger
}

// Deps holds the dependencies wired in from main.
type Deps struct {
	Jobs *service.JobService
	Log  zerolog.Logger
}

// New creates and configures a new MCP server with all tools.
func New(deps Deps) *Server {
	s := &Server{
		svc: deps.Jobs,
		log: deps.Log.With().Str("component", "mcp").Logger(),
	}

	s.mcp = server.NewMCPServer(
		"scrub-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerJobTools()
	s.registerRunTools()
	s.registerPreviewTools()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info().Msg("starting stdio server")
	return server.ServeStdio(s.mcp)
}

package mcp

import (
	"context"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/approvedrevs/internal/engine"
	"github.com/ppiankov/approvedrevs/internal/policy"
)

// Config holds MCP server configuration.
type Config struct {
	// Actor is the wiki user every tool call runs as.
	Actor   string
	Version string
	// WatchPolicy reloads the permission registry when the policy file changes.
	WatchPolicy bool
}

// Server exposes the approval engine as MCP tools.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *engine.Engine
	actor     string
	watch     bool
	log       zerolog.Logger

	// serializes tool calls; each call is one engine request
	mu sync.Mutex
}

// New creates an MCP server over e.
func New(e *engine.Engine, cfg Config, log zerolog.Logger) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		engine: e,
		actor:  cfg.Actor,
		watch:  cfg.WatchPolicy,
		log:    log.With().Str("component", "mcp").Logger(),
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "approvedrevs",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.watch {
		s.startReloader(ctx)
	}
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) startReloader(ctx context.Context) {
	r, err := policy.NewReloader(s.engine.Policy(), s.log, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("policy hot-reload disabled")
		return
	}
	go func() {
		if err := r.Run(ctx); err != nil {
			s.log.Error().Err(err).Msg("policy watcher stopped")
		}
	}()
}

// request starts one engine request for a tool call. Callers hold s.mu.
func (s *Server) request(ctx context.Context) (*engine.Request, error) {
	return s.engine.RequestAs(ctx, s.actor)
}

// registerTools adds all approvedrevs tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "approvedrevs_status",
		Description: "Show the approval state of a page or file: whether it is approvable, its approved and latest revision or upload, and whether the current user may approve it.",
	}, s.handleStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "approvedrevs_can_approve",
		Description: "Check whether the current user may approve a page or file, without changing anything.",
	}, s.handleCanApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "approvedrevs_approve",
		Description: "Approve a page revision (latest when rev is omitted) or a file upload. Refused approvals return an error with the reason.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "approvedrevs_unapprove",
		Description: "Remove the approval of a page or file.",
	}, s.handleUnapprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "approvedrevs_list",
		Description: "List pages or files by approval state: approved, notlatest, unapproved or invalid.",
	}, s.handleList)
}

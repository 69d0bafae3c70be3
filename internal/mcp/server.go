// Package mcp exposes the agent tool surface: the blocking
// ask_questions tool and read-only review resources, served over stdio
// or a stateless HTTP endpoint.
package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/planloop/internal/bus"
	"github.com/roasbeef/planloop/internal/review"
)

// Server wraps the MCP server with review service dependencies.
type Server struct {
	server *mcp.Server
	svc    *review.Service
	bus    *bus.Bus
	log    *slog.Logger
}

// NewServer creates an MCP server with the review tools and resources
// registered.
func NewServer(svc *review.Service, eventBus *bus.Bus,
	log *slog.Logger,
) *Server {

	if log == nil {
		log = slog.Default()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "planloop",
		Version: "0.1.0",
	}, nil)

	s := &Server{
		server: mcpServer,
		svc:    svc,
		bus:    eventBus,
		log:    log.With("subsys", "mcp"),
	}

	s.registerTools()
	s.registerResources()

	return s
}

// Run starts the MCP server on the given transport and blocks until the
// transport closes or ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// HTTPHandler returns a stateless HTTP handler carrying one RPC per
// request, for mounting on the web server's /mcp route.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s.server },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)
}

// registerTools registers the agent-facing tools.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ask_questions",
		Description: "Post follow-up questions on review comments and " +
			"block until the reviewer answers them or the review " +
			"leaves the discussion state",
	}, s.handleAskQuestions)
}

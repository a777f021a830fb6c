// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes the Flutter widget inspector through MCP tools:
//
// Session Management (always available):
//   - inspector_connect: Connect to a running app or launch one
//   - inspector_disconnect: Close a session
//   - inspector_list_sessions: List open sessions
//   - inspector_launch_configs: List the Dart configurations of a launch.json
//
// Tree inspection (always available):
//   - inspector_tree, inspector_children, inspector_properties,
//     inspector_details, inspector_parent_chain
//   - inspector_selection, inspector_select
//   - inspector_elements_at_location, inspector_hit_test,
//     inspector_bounding_boxes, inspector_screenshot
//   - inspector_object_properties, inspector_enum_values,
//     inspector_property_location
//   - inspector_events, inspector_dispose_group, inspector_set_pub_roots,
//     inspector_force_refresh
//
// Mutation (full mode only):
//   - inspector_set_color: Recolor a Text or Container widget
package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/inspector-mcp/internal/config"
	"github.com/ctagard/inspector-mcp/internal/session"
	"github.com/ctagard/inspector-mcp/internal/version"
)

// Server wraps the MCP server with inspector sessions
type Server struct {
	mcpServer *server.MCPServer
	sessions  *session.Manager
	config    *config.Config
	logger    *slog.Logger
	checker   *version.Checker

	tools []string
}

// NewServer creates a new inspector MCP server. opts configure its session
// manager.
func NewServer(cfg *config.Config, logger *slog.Logger, opts ...session.Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mcpServer := server.NewMCPServer(
		"inspector-mcp",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	s := &Server{
		mcpServer: mcpServer,
		sessions:  session.NewManager(cfg, opts...),
		config:    cfg,
		logger:    logger,
		checker:   version.NewChecker(),
	}

	s.registerTools()
	return s
}

// addTool registers tool and remembers its name.
func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool.Name)
	s.mcpServer.AddTool(tool, handler)
}

// ToolNames returns the names of the registered tools in registration order.
func (s *Server) ToolNames() []string {
	return append([]string(nil), s.tools...)
}

// ServeStdio starts the server using stdio transport. It checks for a newer
// release in the background.
func (s *Server) ServeStdio() error {
	s.checker.CheckForUpdatesAsync()
	return server.ServeStdio(s.mcpServer)
}

// Close shuts down the server
func (s *Server) Close() {
	s.sessions.Close()
}

// Sessions returns the session manager
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// requestContext bounds one tool call by the configured request timeout.
func (s *Server) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ttl := s.config.RequestTTL(); ttl > 0 {
		return context.WithTimeout(ctx, ttl)
	}
	return context.WithCancel(ctx)
}

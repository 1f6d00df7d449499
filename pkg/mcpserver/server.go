// Package mcpserver exposes the workspace tool surface over the Model Context Protocol, so an
// external MCP client can drive the same file and command tools the agents use.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"forgeloop/pkg/agent/toolloop"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/tools"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "forgeloop"

// WorkspaceTools are the tools served by default. Gated and terminal tools only make sense
// inside an agent run and are never served.
//
//nolint:gochecknoglobals // read-only allow-list
var WorkspaceTools = []string{
	tools.ToolReadFile,
	tools.ToolWriteFile,
	tools.ToolEditFile,
	tools.ToolListFiles,
	tools.ToolSearchFiles,
	tools.ToolExecute,
}

// Server bridges forgeloop tools to an MCP server.
type Server struct {
	mcpServer *server.MCPServer
	logger    *logx.Logger
	observer  toolloop.Observer
	names     []string
}

// New registers the named tools of ws. A nil observer disables metrics.
func New(ws *tools.Workspace, names []string, version string, observer toolloop.Observer, logger *logx.Logger) (*Server, error) {
	if logger == nil {
		logger = logx.NewLogger("mcp")
	}
	if len(names) == 0 {
		names = WorkspaceTools
	}

	list, err := tools.NewProvider(ws, names).Tools()
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP tools: %w", err)
	}

	s := &Server{
		mcpServer: server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false)),
		logger:    logger,
		observer:  observer,
	}
	for _, tool := range list {
		if tools.RequiresApproval(tool) {
			return nil, fmt.Errorf("tool %s needs approval and cannot be served over MCP", tool.Name())
		}
		if err := s.register(tool); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Tools returns the names of the registered tools in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.names...)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) register(tool tools.Tool) error {
	def := tool.Definition()
	schema, err := json.Marshal(def.InputSchema.Map())
	if err != nil {
		return fmt.Errorf("failed to encode schema of %s: %w", def.Name, err)
	}

	s.mcpServer.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), s.handler(tool))
	s.names = append(s.names, def.Name)
	s.logger.Debug("Registered MCP tool %s", def.Name)
	return nil
}

// handler runs tool for one MCP call. Tool failures are reported as error results, never as
// protocol errors.
func (s *Server) handler(tool tools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}

		res, err := tool.Exec(ctx, args)
		outcome := toolloop.ToolOutcomeOK
		switch {
		case err != nil:
			outcome = toolloop.ToolOutcomeError
			res = &tools.ExecResult{Content: tools.ErrorPrefix + err.Error(), IsError: true}
		case res == nil:
			res = &tools.ExecResult{}
		case res.Content == tools.ResultTimeout:
			outcome = toolloop.ToolOutcomeTimeout
		case res.IsError:
			outcome = toolloop.ToolOutcomeError
		}
		if s.observer != nil {
			s.observer.ToolCall(tool.Name(), outcome)
		}
		s.logger.Info("MCP call %s: %s", tool.Name(), outcome)

		if res.IsError {
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("Serving %d tools over MCP stdio", len(s.names))
	if err := server.NewStdioServer(s.mcpServer).Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes the relay tools over the Model Context Protocol, and
// provides a small client for talking to such a server.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

// ToolRunner executes one tool call.
type ToolRunner interface {
	Execute(ctx context.Context, call tools.Call) (tools.Result, error)
}

// Server publishes every registry tool backed by a ToolRunner.
type Server struct {
	mcpServer *server.MCPServer
	runner    ToolRunner
	logger    *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server named name/version.
func NewServer(name, version string, registry *tools.Registry, runner ToolRunner, opts ...ServerOption) (*Server, error) {
	if runner == nil {
		return nil, errors.NewConfiguration("mcp.runner")
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	s := &Server{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		runner: runner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, spec := range registry.Specs() {
		schema, err := json.Marshal(spec.Parameters)
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "failed to encode tool schema", err).
				WithContext("tool_name", spec.Name)
		}
		s.mcpServer.AddTool(mcp.NewToolWithRawSchema(spec.Name, spec.Description, schema), s.handler(spec.Name))
	}
	return s, nil
}

// handler runs the tool. Tool failures are reported as error results so the
// calling model can read them; only broken wiring is a protocol error.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		call := tools.Call{Name: name, Arguments: args}
		result, err := s.runner.Execute(ctx, call)
		if err != nil {
			if result.Error == nil {
				result = tools.Failure(call, err)
			}
			s.logger.WarnContext(ctx, "mcp.tool.error",
				slog.String("tool", name),
				slog.String("kind", result.Error.Kind),
				slog.String("error", result.Error.Message),
			)
			if errors.Is(err, errors.CodeUnknownTool) {
				return nil, err
			}
			return mcp.NewToolResultError(result.Error.Kind + ": " + result.Error.Message), nil
		}
		return mcp.NewToolResultStructuredOnly(result.Result), nil
	}
}

// ServeStdio serves on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// HTTPHandler returns a streamable HTTP handler mounted at path.
func (s *Server) HTTPHandler(path string) http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer, server.WithEndpointPath(path))
}

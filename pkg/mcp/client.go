// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/canvasrelay/pkg/errors"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 2
	defaultBackoff = 200 * time.Millisecond
)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry count and base backoff.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.maxRetries = retries
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// Client talks to a remote MCP server, typically another relay.
type Client struct {
	mcpClient  client.MCPClient
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// NewClient wraps an initialized mcp-go client.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	out := &Client{
		mcpClient:  c,
		timeout:    defaultTimeout,
		maxRetries: defaultRetries,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// Dial connects to a streamable HTTP MCP endpoint and initializes the session.
func Dial(ctx context.Context, url, clientName, clientVersion string, opts ...ClientOption) (*Client, error) {
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "invalid MCP endpoint", err).
			WithContext("url", url)
	}
	if err := c.Start(ctx); err != nil {
		return nil, errors.NewUpstream("mcp", "failed to start MCP client", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	if _, err := c.Initialize(initCtx, req); err != nil {
		c.Close()
		return nil, errors.NewUpstream("mcp", "MCP initialize failed", err).
			WithContext("url", url)
	}
	return NewClient(c, opts...), nil
}

// ListTools lists the tools of the server.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	res, err := retry(ctx, c, func(ctx context.Context) (*mcp.ListToolsResult, error) {
		return c.mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

// CallTool runs a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return retry(ctx, c, func(ctx context.Context) (*mcp.CallToolResult, error) {
		return c.mcpClient.CallTool(ctx, req)
	})
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

// retry runs fn with the per-request timeout, backing off exponentially
// between attempts. Context errors are not retried.
func retry[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := c.maxRetries + 1
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		res, err := fn(reqCtx)
		cancel()
		if err == nil {
			return res, nil
		}
		if stderrors.Is(err, context.Canceled) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(c.backoff * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, errors.NewUpstream("mcp", "MCP request failed", lastErr)
}

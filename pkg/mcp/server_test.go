// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

type fakeRunner struct {
	calls []tools.Call
}

func (f *fakeRunner) Execute(ctx context.Context, call tools.Call) (tools.Result, error) {
	f.calls = append(f.calls, call)
	switch call.Name {
	case tools.NameSearchLibrary:
		return tools.Success(call, map[string]any{"images": []string{"https://u/1.jpg"}, "source": "unsplash"}), nil
	default:
		err := errors.NewUpstream("replicate", "NSFW content detected", nil)
		return tools.Failure(call, err), err
	}
}

func dial(t *testing.T, runner ToolRunner) *Client {
	t.Helper()
	s, err := NewServer("canvasrelay-test", "0.0.0", tools.NewRegistry(), runner, WithLogger(telemetry.Discard()))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv := httptest.NewServer(s.HTTPHandler("/mcp"))
	t.Cleanup(srv.Close)

	c, err := Dial(context.Background(), srv.URL+"/mcp", "test", "0.0.0", WithRetry(0, 0))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestServerListsRegistry(t *testing.T) {
	c := dial(t, &fakeRunner{})

	list, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range list {
		names = append(names, tool.Name)
	}
	if diff := cmp.Diff(tools.NewRegistry().Names(), names); diff != "" {
		t.Errorf("tool names mismatch (-want +got):\n%s", diff)
	}
	for _, tool := range list {
		if tool.Name != tools.NameSearchLibrary {
			continue
		}
		raw, _ := json.Marshal(tool)
		if !strings.Contains(string(raw), `"query"`) {
			t.Errorf("search_library schema lost its properties: %s", raw)
		}
	}
}

func TestServerCallTool(t *testing.T) {
	runner := &fakeRunner{}
	c := dial(t, runner)

	res, err := c.CallTool(context.Background(), tools.NameSearchLibrary, map[string]any{"query": "owls"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	text, ok := res.Content[0].(mcpgo.TextContent)
	if !ok || !strings.Contains(text.Text, "https://u/1.jpg") {
		t.Errorf("unexpected content %+v", res.Content)
	}
	if len(runner.calls) != 1 || runner.calls[0].Arguments["query"] != "owls" {
		t.Errorf("unexpected runner calls %+v", runner.calls)
	}
}

func TestServerToolFailure(t *testing.T) {
	c := dial(t, &fakeRunner{})

	res, err := c.CallTool(context.Background(), tools.NameGenerateAI, map[string]any{"prompt": "x"})
	if err != nil {
		t.Fatalf("a tool failure is a result, not a protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result")
	}
	text, _ := res.Content[0].(mcpgo.TextContent)
	if !strings.Contains(text.Text, "UpstreamError") || !strings.Contains(text.Text, "NSFW") {
		t.Errorf("unexpected error text %q", text.Text)
	}
}

func TestNewServerRequiresRunner(t *testing.T) {
	if _, err := NewServer("x", "0", nil, nil); !errors.Is(err, errors.CodeConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/llm"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

func fixedClock() time.Time {
	return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
}

func newTestPlanner(t *testing.T, provider llm.Provider, opts ...Option) *LLMPlanner {
	t.Helper()
	opts = append([]Option{
		WithClock(fixedClock),
		WithProviderName("scripted"),
		WithLogger(telemetry.Discard()),
	}, opts...)
	p, err := New(provider, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestNewRequiresProvider(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, errors.CodeConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestPlanToolCall(t *testing.T) {
	provider := llm.NewScriptedProvider(llm.ScriptedResponse{
		ToolCalls: []llm.ToolCall{{
			ID:       "call_1",
			Type:     llm.ToolTypeFunction,
			Function: llm.FunctionCall{Name: tools.NameSearchLibrary, Arguments: `{"query":"mountains"}`},
		}},
	})
	p := newTestPlanner(t, provider)

	plan, err := p.Plan(context.Background(), Request{
		Context: Context{
			Message: "show me mountains",
			Summary: "user likes landscapes",
			State:   map[string]any{"ratio": "16:9"},
		},
		Tools: tools.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(plan.ResponseID, "resp_") {
		t.Errorf("unexpected response id %q", plan.ResponseID)
	}
	want := []tools.Call{{
		ID:        "call_1",
		Name:      tools.NameSearchLibrary,
		Arguments: map[string]any{"query": "mountains"},
	}}
	if diff := cmp.Diff(want, plan.ToolCalls); diff != "" {
		t.Errorf("tool calls mismatch (-want +got):\n%s", diff)
	}

	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if len(reqs[0].Tools) != 6 {
		t.Errorf("expected the full registry, got %d tools", len(reqs[0].Tools))
	}
	system := reqs[0].Messages[0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("expected system message first, got %s", system.Role)
	}
	for _, fragment := range []string{"Today is 2026-10-19.", "user likes landscapes", `"ratio":"16:9"`} {
		if !strings.Contains(system.Content, fragment) {
			t.Errorf("system prompt missing %q", fragment)
		}
	}
	if reqs[0].Messages[1].Content != "show me mountains" {
		t.Errorf("unexpected user message %q", reqs[0].Messages[1].Content)
	}
}

func TestPlanAssignsMissingCallIDs(t *testing.T) {
	provider := llm.NewScriptedProvider(llm.ScriptedResponse{
		ToolCalls: []llm.ToolCall{{Function: llm.FunctionCall{Name: tools.NameRefreshWeather}}},
	})
	p := newTestPlanner(t, provider)

	plan, err := p.Plan(context.Background(), Request{Context: Context{Message: "refresh"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.ToolCalls) != 1 || !strings.HasPrefix(plan.ToolCalls[0].ID, "call_") {
		t.Errorf("expected generated call id, got %+v", plan.ToolCalls)
	}
}

func TestPlanMalformedArgumentsKeepsCall(t *testing.T) {
	provider := llm.NewScriptedProvider(llm.ScriptedResponse{
		ToolCalls: []llm.ToolCall{{ID: "c", Function: llm.FunctionCall{Name: tools.NameSetView, Arguments: "{not json"}}},
	})
	p := newTestPlanner(t, provider)

	plan, err := p.Plan(context.Background(), Request{Context: Context{Message: "weather view"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.ToolCalls) != 1 || len(plan.ToolCalls[0].Arguments) != 0 {
		t.Errorf("expected call with empty arguments, got %+v", plan.ToolCalls)
	}
}

func TestPlanContinuation(t *testing.T) {
	provider := llm.NewScriptedProvider(
		llm.ScriptedResponse{
			ToolCalls: []llm.ToolCall{{
				ID:       "call_1",
				Function: llm.FunctionCall{Name: tools.NameGenerateAI, Arguments: `{"prompt":"a fox"}`},
			}},
		},
		llm.ScriptedResponse{Content: "  Here are two foxes.  "},
	)
	p := newTestPlanner(t, provider)
	ctx := context.Background()

	first, err := p.Plan(ctx, Request{Context: Context{Message: "draw a fox"}})
	if err != nil {
		t.Fatalf("first plan: %v", err)
	}

	second, err := p.Plan(ctx, Request{
		PreviousResponseID: first.ResponseID,
		ToolOutputs: []ToolOutput{{
			CallID: "call_1",
			Name:   tools.NameGenerateAI,
			Output: map[string]any{"images": []string{"https://img/1.png", "https://img/2.png"}},
		}},
	})
	if err != nil {
		t.Fatalf("continuation: %v", err)
	}
	if second.Text != "Here are two foxes." {
		t.Errorf("unexpected text %q", second.Text)
	}
	if second.ResponseID == first.ResponseID {
		t.Error("continuation must get a new response id")
	}

	reqs := provider.Requests()
	msgs := reqs[1].Messages
	if len(msgs) != 4 {
		t.Fatalf("expected system, user, assistant and tool messages, got %d", len(msgs))
	}
	if msgs[2].Role != llm.RoleAssistant || len(msgs[2].ToolCalls) != 1 {
		t.Errorf("expected assistant tool call message, got %+v", msgs[2])
	}
	tool := msgs[3]
	if tool.Role != llm.RoleTool || tool.ToolCallID != "call_1" || tool.ToolName != tools.NameGenerateAI {
		t.Errorf("unexpected tool message %+v", tool)
	}
	if !strings.Contains(tool.Content, "https://img/2.png") {
		t.Errorf("tool output not encoded: %s", tool.Content)
	}

	// The first transcript is unchanged by the continuation.
	again, _ := p.transcripts.Get(first.ResponseID)
	if len(again) != 3 {
		t.Errorf("cached transcript mutated: %d messages", len(again))
	}
}

func TestPlanUnknownContinuation(t *testing.T) {
	provider := llm.NewScriptedProvider()
	p := newTestPlanner(t, provider)

	_, err := p.Plan(context.Background(), Request{PreviousResponseID: "resp_missing"})
	if !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if provider.CallCount() != 0 {
		t.Error("provider must not be called for an unknown continuation")
	}
}

func TestPlanProviderError(t *testing.T) {
	p := newTestPlanner(t, &llm.FailingProvider{Err: stderrors.New("connection refused")})

	_, err := p.Plan(context.Background(), Request{Context: Context{Message: "hi"}})
	if !errors.Is(err, errors.CodeUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected cause in error, got %v", err)
	}

	typed := newTestPlanner(t, &llm.FailingProvider{Err: errors.NewTimeout("chat", nil)})
	if _, err := typed.Plan(context.Background(), Request{Context: Context{Message: "hi"}}); !errors.Is(err, errors.CodeTimeout) {
		t.Errorf("typed provider errors must pass through, got %v", err)
	}
}

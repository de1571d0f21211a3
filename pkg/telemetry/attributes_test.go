// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestTurnAttributes(t *testing.T) {
	attrs := TurnAttributes("turn-1", "sess-1", 17)
	assertAttributes(t, attrs, map[string]any{
		AttrTurnID:        "turn-1",
		AttrSessionID:     "sess-1",
		AttrTurnMsgLength: 17,
	})

	if len(TurnAttributes("turn-2", "", 0)) != 2 {
		t.Error("session id must be omitted when empty")
	}
}

func TestIntentAttributes(t *testing.T) {
	assertAttributes(t, IntentAttributes("heuristic", "search", false), map[string]any{
		AttrIntentSource:  "heuristic",
		AttrIntentRule:    "search",
		AttrIntentClarify: false,
	})
}

func TestToolCallAttributes(t *testing.T) {
	attrs := ToolCallAttributes("generate_ai", "call_1", 42.5, false, "TimeoutError")
	assertAttributes(t, attrs, map[string]any{
		AttrToolName:       "generate_ai",
		AttrToolCallID:     "call_1",
		AttrToolDurationMs: 42.5,
		AttrToolSuccess:    false,
		AttrToolErrorKind:  "TimeoutError",
	})
}

func TestToolCallArgsResultTruncation(t *testing.T) {
	long := strings.Repeat("x", 600)
	attrs := ToolCallArgsResult(long, "ok", 100)
	assertAttributes(t, attrs, map[string]any{
		AttrToolArgs:   strings.Repeat("x", 97) + "...",
		AttrToolResult: "ok",
	})
}

func TestJobAttributes(t *testing.T) {
	assertAttributes(t, JobAttributes("p-1", "succeeded", 3), map[string]any{
		AttrJobID:     "p-1",
		AttrJobStatus: "succeeded",
		AttrJobPolls:  3,
	})
}

func TestLLMUsageAttributes(t *testing.T) {
	attrs := LLMUsageAttributes(10, 5, 120, "resp-1")
	assertAttributes(t, attrs, map[string]any{
		AttrLLMTokensInput:  10,
		AttrLLMTokensOutput: 5,
		AttrLLMTokensTotal:  15,
		AttrLLMDurationMs:   120.0,
		AttrLLMResponseID:   "resp-1",
	})

	if len(LLMUsageAttributes(0, 0, 1, "")) != 1 {
		t.Error("zero usage must only carry the duration")
	}
}

func assertAttributes(t *testing.T, attrs []attribute.KeyValue, expected map[string]any) {
	t.Helper()

	found := make(map[string]attribute.KeyValue)
	for _, attr := range attrs {
		found[string(attr.Key)] = attr
	}

	for key, expectedVal := range expected {
		attr, ok := found[key]
		if !ok {
			t.Errorf("missing attribute %s", key)
			continue
		}

		var actualVal any
		switch attr.Value.Type() {
		case attribute.STRING:
			actualVal = attr.Value.AsString()
		case attribute.INT64:
			actualVal = int(attr.Value.AsInt64())
		case attribute.FLOAT64:
			actualVal = attr.Value.AsFloat64()
		case attribute.BOOL:
			actualVal = attr.Value.AsBool()
		}

		if actualVal != expectedVal {
			t.Errorf("attribute %s: got %v, want %v", key, actualVal, expectedVal)
		}
	}
}

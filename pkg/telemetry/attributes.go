// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry setup, trace-aware logging and the
// span attributes and metrics recorded by the relay.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys. gen_ai.* follow the OpenTelemetry GenAI conventions.
const (
	// Turn attributes
	AttrTurnID        = "canvasrelay.turn.id"
	AttrSessionID     = "canvasrelay.session.id"
	AttrTurnHasTool   = "canvasrelay.turn.has_tool"
	AttrTurnMsgLength = "canvasrelay.turn.message_length"

	// Intent attributes
	AttrIntentSource  = "canvasrelay.intent.source" // "planner", "heuristic", "none"
	AttrIntentRule    = "canvasrelay.intent.rule"
	AttrIntentClarify = "canvasrelay.intent.clarifying"

	// Tool attributes
	AttrToolName       = "canvasrelay.tool.name"
	AttrToolCallID     = "canvasrelay.tool.call_id"
	AttrToolArgs       = "canvasrelay.tool.arguments"
	AttrToolResult     = "canvasrelay.tool.result"
	AttrToolDurationMs = "canvasrelay.tool.duration_ms"
	AttrToolSuccess    = "canvasrelay.tool.success"
	AttrToolErrorKind  = "canvasrelay.tool.error_kind"

	// Provider adapter attributes
	AttrProvider      = "canvasrelay.provider.name"
	AttrProviderModel = "canvasrelay.provider.model"
	AttrJobID         = "canvasrelay.job.id"
	AttrJobStatus     = "canvasrelay.job.status"
	AttrJobPolls      = "canvasrelay.job.polls"

	// LLM attributes
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
	AttrLLMResponseID   = "gen_ai.response.id"
)

// TurnAttributes returns the attributes of an agent turn span.
func TurnAttributes(turnID, sessionID string, messageLen int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrTurnID, turnID),
		attribute.Int(AttrTurnMsgLength, messageLen),
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrSessionID, sessionID))
	}
	return attrs
}

// IntentAttributes describes how a turn's tool call was decided.
func IntentAttributes(source, rule string, clarifying bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrIntentSource, source),
		attribute.Bool(AttrIntentClarify, clarifying),
	}
	if rule != "" {
		attrs = append(attrs, attribute.String(AttrIntentRule, rule))
	}
	return attrs
}

// ToolCallAttributes returns attributes for a tool execution span.
func ToolCallAttributes(name, callID string, durationMs float64, success bool, errorKind string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
	if callID != "" {
		attrs = append(attrs, attribute.String(AttrToolCallID, callID))
	}
	if errorKind != "" {
		attrs = append(attrs, attribute.String(AttrToolErrorKind, errorKind))
	}
	return attrs
}

// ToolCallArgsResult returns tool arguments and result, truncated to maxLen.
func ToolCallArgsResult(args, result string, maxLen int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolArgs, truncate(args, maxLen)),
		attribute.String(AttrToolResult, truncate(result, maxLen)),
	}
}

// ProviderAttributes identifies an outbound provider call.
func ProviderAttributes(provider, model string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrProvider, provider)}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrProviderModel, model))
	}
	return attrs
}

// JobAttributes describes an asynchronous prediction job.
func JobAttributes(id, status string, polls int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrJobID, id),
		attribute.String(AttrJobStatus, status),
		attribute.Int(AttrJobPolls, polls),
	}
}

// LLMAttributes returns attributes for a planner chat call.
func LLMAttributes(model, provider string, msgCount, toolCallCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrLLMMessages, msgCount),
		attribute.Int(AttrLLMToolCalls, toolCallCount),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	return attrs
}

// LLMUsageAttributes returns token usage and latency attributes.
func LLMUsageAttributes(inputTokens, outputTokens int, durationMs float64, responseID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Float64(AttrLLMDurationMs, durationMs),
	}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	if responseID != "" {
		attrs = append(attrs, attribute.String(AttrLLMResponseID, responseID))
	}
	return attrs
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

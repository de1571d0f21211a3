// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package planner asks a chat model which tool, if any, a user message calls
// for, and continues a previous plan once tool outputs are known.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/llm"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

// Context is what the planner knows about the current turn.
type Context struct {
	Message string
	Summary string
	State   map[string]any
}

// ToolOutput is the result of a call the planner asked for.
type ToolOutput struct {
	CallID string
	Name   string
	Output any
}

// Request is one planning call. A non-empty PreviousResponseID continues that
// plan with ToolOutputs instead of starting from Context.
type Request struct {
	Context            Context
	Tools              *tools.Registry
	PreviousResponseID string
	ToolOutputs        []ToolOutput
}

// Plan is the planner's answer: text, tool calls, or both.
type Plan struct {
	ResponseID string
	Text       string
	ToolCalls  []tools.Call
}

// Planner decides tool calls for a turn.
type Planner interface {
	Plan(ctx context.Context, req Request) (*Plan, error)
}

const (
	defaultTranscriptTTL      = 10 * time.Minute
	defaultTranscriptCapacity = 1000
)

// LLMPlanner implements Planner on top of an llm.Provider. Transcripts of
// recent plans are kept in memory so a plan can be continued by response id.
type LLMPlanner struct {
	provider     llm.Provider
	providerName string
	model        string
	temperature  float64
	systemPrompt string

	ttl         time.Duration
	capacity    int
	transcripts otter.Cache[string, []llm.Message]

	now     func() time.Time
	tracer  trace.Tracer
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// Option configures an LLMPlanner.
type Option func(*LLMPlanner)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(p *LLMPlanner) { p.model = model }
}

// WithProviderName labels spans, logs and metrics.
func WithProviderName(name string) Option {
	return func(p *LLMPlanner) { p.providerName = name }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *LLMPlanner) { p.temperature = t }
}

// WithSystemPrompt replaces the built-in instructions.
func WithSystemPrompt(prompt string) Option {
	return func(p *LLMPlanner) {
		if strings.TrimSpace(prompt) != "" {
			p.systemPrompt = prompt
		}
	}
}

// WithTranscriptTTL sets how long a plan can be continued.
func WithTranscriptTTL(ttl time.Duration) Option {
	return func(p *LLMPlanner) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithTranscriptCapacity bounds the number of retained transcripts.
func WithTranscriptCapacity(n int) Option {
	return func(p *LLMPlanner) {
		if n > 0 {
			p.capacity = n
		}
	}
}

// WithClock sets the clock used for the current date in the instructions.
func WithClock(now func() time.Time) Option {
	return func(p *LLMPlanner) { p.now = now }
}

// WithMetrics records planner latency.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *LLMPlanner) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *LLMPlanner) { p.logger = l }
}

// New creates an LLMPlanner.
func New(provider llm.Provider, opts ...Option) (*LLMPlanner, error) {
	if provider == nil {
		return nil, errors.NewConfiguration("planner.provider")
	}
	p := &LLMPlanner{
		provider:     provider,
		providerName: "llm",
		systemPrompt: defaultSystemPrompt,
		ttl:          defaultTranscriptTTL,
		capacity:     defaultTranscriptCapacity,
		now:          time.Now,
		tracer:       otel.Tracer("canvasrelay/planner"),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	cache, err := otter.MustBuilder[string, []llm.Message](p.capacity).
		WithTTL(p.ttl).
		Build()
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to build transcript cache", err)
	}
	p.transcripts = cache
	return p, nil
}

// Close releases the transcript cache.
func (p *LLMPlanner) Close() {
	p.transcripts.Close()
}

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, req Request) (*Plan, error) {
	if req.Tools == nil {
		req.Tools = tools.NewRegistry()
	}

	messages, err := p.messages(req)
	if err != nil {
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "Planner.Plan")
	defer span.End()
	span.SetAttributes(telemetry.LLMAttributes(p.model, p.providerName, len(messages), 0)...)

	start := time.Now()
	resp, err := p.provider.Chat(ctx, llm.ChatRequest{
		Model:       p.model,
		Messages:    messages,
		Tools:       req.Tools.LLMTools(),
		Temperature: p.temperature,
	})
	elapsed := time.Since(start)
	p.metrics.RecordPlannerCall(ctx, p.providerName, elapsed, err)
	if err != nil {
		re := errors.AsRelayError(err)
		if re.Code == errors.CodeInternal {
			re = errors.NewUpstream(p.providerName, "planner call failed", err)
		}
		span.RecordError(re)
		span.SetStatus(codes.Error, re.Message)
		p.logger.WarnContext(ctx, "planner.chat.error",
			slog.String("provider", p.providerName),
			slog.String("error", err.Error()),
		)
		return nil, re
	}

	plan := &Plan{
		ResponseID: "resp_" + uuid.NewString(),
		Text:       strings.TrimSpace(resp.Content),
	}
	assistant := llm.Message{Role: llm.RoleAssistant, Content: resp.Content}
	for _, tc := range resp.ToolCalls {
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		if tc.Type == "" {
			tc.Type = llm.ToolTypeFunction
		}
		assistant.ToolCalls = append(assistant.ToolCalls, tc)

		call, err := tools.CallFromLLM(tc)
		if err != nil {
			p.logger.WarnContext(ctx, "planner.tool_call.malformed",
				slog.String("tool", tc.Function.Name),
				slog.String("error", err.Error()),
			)
		}
		plan.ToolCalls = append(plan.ToolCalls, call)
	}

	p.transcripts.Set(plan.ResponseID, append(messages, assistant))

	span.SetAttributes(telemetry.LLMAttributes(p.model, p.providerName, len(messages), len(plan.ToolCalls))...)
	span.SetAttributes(telemetry.LLMUsageAttributes(
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
		float64(elapsed)/float64(time.Millisecond), plan.ResponseID)...)
	p.logger.DebugContext(ctx, "planner.chat.complete",
		slog.String("provider", p.providerName),
		slog.String("response_id", plan.ResponseID),
		slog.Int("tool_calls", len(plan.ToolCalls)),
		slog.Bool("has_text", plan.Text != ""),
		slog.String("finish_reason", resp.FinishReason),
	)
	return plan, nil
}

func (p *LLMPlanner) messages(req Request) ([]llm.Message, error) {
	if req.PreviousResponseID == "" {
		return []llm.Message{
			llm.SystemMessage(p.instructions(req.Context)),
			llm.UserMessage(req.Context.Message),
		}, nil
	}

	previous, ok := p.transcripts.Get(req.PreviousResponseID)
	if !ok {
		return nil, errors.NewNotFound("planner response", req.PreviousResponseID)
	}
	// The cached slice is shared; copy before appending.
	messages := make([]llm.Message, len(previous), len(previous)+len(req.ToolOutputs))
	copy(messages, previous)
	for _, out := range req.ToolOutputs {
		content, err := json.Marshal(out.Output)
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "failed to encode tool output", err).
				WithContext("tool_name", out.Name)
		}
		messages = append(messages, llm.ToolResultMessage(out.CallID, out.Name, string(content)))
	}
	return messages, nil
}

func (p *LLMPlanner) instructions(c Context) string {
	var b strings.Builder
	b.WriteString(p.systemPrompt)
	fmt.Fprintf(&b, "\n\nToday is %s.", p.now().Format(tools.DateLayout))
	if s := strings.TrimSpace(c.Summary); s != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(s)
	}
	if len(c.State) > 0 {
		if state, err := json.Marshal(c.State); err == nil {
			b.WriteString("\n\nCurrent app state (JSON):\n")
			b.Write(state)
		}
	}
	return b.String()
}

const defaultSystemPrompt = `You are the assistant of a visual canvas app. The user can browse stock photos, generate or refine images with AI, and check the weather.
Call a tool when the user asks for one of these actions, with at most one tool call per message:
- search_library for existing photos,
- generate_ai for new images,
- refine_image to edit an image the user points at,
- set_view to switch between the weather and gallery views,
- refresh_weather to reload the current weather,
- get_weather_history for past weather of a city; pass the date as YYYY-MM-DD.
If the request is ambiguous, ask a short clarifying question instead of calling a tool.
After a tool result arrives, answer in one or two short sentences.`

var _ Planner = (*LLMPlanner)(nil)

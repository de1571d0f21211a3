// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent runs one conversation turn: resolve the intent, execute at
// most one tool, and compose the reply.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/intent"
	"github.com/jllopis/canvasrelay/pkg/planner"
	"github.com/jllopis/canvasrelay/pkg/resilience"
	"github.com/jllopis/canvasrelay/pkg/session"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

// DefaultTurnTimeout bounds a whole turn, including image jobs.
const DefaultTurnTimeout = 150 * time.Second

// DefaultReply is used when nothing else has anything to say.
const DefaultReply = "What would you like to do next?"

// TurnRequest is the input of one turn.
type TurnRequest struct {
	Message   string         `json:"message"`
	Summary   string         `json:"summary,omitempty"`
	State     map[string]any `json:"state,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// TurnResponse is the outcome of one turn.
type TurnResponse struct {
	Tools []tools.Result `json:"tools"`
	Reply string         `json:"reply"`
}

// Resolver decides the tool call of a turn.
type Resolver interface {
	Resolve(ctx context.Context, turn intent.Turn) (*intent.Decision, error)
}

// Executor runs a tool call.
type Executor interface {
	Execute(ctx context.Context, call tools.Call) (tools.Result, error)
}

// Agent orchestrates turns.
type Agent struct {
	resolver    Resolver
	executor    Executor
	planner     planner.Planner
	registry    *tools.Registry
	sessions    *session.Store
	turnTimeout time.Duration
	tracer      trace.Tracer
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithPlanner enables the follow-up planner call that phrases the reply from
// a tool output. It should be the planner the resolver asks.
func WithPlanner(p planner.Planner, registry *tools.Registry) Option {
	return func(a *Agent) {
		a.planner = p
		a.registry = registry
	}
}

// WithSessions queues UI commands for turns that carry a session id.
func WithSessions(s *session.Store) Option {
	return func(a *Agent) { a.sessions = s }
}

// WithTurnTimeout sets the turn deadline. Zero disables it.
func WithTurnTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d >= 0 {
			a.turnTimeout = d
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an Agent.
func New(resolver Resolver, executor Executor, opts ...Option) (*Agent, error) {
	if resolver == nil {
		return nil, errors.NewConfiguration("agent.resolver")
	}
	if executor == nil {
		return nil, errors.NewConfiguration("agent.executor")
	}
	a := &Agent{
		resolver:    resolver,
		executor:    executor,
		turnTimeout: DefaultTurnTimeout,
		tracer:      otel.Tracer("canvasrelay/agent"),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = tools.NewRegistry()
	}
	return a, nil
}

// Turn runs one turn. The returned error is a RelayError; tool failures that
// do not end the turn are reported inside the response instead.
func (a *Agent) Turn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.NewInvalidInput("message is required")
	}

	ctx, turnID := core.EnsureTurnID(ctx)
	if req.SessionID != "" {
		ctx = core.WithSessionID(ctx, req.SessionID)
	}
	ctx, span := a.tracer.Start(ctx, "Agent.Turn")
	defer span.End()
	span.SetAttributes(telemetry.TurnAttributes(turnID, req.SessionID, len(req.Message))...)

	a.logger.InfoContext(ctx, "agent.turn.start",
		slog.String("turn_id", turnID),
		slog.String("session_id", req.SessionID),
	)

	start := time.Now()
	resp, err := resilience.WithTimeout(ctx, "agent turn", a.turnTimeout, func(ctx context.Context) (*TurnResponse, error) {
		return a.turn(ctx, req)
	})
	elapsed := time.Since(start)

	if err != nil {
		err = turnError(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordTurn(ctx, errors.KindOf(err), elapsed)
		a.metrics.RecordError(ctx, err, "agent")
		a.logger.ErrorContext(ctx, "agent.turn.error",
			slog.String("turn_id", turnID),
			slog.String("kind", errors.KindOf(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	a.metrics.RecordTurn(ctx, "ok", elapsed)
	a.logger.InfoContext(ctx, "agent.turn.complete",
		slog.String("turn_id", turnID),
		slog.Int("tools", len(resp.Tools)),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)
	return resp, nil
}

func (a *Agent) turn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	decision, err := a.resolver.Resolve(ctx, intent.Turn{
		Message: req.Message,
		Summary: req.Summary,
		State:   req.State,
	})
	if err != nil {
		return nil, err
	}

	resp := &TurnResponse{Tools: []tools.Result{}}
	if decision.Call == nil {
		resp.Reply = firstNonEmpty(decision.Clarification, strings.TrimSpace(decision.Text), DefaultReply)
		return resp, nil
	}

	call := *decision.Call
	result, err := a.executor.Execute(ctx, call)
	if err != nil {
		if fatal(err) {
			return nil, err
		}
		// The turn deadline fired while the tool ran.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	resp.Tools = append(resp.Tools, result)

	a.notify(ctx, req.SessionID, result)

	if text := a.continuation(ctx, decision, result); text != "" {
		resp.Reply = text
		return resp, nil
	}
	resp.Reply = Reply(result)
	return resp, nil
}

// continuation asks the planner to phrase the reply from the tool output.
// An empty string means the deterministic reply should be used.
func (a *Agent) continuation(ctx context.Context, d *intent.Decision, result tools.Result) string {
	if a.planner == nil || d.Source != intent.SourcePlanner || !result.Succeeded() {
		return ""
	}
	if d.ResponseID == "" || d.Call.ID == "" {
		return ""
	}
	plan, err := a.planner.Plan(ctx, planner.Request{
		Tools:              a.registry,
		PreviousResponseID: d.ResponseID,
		ToolOutputs: []planner.ToolOutput{{
			CallID: d.Call.ID,
			Name:   d.Call.Name,
			Output: result.Result,
		}},
	})
	if err != nil {
		a.logger.WarnContext(ctx, "agent.continuation.error",
			slog.String("response_id", d.ResponseID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return strings.TrimSpace(plan.Text)
}

// notify queues the UI command matching a successful set_view or
// refresh_weather call.
func (a *Agent) notify(ctx context.Context, sessionID string, result tools.Result) {
	if a.sessions == nil || sessionID == "" || !result.Succeeded() {
		return
	}
	var cmd session.Command
	switch result.Name {
	case tools.NameSetView:
		cmd = session.Command{Type: session.CommandSetView, Payload: map[string]any{"view": field(result.Result, "view")}}
	case tools.NameRefreshWeather:
		cmd = session.Command{Type: session.CommandRefreshWeather}
	default:
		return
	}
	if _, err := a.sessions.Enqueue(sessionID, cmd); err != nil {
		a.logger.WarnContext(ctx, "agent.session.enqueue.error",
			slog.String("session_id", sessionID),
			slog.String("command", cmd.Type),
			slog.String("error", err.Error()),
		)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package intent decides which tool, if any, a user message calls for.
// The planner is asked first; deterministic text rules are the fallback.
package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/planner"
	"github.com/jllopis/canvasrelay/pkg/resilience"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

// Source tells where a decision came from.
type Source string

const (
	SourcePlanner   Source = "planner"
	SourceHeuristic Source = "heuristic"
	SourceNone      Source = "none"
)

// Turn is the input of one resolution. State is read, never mutated.
type Turn struct {
	Message string
	Summary string
	State   map[string]any
}

// Decision is the resolver's output. At most one of Call and Clarification
// is set; Text carries planner prose when there is any.
type Decision struct {
	Call          *tools.Call
	Source        Source
	Rule          string
	ResponseID    string
	Text          string
	Clarification string
}

// Resolver maps a turn to a Decision.
type Resolver struct {
	planner  planner.Planner
	registry *tools.Registry
	breaker  *resilience.CircuitBreaker
	rules    []rule
	now      func() time.Time
	tracer   trace.Tracer
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the clock used to turn relative dates into ISO dates.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithCircuitBreaker replaces the default planner circuit breaker.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(r *Resolver) { r.breaker = cb }
}

// WithMetrics records breaker state changes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver. A nil planner leaves only the heuristic rules.
func New(p planner.Planner, registry *tools.Registry, opts ...Option) *Resolver {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	r := &Resolver{
		planner:  p,
		registry: registry,
		rules:    defaultRules(),
		now:      time.Now,
		tracer:   otel.Tracer("canvasrelay/intent"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "planner",
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
		})
	}
	return r
}

// PlannerState reports the planner circuit breaker state.
func (r *Resolver) PlannerState() resilience.CircuitBreakerState {
	return r.breaker.State()
}

// Resolve decides the turn's tool call. It only fails when the planner was
// unreachable and no rule matched either.
func (r *Resolver) Resolve(ctx context.Context, turn Turn) (*Decision, error) {
	ctx, span := r.tracer.Start(ctx, "Intent.Resolve")
	defer span.End()

	var plannerErr error
	if r.planner != nil {
		d, err := r.fromPlanner(ctx, turn)
		switch {
		case err != nil:
			plannerErr = err
			r.logger.WarnContext(ctx, "intent.planner.error",
				slog.String("error", err.Error()),
				slog.String("breaker", string(r.breaker.State())),
			)
		case d != nil:
			span.SetAttributes(telemetry.IntentAttributes(string(d.Source), "", false)...)
			return d, nil
		}
	}

	if d := r.fromRules(turn); d != nil {
		span.SetAttributes(telemetry.IntentAttributes(string(d.Source), d.Rule, d.Clarification != "")...)
		r.logger.DebugContext(ctx, "intent.heuristic.match",
			slog.String("rule", d.Rule),
			slog.Bool("clarifying", d.Clarification != ""),
		)
		return d, nil
	}

	if plannerErr != nil {
		return nil, errors.NewUpstream("planner", "planner unavailable and no intent could be inferred", plannerErr)
	}
	span.SetAttributes(telemetry.IntentAttributes(string(SourceNone), "", false)...)
	return &Decision{Source: SourceNone}, nil
}

// fromPlanner returns nil without error when the planner gave nothing usable.
func (r *Resolver) fromPlanner(ctx context.Context, turn Turn) (*Decision, error) {
	var plan *planner.Plan
	err := r.breaker.Call(ctx, func() error {
		var err error
		plan, err = r.planner.Plan(ctx, planner.Request{
			Context: planner.Context{
				Message: turn.Message,
				Summary: turn.Summary,
				State:   turn.State,
			},
			Tools: r.registry,
		})
		return err
	})
	r.metrics.RecordCircuitBreakerState(ctx, "planner", breakerGauge(r.breaker.State()))
	if err != nil {
		return nil, err
	}

	if len(plan.ToolCalls) > 0 {
		// Only the first invocation runs per turn.
		call := plan.ToolCalls[0]
		return &Decision{
			Call:       &call,
			Source:     SourcePlanner,
			ResponseID: plan.ResponseID,
			Text:       plan.Text,
		}, nil
	}
	if strings.TrimSpace(plan.Text) != "" {
		return &Decision{
			Source:     SourcePlanner,
			ResponseID: plan.ResponseID,
			Text:       plan.Text,
		}, nil
	}
	return nil, nil
}

func (r *Resolver) fromRules(turn Turn) *Decision {
	msg := strings.TrimSpace(turn.Message)
	if msg == "" {
		return nil
	}
	in := ruleInput{message: msg, lower: strings.ToLower(msg), state: turn.State, today: r.now()}
	for _, rl := range r.rules {
		if d := rl.match(in); d != nil {
			d.Source = SourceHeuristic
			d.Rule = rl.name
			return d
		}
	}
	return nil
}

// PreferredRatio returns the caller's preferred ratio from state, or the
// default ratio.
func PreferredRatio(state map[string]any) string {
	for _, key := range []string{"ratio", "aspect_ratio"} {
		if v, ok := state[key].(string); ok && core.ValidRatio(v) {
			return v
		}
	}
	return core.DefaultRatio
}

func breakerGauge(s resilience.CircuitBreakerState) int64 {
	switch s {
	case resilience.StateOpen:
		return 0
	case resilience.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

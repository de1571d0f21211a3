// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/canvasrelay/pkg/errors"
)

// MeterName is the instrumentation scope of every relay instrument.
const MeterName = "canvasrelay"

// Metrics holds the OTEL instruments recorded by the agent core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	turns          metric.Int64Counter
	turnLatency    metric.Float64Histogram
	toolCalls      metric.Int64Counter
	toolLatency    metric.Float64Histogram
	plannerLatency metric.Float64Histogram
	jobPolls       metric.Int64Histogram
	errorCounter   metric.Int64Counter
	breakerState   metric.Int64Gauge
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(MeterName))
}

// NewMetricsWithMeter creates the instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.turns, err = meter.Int64Counter("canvasrelay.agent.turns",
		metric.WithDescription("Agent turns by outcome")); err != nil {
		return nil, err
	}
	if m.turnLatency, err = meter.Float64Histogram("canvasrelay.agent.turn.duration",
		metric.WithDescription("Agent turn latency"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.toolCalls, err = meter.Int64Counter("canvasrelay.tool.calls",
		metric.WithDescription("Tool executions by tool and outcome")); err != nil {
		return nil, err
	}
	if m.toolLatency, err = meter.Float64Histogram("canvasrelay.tool.duration",
		metric.WithDescription("Tool execution latency"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.plannerLatency, err = meter.Float64Histogram("canvasrelay.planner.duration",
		metric.WithDescription("Planner call latency"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.jobPolls, err = meter.Int64Histogram("canvasrelay.job.polls",
		metric.WithDescription("Status polls per asynchronous image job")); err != nil {
		return nil, err
	}
	if m.errorCounter, err = meter.Int64Counter("canvasrelay.errors.total",
		metric.WithDescription("Errors by code and component")); err != nil {
		return nil, err
	}
	if m.breakerState, err = meter.Int64Gauge("canvasrelay.circuitbreaker.state",
		metric.WithDescription("Circuit breaker state per component (0=open, 1=half-open, 2=closed)")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordTurn counts a finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.turns.Add(ctx, 1, attrs)
	m.turnLatency.Record(ctx, durationMs(d), attrs)
}

// RecordToolCall counts one tool execution. errorKind is empty on success.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, errorKind string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if errorKind != "" {
		outcome = "error"
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("outcome", outcome),
		attribute.String("error.kind", errorKind),
	))
	m.toolLatency.Record(ctx, durationMs(d), metric.WithAttributes(
		attribute.String("tool.name", tool),
	))
}

// RecordPlannerCall records the latency of one planner request.
func (m *Metrics) RecordPlannerCall(ctx context.Context, provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.plannerLatency.Record(ctx, durationMs(d), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", err == nil),
	))
}

// RecordJobPolls records how many status polls an image job needed.
func (m *Metrics) RecordJobPolls(ctx context.Context, provider, status string, polls int) {
	if m == nil {
		return
	}
	m.jobPolls.Record(ctx, int64(polls), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

// RecordError increments the error counter for err's code and component.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	re := errors.AsRelayError(err)
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", string(re.Code)),
		attribute.String("component", component),
		attribute.String("recoverable", re.RecoverableString()),
	))
}

// RecordCircuitBreakerState records a breaker state (0=open, 1=half-open, 2=closed).
func (m *Metrics) RecordCircuitBreakerState(ctx context.Context, component string, state int64) {
	if m == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String("component", component),
	))
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

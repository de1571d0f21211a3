// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor runs decoded tool calls against the provider adapters and
// normalizes their outputs into tool results.
package executor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

// Adapters are the capabilities the executor calls into. Any of them may be
// nil; calling a tool whose adapter is missing fails with a configuration
// error.
type Adapters struct {
	// Searchers maps a library source (unsplash, pexels) to its adapter.
	Searchers map[string]core.ImageSearcher
	Generator core.ImageGenerator
	Refiner   core.ImageRefiner
	Geocoder  core.Geocoder
	Archive   core.WeatherArchive
}

// WeatherReport is the get_weather_history result.
type WeatherReport struct {
	City      string  `json:"city"`
	Country   string  `json:"country,omitempty"`
	Date      string  `json:"date"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	TemperatureMax   float64 `json:"temperature_max"`
	TemperatureMin   float64 `json:"temperature_min"`
	PrecipitationSum float64 `json:"precipitation_sum"`
	WindspeedMax     float64 `json:"windspeed_max"`
}

const maxAttrLen = 1024

// Executor runs tool calls.
type Executor struct {
	adapters Adapters
	tracer   trace.Tracer
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics records tool executions.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an Executor.
func New(adapters Adapters, opts ...Option) *Executor {
	e := &Executor{
		adapters: adapters,
		tracer:   otel.Tracer("canvasrelay/executor"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs call and always returns its Result. The error is non-nil
// exactly when the Result carries an error, so callers can inspect its code.
func (e *Executor) Execute(ctx context.Context, call tools.Call) (tools.Result, error) {
	ctx, span := e.tracer.Start(ctx, "Executor.Execute")
	defer span.End()

	start := time.Now()
	value, err := e.run(ctx, call)
	elapsed := time.Since(start)

	var result tools.Result
	if err != nil {
		result = tools.Failure(call, err)
	} else {
		result = tools.Success(call, value)
	}

	errorKind := errors.KindOf(err)
	durationMs := float64(elapsed) / float64(time.Millisecond)
	span.SetAttributes(telemetry.ToolCallAttributes(call.Name, call.ID, durationMs, err == nil, errorKind)...)
	span.SetAttributes(telemetry.ToolCallArgsResult(encode(call.Arguments), encode(result.Result), maxAttrLen)...)
	e.metrics.RecordToolCall(ctx, call.Name, errorKind, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result.Error.Message)
		e.metrics.RecordError(ctx, err, "executor")
		e.logger.WarnContext(ctx, "executor.tool.error",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID),
			slog.String("kind", errorKind),
			slog.String("error", result.Error.Message),
		)
		return result, err
	}
	e.logger.DebugContext(ctx, "executor.tool.complete",
		slog.String("tool", call.Name),
		slog.String("call_id", call.ID),
		slog.Float64("duration_ms", durationMs),
	)
	return result, nil
}

func (e *Executor) run(ctx context.Context, call tools.Call) (any, error) {
	args, err := tools.Decode(call)
	if err != nil {
		return nil, err
	}

	switch a := args.(type) {
	case *tools.SearchLibrary:
		return e.search(ctx, a)
	case *tools.GenerateAI:
		if e.adapters.Generator == nil {
			return nil, errors.NewConfiguration("providers.replicate")
		}
		images, err := e.adapters.Generator.Generate(ctx, a.Prompt, a.Count, a.AspectRatio)
		if err != nil {
			return nil, upstream("replicate", err)
		}
		return map[string]any{"images": images}, nil
	case *tools.RefineImage:
		if e.adapters.Refiner == nil {
			return nil, errors.NewConfiguration("providers.replicate")
		}
		image, err := e.adapters.Refiner.Refine(ctx, a.Prompt, a.InputImage)
		if err != nil {
			return nil, upstream("replicate", err)
		}
		return map[string]any{"image": image}, nil
	case *tools.SetView:
		return map[string]any{"view": a.View}, nil
	case *tools.RefreshWeather:
		return map[string]any{"ok": true}, nil
	case *tools.GetWeatherHistory:
		return e.weatherHistory(ctx, a)
	default:
		return nil, errors.NewUnknownTool(call.Name)
	}
}

func (e *Executor) search(ctx context.Context, a *tools.SearchLibrary) (any, error) {
	searcher := e.adapters.Searchers[a.Source]
	if searcher == nil {
		return nil, errors.NewConfiguration("providers." + a.Source)
	}
	images, err := searcher.Search(ctx, a.Query, a.Ratio)
	if err != nil {
		return nil, upstream(a.Source, err)
	}
	if images == nil {
		images = []string{}
	}
	return core.SearchResult{Images: images, Source: a.Source}, nil
}

func (e *Executor) weatherHistory(ctx context.Context, a *tools.GetWeatherHistory) (any, error) {
	if e.adapters.Geocoder == nil || e.adapters.Archive == nil {
		return nil, errors.NewConfiguration("providers.openmeteo")
	}
	loc, err := e.adapters.Geocoder.Geocode(ctx, a.City)
	if err != nil {
		return nil, upstream("openmeteo", err)
	}
	day, err := e.adapters.Archive.History(ctx, loc.Latitude, loc.Longitude, a.Date)
	if err != nil {
		return nil, upstream("openmeteo", err)
	}
	return WeatherReport{
		City:             loc.Name,
		Country:          loc.Country,
		Date:             day.Date,
		Latitude:         loc.Latitude,
		Longitude:        loc.Longitude,
		TemperatureMax:   day.TemperatureMax,
		TemperatureMin:   day.TemperatureMin,
		PrecipitationSum: day.PrecipitationSum,
		WindspeedMax:     day.WindspeedMax,
	}, nil
}

// upstream keeps typed adapter errors and wraps anything else.
func upstream(provider string, err error) error {
	if errors.CodeOf(err) != errors.CodeInternal {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeout(provider, err)
	}
	return errors.NewUpstream(provider, provider+" request failed", err)
}

func encode(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

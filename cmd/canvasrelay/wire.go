// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jllopis/canvasrelay/pkg/adapters/openmeteo"
	"github.com/jllopis/canvasrelay/pkg/adapters/pexels"
	"github.com/jllopis/canvasrelay/pkg/adapters/replicate"
	"github.com/jllopis/canvasrelay/pkg/adapters/unsplash"
	"github.com/jllopis/canvasrelay/pkg/adapters/whisper"
	"github.com/jllopis/canvasrelay/pkg/agent"
	"github.com/jllopis/canvasrelay/pkg/config"
	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/executor"
	"github.com/jllopis/canvasrelay/pkg/intent"
	"github.com/jllopis/canvasrelay/pkg/llm"
	"github.com/jllopis/canvasrelay/pkg/planner"
	"github.com/jllopis/canvasrelay/pkg/session"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
	"github.com/jllopis/canvasrelay/pkg/tools"
	"github.com/jllopis/canvasrelay/providers/anthropic"
	"github.com/jllopis/canvasrelay/providers/gemini"
	"github.com/jllopis/canvasrelay/providers/openai"
)

// app holds every long-lived collaborator built from one Config.
type app struct {
	registry *tools.Registry
	resolver *intent.Resolver
	executor *executor.Executor
	agent    *agent.Agent
	sessions *session.Store
	planner  *planner.LLMPlanner
	weather  *openmeteo.Client
	whisper  *whisper.Client
	health   *core.HealthRegistry
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to create metrics", err)
	}

	registry := tools.NewRegistry()
	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// A nil Planner interface keeps the resolver on heuristics only.
	var (
		plan planner.Planner
		llmp *planner.LLMPlanner
	)
	if provider != nil {
		p, err := planner.New(provider,
			planner.WithProviderName(strings.ToLower(cfg.LLM.Provider)),
			planner.WithModel(cfg.LLM.Model),
			planner.WithTemperature(cfg.LLM.Temperature),
			planner.WithSystemPrompt(cfg.LLM.SystemPrompt),
			planner.WithTranscriptTTL(cfg.LLM.TranscriptTTL),
			planner.WithMetrics(metrics),
			planner.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		plan, llmp = p, p
	}

	weather := openmeteo.New(
		openmeteo.WithBaseURLs(cfg.OpenMeteo.GeocodingURL, cfg.OpenMeteo.ArchiveURL, cfg.OpenMeteo.ForecastURL),
		openmeteo.WithLanguage(cfg.OpenMeteo.Language),
	)
	gen := replicate.New(cfg.Replicate.APIToken, replicateOptions(cfg, metrics, logger)...)

	exec := executor.New(executor.Adapters{
		Searchers: map[string]core.ImageSearcher{
			core.SourceUnsplash: unsplash.New(cfg.Unsplash.AccessKey, unsplashOptions(cfg)...),
			core.SourcePexels:   pexels.New(cfg.Pexels.APIKey, pexelsOptions(cfg)...),
		},
		Generator: gen,
		Refiner:   gen,
		Geocoder:  weather,
		Archive:   weather,
	}, executor.WithMetrics(metrics), executor.WithLogger(logger))

	resolver := intent.New(plan, registry, intent.WithMetrics(metrics), intent.WithLogger(logger))

	sessions, err := session.NewStore(
		session.WithTTL(cfg.Session.TTL),
		session.WithCapacity(cfg.Session.Capacity),
		session.WithMaxQueue(cfg.Session.MaxQueue),
	)
	if err != nil {
		return nil, err
	}

	agentOpts := []agent.Option{
		agent.WithSessions(sessions),
		agent.WithTurnTimeout(cfg.Agent.TurnTimeout),
		agent.WithMetrics(metrics),
		agent.WithLogger(logger),
	}
	if plan != nil {
		agentOpts = append(agentOpts, agent.WithPlanner(plan, registry))
	}
	a, err := agent.New(resolver, exec, agentOpts...)
	if err != nil {
		return nil, err
	}

	var whisperOpts []whisper.Option
	if cfg.OpenAI.BaseURL != "" {
		whisperOpts = append(whisperOpts, whisper.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	if cfg.OpenAI.TranscriptionModel != "" {
		whisperOpts = append(whisperOpts, whisper.WithModel(cfg.OpenAI.TranscriptionModel))
	}
	if cfg.OpenAI.TranscriptionLanguage != "" {
		whisperOpts = append(whisperOpts, whisper.WithLanguage(cfg.OpenAI.TranscriptionLanguage))
	}

	out := &app{
		registry: registry,
		resolver: resolver,
		executor: exec,
		agent:    a,
		sessions: sessions,
		planner:  llmp,
		weather:  weather,
		whisper:  whisper.New(cfg.OpenAI.APIKey, whisperOpts...),
		health:   core.NewHealthRegistry(),
	}
	out.registerHealth(cfg, plan != nil)
	return out, nil
}

// Close releases the session store and the planner transcript cache.
func (a *app) Close() {
	a.sessions.Close()
	if a.planner != nil {
		a.planner.Close()
	}
}

func (a *app) registerHealth(cfg *config.Config, planned bool) {
	if planned {
		a.health.Register("planner", agent.NewPlannerHealthChecker(a.resolver.PlannerState))
	} else {
		a.health.Register("planner", agent.NewPlannerHealthChecker(nil))
	}
	a.health.Register(core.SourceUnsplash, core.ConfiguredChecker(cfg.Unsplash.AccessKey != "", "unsplash.access_key is not set"))
	a.health.Register(core.SourcePexels, core.ConfiguredChecker(cfg.Pexels.APIKey != "", "pexels.api_key is not set"))
	a.health.Register("replicate", core.ConfiguredChecker(cfg.Replicate.APIToken != "", "replicate.api_token is not set"))
	a.health.Register("transcription", core.ConfiguredChecker(cfg.OpenAI.APIKey != "", "openai.api_key is not set"))
}

// newProvider builds the planner backend. It returns nil when planning is
// disabled or the selected vendor has no key.
func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	key := cfg.PlannerAPIKey()

	switch name {
	case "", "none":
		return nil, nil
	case "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL, cfg.LLM.Model), nil
	case "openai", "anthropic", "gemini":
	default:
		return nil, errors.NewConfiguration("llm.provider").WithContext("provider", cfg.LLM.Provider)
	}

	if key == "" {
		logger.Warn("planner.disabled",
			slog.String("provider", name),
			slog.String("reason", "no api key"),
		)
		return nil, nil
	}

	switch name {
	case "openai":
		return openai.New(
			openai.WithAPIKey(key),
			openai.WithBaseURL(cfg.LLM.BaseURL),
			openai.WithModel(cfg.LLM.Model),
		), nil
	case "anthropic":
		return anthropic.New(
			anthropic.WithAPIKey(key),
			anthropic.WithBaseURL(cfg.LLM.BaseURL),
			anthropic.WithModel(cfg.LLM.Model),
		), nil
	default:
		p, err := gemini.New(ctx, key, gemini.WithModel(cfg.LLM.Model))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func unsplashOptions(cfg *config.Config) []unsplash.Option {
	opts := []unsplash.Option{unsplash.WithPerPage(cfg.Unsplash.PerPage)}
	if cfg.Unsplash.BaseURL != "" {
		opts = append(opts, unsplash.WithBaseURL(cfg.Unsplash.BaseURL))
	}
	return opts
}

func pexelsOptions(cfg *config.Config) []pexels.Option {
	opts := []pexels.Option{pexels.WithPerPage(cfg.Pexels.PerPage)}
	if cfg.Pexels.BaseURL != "" {
		opts = append(opts, pexels.WithBaseURL(cfg.Pexels.BaseURL))
	}
	return opts
}

func replicateOptions(cfg *config.Config, metrics *telemetry.Metrics, logger *slog.Logger) []replicate.Option {
	opts := []replicate.Option{
		replicate.WithModels(cfg.Replicate.GenerateModel, cfg.Replicate.RefineModel),
		replicate.WithPollInterval(cfg.Replicate.PollInterval),
		replicate.WithTimeout(cfg.Replicate.Timeout),
		replicate.WithMetrics(metrics),
		replicate.WithLogger(logger),
	}
	if cfg.Replicate.BaseURL != "" {
		opts = append(opts, replicate.WithBaseURL(cfg.Replicate.BaseURL))
	}
	return opts
}

// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads relay settings from defaults, an optional YAML file,
// a profile overlay, the environment and command line overrides.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/canvasrelay/pkg/errors"
)

// EnvPrefix prefixes every relay environment variable. A double underscore
// separates nesting levels: CANVASRELAY_UNSPLASH__ACCESS_KEY.
const EnvPrefix = "CANVASRELAY_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Agent     AgentConfig     `koanf:"agent"`
	Server    ServerConfig    `koanf:"server"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Session   SessionConfig   `koanf:"session"`
	MCP       MCPConfig       `koanf:"mcp"`
	Unsplash  UnsplashConfig  `koanf:"unsplash"`
	Pexels    PexelsConfig    `koanf:"pexels"`
	Replicate ReplicateConfig `koanf:"replicate"`
	OpenAI    OpenAIConfig    `koanf:"openai"`
	Anthropic VendorConfig    `koanf:"anthropic"`
	Gemini    VendorConfig    `koanf:"gemini"`
	OpenMeteo OpenMeteoConfig `koanf:"openmeteo"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// LLMConfig selects the planner backend. An empty APIKey falls back to the
// key of the selected vendor section.
type LLMConfig struct {
	Provider      string        `koanf:"provider"` // openai, anthropic, gemini, ollama, none
	Model         string        `koanf:"model"`
	BaseURL       string        `koanf:"base_url"`
	APIKey        string        `koanf:"api_key"`
	Temperature   float64       `koanf:"temperature"`
	SystemPrompt  string        `koanf:"system_prompt"`
	TranscriptTTL time.Duration `koanf:"transcript_ttl"`
}

type AgentConfig struct {
	TurnTimeout time.Duration `koanf:"turn_timeout"`
}

type ServerConfig struct {
	Addr           string `koanf:"addr"`
	StaticDir      string `koanf:"static_dir"`
	MaxUploadBytes int64  `koanf:"max_upload_bytes"`
}

type TelemetryConfig struct {
	Exporter           string            `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint       string            `koanf:"otlp_endpoint"`
	OTLPInsecure       bool              `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int               `koanf:"otlp_timeout_seconds"`
	OTLPHeaders        map[string]string `koanf:"otlp_headers"`
}

type SessionConfig struct {
	TTL      time.Duration `koanf:"ttl"`
	Capacity int           `koanf:"capacity"`
	MaxQueue int           `koanf:"max_queue"`
}

// MCPConfig controls the Model Context Protocol bridge.
type MCPConfig struct {
	// HTTP mounts the streamable endpoint on the main server at /mcp.
	HTTP bool `koanf:"http"`
}

type UnsplashConfig struct {
	AccessKey string `koanf:"access_key"`
	BaseURL   string `koanf:"base_url"`
	PerPage   int    `koanf:"per_page"`
}

type PexelsConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	PerPage int    `koanf:"per_page"`
}

type ReplicateConfig struct {
	APIToken      string        `koanf:"api_token"`
	BaseURL       string        `koanf:"base_url"`
	GenerateModel string        `koanf:"generate_model"`
	RefineModel   string        `koanf:"refine_model"`
	PollInterval  time.Duration `koanf:"poll_interval"`
	Timeout       time.Duration `koanf:"timeout"`
}

type OpenAIConfig struct {
	APIKey                string `koanf:"api_key"`
	BaseURL               string `koanf:"base_url"`
	TranscriptionModel    string `koanf:"transcription_model"`
	TranscriptionLanguage string `koanf:"transcription_language"`
}

type VendorConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

type OpenMeteoConfig struct {
	Language     string `koanf:"language"`
	GeocodingURL string `koanf:"geocoding_url"`
	ArchiveURL   string `koanf:"archive_url"`
	ForecastURL  string `koanf:"forecast_url"`
}

// PlannerAPIKey returns the key used by the planner backend.
func (c *Config) PlannerAPIKey() string {
	if c.LLM.APIKey != "" {
		return c.LLM.APIKey
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		return c.OpenAI.APIKey
	case "anthropic":
		return c.Anthropic.APIKey
	case "gemini":
		return c.Gemini.APIKey
	}
	return ""
}

// Options describe one load: a base file, a profile overlay and raw
// key=value overrides applied last.
type Options struct {
	Path    string
	Profile string
	Set     []string
}

var defaults = map[string]any{
	"log.level":                      "info",
	"log.format":                     "text",
	"llm.provider":                   "openai",
	"llm.temperature":                0.2,
	"llm.transcript_ttl":             "10m",
	"agent.turn_timeout":             "150s",
	"server.addr":                    ":8080",
	"server.max_upload_bytes":        25 << 20,
	"telemetry.exporter":             "none",
	"telemetry.otlp_endpoint":        "localhost:4317",
	"telemetry.otlp_insecure":        true,
	"telemetry.otlp_timeout_seconds": 10,
	"session.ttl":                    "30m",
	"session.capacity":               10000,
	"session.max_queue":              100,
	"unsplash.per_page":              12,
	"pexels.per_page":                12,
	"replicate.poll_interval":        "1200ms",
	"replicate.timeout":              "120s",
	"openai.transcription_model":     "whisper-1",
	"openmeteo.language":             "en",
}

// vendorEnv maps keys to the well-known variables vendors document. They only
// fill keys that are still empty after every other source.
var vendorEnv = []struct{ key, env string }{
	{"unsplash.access_key", "UNSPLASH_ACCESS_KEY"},
	{"pexels.api_key", "PEXELS_API_KEY"},
	{"replicate.api_token", "REPLICATE_API_TOKEN"},
	{"openai.api_key", "OPENAI_API_KEY"},
	{"anthropic.api_key", "ANTHROPIC_API_KEY"},
	{"gemini.api_key", "GEMINI_API_KEY"},
}

// Load reads path (optional) on top of the defaults and the environment.
func Load(path string) (*Config, error) {
	return LoadOptions(Options{Path: path})
}

// LoadWithProfile also overlays config.<profile>.yaml next to path when it
// exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return LoadOptions(Options{Path: path, Profile: profile})
}

// LoadWithCLI loads using --config, --profile (or --env) and repeated
// --set key=value arguments.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return LoadOptions(opts)
}

// LoadOptions runs the full precedence chain: defaults, file, profile,
// CANVASRELAY_ env, overrides, then vendor env fallbacks.
func LoadOptions(opts Options) (*Config, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		_ = k.Set(key, v)
	}

	if opts.Path != "" {
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "failed to read config file", err).
				WithContext("path", opts.Path)
		}
	}
	if p := ProfileConfigPath(opts.Path, opts.Profile); p != "" {
		if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "failed to read profile config", err).
				WithContext("path", p)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "failed to read environment", err)
	}

	for _, raw := range opts.Set {
		key, value, err := parseOverride(raw)
		if err != nil {
			return nil, err
		}
		_ = k.Set(key, value)
	}

	for _, v := range vendorEnv {
		if k.String(v.key) != "" {
			continue
		}
		if val := os.Getenv(v.env); val != "" {
			_ = k.Set(v.key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "invalid configuration", err)
	}
	return &cfg, nil
}

// ProfileConfigPath returns the overlay for profile next to base, or "" when
// there is none on disk.
func ProfileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	p := filepath.Join(filepath.Dir(base), name+"."+profile+ext)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func parseCLIOverrides(args []string) (Options, error) {
	var opts Options
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return Options{}, errors.NewInvalidInput(name + " requires a value")
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config":
			opts.Path = value
		case "--profile", "--env":
			opts.Profile = value
		case "--set":
			if _, _, err := parseOverride(value); err != nil {
				return Options{}, err
			}
			opts.Set = append(opts.Set, value)
		}
	}
	return opts, nil
}

// parseOverride splits key=value. JSON values (numbers, booleans, objects)
// are decoded; anything else is kept as a string.
func parseOverride(raw string) (string, any, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, errors.NewInvalidInput("override must be key=value").
			WithContext("override", raw)
	}
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err == nil && decoded != nil {
		return key, decoded, nil
	}
	return key, value, nil
}

// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jllopis/canvasrelay/pkg/config"
	"github.com/jllopis/canvasrelay/pkg/mcp"
	"github.com/jllopis/canvasrelay/pkg/server"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.addr")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	watcher, err := config.NewWatcher(loadOptions)
	if err != nil {
		return err
	}
	cfg := watcher.Config()

	level := new(slog.LevelVar)
	level.Set(telemetry.ParseLevel(cfg.Log.Level))
	logger := telemetry.NewLeveledLogger(os.Stderr, level, cfg.Log.Format)
	slog.SetDefault(logger)

	// Only the log level is applied live; everything else needs a restart.
	watcher.OnChange(func(next *config.Config) {
		level.Set(telemetry.ParseLevel(next.Log.Level))
		logger.Info("log.level.changed", slog.String("level", next.Log.Level))
	})
	watcher.Start(ctx)
	defer watcher.Stop()

	shutdown, err := telemetry.Init("canvasrelay", version, telemetryConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("telemetry.shutdown.error", slog.String("error", err.Error()))
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := server.Deps{
		Agent:       a.agent,
		Tools:       a.executor,
		Geocoder:    a.weather,
		Weather:     a.weather,
		Transcriber: a.whisper,
		Sessions:    a.sessions,
		Health:      a.health,
	}
	if cfg.MCP.HTTP {
		ms, err := mcp.NewServer("canvasrelay", version, a.registry, a.executor, mcp.WithLogger(logger))
		if err != nil {
			return err
		}
		deps.MCP = ms.HTTPHandler("/mcp")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(deps,
		server.WithStatic(afero.NewOsFs(), cfg.Server.StaticDir),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		server.WithRegistry(reg),
		server.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	return srv.ListenAndServe(ctx, addr)
}

func telemetryConfig(cfg *config.Config) telemetry.Config {
	return telemetry.Config{
		Exporter:           cfg.Telemetry.Exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
		OTLPHeaders:        cfg.Telemetry.OTLPHeaders,
		Environment:        loadOptions.Profile,
	}
}

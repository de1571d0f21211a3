// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jllopis/canvasrelay/pkg/config"
	"github.com/jllopis/canvasrelay/pkg/mcp"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the relay tools over MCP on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadOptions(loadOptions)
		if err != nil {
			return err
		}
		// stdout carries the protocol.
		logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		s, err := mcp.NewServer("canvasrelay", version, a.registry, a.executor, mcp.WithLogger(logger))
		if err != nil {
			return err
		}
		return s.ServeStdio()
	},
}

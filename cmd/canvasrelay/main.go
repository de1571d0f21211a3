// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Command canvasrelay runs the canvas relay: the HTTP agent server, the MCP
// bridge and a few local helpers.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jllopis/canvasrelay/pkg/config"
	"github.com/jllopis/canvasrelay/pkg/errors"
)

var version = "dev"

// loadOptions are filled by the persistent flags.
var loadOptions config.Options

var rootCmd = &cobra.Command{
	Use:           "canvasrelay",
	Short:         "Canvas relay turns natural language into image and weather tool calls",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&loadOptions.Path, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&loadOptions.Profile, "profile", "", "profile overlay, loads config.<profile>.yaml next to --config")
	rootCmd.PersistentFlags().StringArrayVar(&loadOptions.Set, "set", nil, "override a config key (key=value), repeatable")

	rootCmd.AddCommand(serveCmd, mcpCmd, askCmd, toolsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	var re *errors.RelayError
	if !stderrors.As(err, &re) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", re.Code, re.Message)
	if hint := hintFor(re); hint != "" {
		fmt.Fprintf(os.Stderr, "  Hint: %s\n", hint)
	}
}

func hintFor(re *errors.RelayError) string {
	switch re.Code {
	case errors.CodeConfiguration:
		return "check --config, CANVASRELAY_* variables and vendor API keys"
	case errors.CodeUpstream:
		return "the upstream provider failed; retry or check its status"
	case errors.CodeTimeout:
		return "raise agent.turn_timeout or check provider latency"
	}
	return ""
}

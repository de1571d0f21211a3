// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/mcp"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

var (
	toolsFormat string
	toolsRemote string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool catalog, locally or from a remote MCP endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		specs := tools.NewRegistry().Specs()
		if toolsRemote != "" {
			remote, err := remoteSpecs(cmd.Context(), toolsRemote)
			if err != nil {
				return err
			}
			specs = remote
		}
		return writeSpecs(cmd.OutOrStdout(), specs, toolsFormat)
	},
}

func init() {
	toolsCmd.Flags().StringVar(&toolsFormat, "format", "json", "output format: json or yaml")
	toolsCmd.Flags().StringVar(&toolsRemote, "remote", "", "streamable HTTP MCP endpoint, e.g. http://localhost:8080/mcp")
}

func writeSpecs(w io.Writer, specs []tools.Spec, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(specs)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(specs); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.NewInvalidInput("format must be json or yaml").WithContext("format", format)
	}
}

func remoteSpecs(ctx context.Context, url string) ([]tools.Spec, error) {
	c, err := mcp.Dial(ctx, url, "canvasrelay-cli", version, mcp.WithTimeout(10*time.Second))
	if err != nil {
		return nil, err
	}
	defer c.Close()

	list, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	specs := make([]tools.Spec, 0, len(list))
	for _, tool := range list {
		raw, err := json.Marshal(tool)
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "failed to encode remote tool", err)
		}
		var wire struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, errors.New(errors.CodeInternal, "failed to decode remote tool", err)
		}
		specs = append(specs, tools.Spec{
			Name:        wire.Name,
			Description: wire.Description,
			Parameters:  wire.InputSchema,
		})
	}
	return specs, nil
}

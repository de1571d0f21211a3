// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jllopis/canvasrelay/pkg/agent"
	"github.com/jllopis/canvasrelay/pkg/config"
	"github.com/jllopis/canvasrelay/pkg/session"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
)

var askPlain bool

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Run one agent turn locally and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOptions(loadOptions)
		if err != nil {
			return err
		}
		logger := telemetry.ConfigureSlog(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sess := a.sessions.Create(nil)
		resp, err := a.agent.Turn(cmd.Context(), agent.TurnRequest{
			Message:   strings.Join(args, " "),
			SessionID: sess.ID,
		})
		if err != nil {
			return err
		}
		commands, err := a.sessions.Drain(sess.ID)
		if err != nil {
			return err
		}
		return printTurn(cmd.OutOrStdout(), resp, commands, askPlain)
	},
}

func init() {
	askCmd.Flags().BoolVar(&askPlain, "plain", false, "print markdown without terminal styling")
}

func printTurn(w io.Writer, resp *agent.TurnResponse, commands []session.Command, plain bool) error {
	md := turnMarkdown(resp, commands)
	if plain {
		_, err := io.WriteString(w, md)
		return err
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// turnMarkdown lists the reply, any image URLs the tools returned and the UI
// commands a front-end would have received.
func turnMarkdown(resp *agent.TurnResponse, commands []session.Command) string {
	var b strings.Builder
	b.WriteString(resp.Reply)
	b.WriteString("\n")

	for _, result := range resp.Tools {
		if !result.Succeeded() {
			continue
		}
		images := resultImages(result.Result)
		if len(images) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n**%s**\n\n", result.Name)
		for i, u := range images {
			fmt.Fprintf(&b, "%d. %s\n", i+1, u)
		}
	}
	if len(commands) > 0 {
		b.WriteString("\n**UI commands**\n\n")
		for _, c := range commands {
			if view, ok := c.Payload["view"]; ok {
				fmt.Fprintf(&b, "- `%s` %v\n", c.Type, view)
				continue
			}
			fmt.Fprintf(&b, "- `%s`\n", c.Type)
		}
	}
	return b.String()
}

func resultImages(v any) []string {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out struct {
		Images []string `json:"images"`
		Image  string   `json:"image"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	if out.Image != "" {
		out.Images = append(out.Images, out.Image)
	}
	return out.Images
}

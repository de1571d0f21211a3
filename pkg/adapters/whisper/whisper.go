// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package whisper transcribes recorded speech with the OpenAI audio API.
package whisper

import (
	"bytes"
	"context"
	stderrors "errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
)

// Client is the transcription adapter.
type Client struct {
	client     openai.Client
	model      openai.AudioModel
	language   string
	configured bool
}

// Option configures a Client.
type Option func(*options)

type options struct {
	reqOpts  []option.RequestOption
	model    string
	language string
}

// WithBaseURL points the client at another API host.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.reqOpts = append(o.reqOpts, option.WithBaseURL(u))
		}
	}
}

// WithModel overrides whisper-1.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithLanguage hints the spoken language (ISO-639-1).
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.reqOpts = append(o.reqOpts, option.WithHTTPClient(h)) }
}

// New creates a Client. An empty apiKey leaves it unconfigured.
func New(apiKey string, opts ...Option) *Client {
	o := &options{model: string(openai.AudioModelWhisper1)}
	for _, opt := range opts {
		opt(o)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}, o.reqOpts...)
	return &Client{
		client:     openai.NewClient(reqOpts...),
		model:      openai.AudioModel(o.model),
		language:   o.language,
		configured: apiKey != "",
	}
}

// Transcribe implements core.Transcriber.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if !c.configured {
		return "", errors.NewConfiguration("openai.api_key")
	}
	if len(audio) == 0 {
		return "", errors.NewInvalidInput("audio file is empty")
	}
	if filename == "" {
		filename = "audio.webm"
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), filename, contentType(filename)),
		Model: c.model,
	}
	if c.language != "" {
		params.Language = openai.String(c.language)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		re := errors.NewUpstream("openai", "transcription failed", err)
		var apiErr *openai.Error
		if stderrors.As(err, &apiErr) {
			re.WithContext("status", apiErr.StatusCode)
		}
		return "", re
	}
	return strings.TrimSpace(resp.Text), nil
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var _ core.Transcriber = (*Client)(nil)

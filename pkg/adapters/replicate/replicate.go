// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package replicate generates and refines images through Replicate
// predictions: one submission, then status polls until a terminal state.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/canvasrelay/pkg/adapters"
	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
)

const (
	DefaultBaseURL       = "https://api.replicate.com"
	DefaultGenerateModel = "black-forest-labs/flux-schnell"
	DefaultRefineModel   = "black-forest-labs/flux-kontext-pro"
	DefaultPollInterval  = 1200 * time.Millisecond
	DefaultTimeout       = 120 * time.Second

	provider = "replicate"
)

// Prediction statuses.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Client is the Replicate adapter.
type Client struct {
	token         string
	baseURL       string
	generateModel string
	refineModel   string
	pollInterval  time.Duration
	timeout       time.Duration
	http          *http.Client
	tracer        trace.Tracer
	metrics       *telemetry.Metrics
	logger        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithModels sets the "owner/name" models used for generation and refinement.
// Empty values keep the defaults.
func WithModels(generate, refine string) Option {
	return func(c *Client) {
		if generate != "" {
			c.generateModel = generate
		}
		if refine != "" {
			c.refineModel = refine
		}
	}
}

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithTimeout sets the ceiling on a job's total wait.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client authenticating with token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:         token,
		baseURL:       DefaultBaseURL,
		generateModel: DefaultGenerateModel,
		refineModel:   DefaultRefineModel,
		pollInterval:  DefaultPollInterval,
		timeout:       DefaultTimeout,
		http:          adapters.NewHTTPClient(),
		tracer:        otel.Tracer("canvasrelay/replicate"),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate implements core.ImageGenerator.
func (c *Client) Generate(ctx context.Context, prompt string, count int, aspectRatio string) ([]string, error) {
	out, err := c.run(ctx, c.generateModel, map[string]any{
		"prompt":       prompt,
		"num_outputs":  count,
		"aspect_ratio": aspectRatio,
	})
	if err != nil {
		return nil, err
	}
	images := outputURLs(out)
	if len(images) == 0 {
		return nil, errors.NewUpstream(provider, "image generation returned no images", nil)
	}
	return images, nil
}

// Refine implements core.ImageRefiner.
func (c *Client) Refine(ctx context.Context, prompt, inputImage string) (string, error) {
	out, err := c.run(ctx, c.refineModel, map[string]any{
		"prompt":        prompt,
		"input_image":   inputImage,
		"output_format": "jpg",
	})
	if err != nil {
		return "", err
	}
	images := outputURLs(out)
	if len(images) == 0 {
		return "", errors.NewUpstream(provider, "image refinement returned no image", nil)
	}
	return images[0], nil
}

// prediction is the subset of a Replicate prediction the adapter reads.
type prediction struct {
	ID     string
	Status string
	Error  string
	GetURL string
	Output gjson.Result
}

func parsePrediction(body []byte) prediction {
	r := gjson.ParseBytes(body)
	return prediction{
		ID:     r.Get("id").String(),
		Status: r.Get("status").String(),
		Error:  r.Get("error").String(),
		GetURL: r.Get("urls.get").String(),
		Output: r.Get("output"),
	}
}

func (p prediction) terminal() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

var errPending = stderrors.New("prediction still running")

// run submits a prediction on model and waits for its output.
func (c *Client) run(ctx context.Context, model string, input map[string]any) (gjson.Result, error) {
	if c.token == "" {
		return gjson.Result{}, errors.NewConfiguration("replicate.api_token")
	}
	ctx, span := c.tracer.Start(ctx, "Replicate.Predict")
	defer span.End()
	span.SetAttributes(telemetry.ProviderAttributes(provider, model)...)

	job, err := c.submit(ctx, model, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission failed")
		return gjson.Result{}, err
	}

	polls := 0
	if !job.terminal() {
		job, polls, err = c.wait(ctx, job)
	}
	span.SetAttributes(telemetry.JobAttributes(job.ID, job.Status, polls)...)
	c.metrics.RecordJobPolls(ctx, provider, job.Status, polls)
	c.logger.DebugContext(ctx, "replicate.prediction.done",
		slog.String("id", job.ID),
		slog.String("status", job.Status),
		slog.Int("polls", polls),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return gjson.Result{}, err
	}
	if err := job.failure(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, job.Status)
		return gjson.Result{}, err
	}
	return job.Output, nil
}

func (c *Client) submit(ctx context.Context, model string, input map[string]any) (prediction, error) {
	payload, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return prediction{}, errors.New(errors.CodeInternal, "failed to encode replicate input", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/models/"+model+"/predictions", bytes.NewReader(payload))
	if err != nil {
		return prediction{}, errors.New(errors.CodeInternal, "failed to build replicate request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	body, err := adapters.Do(c.http, req, provider)
	if err != nil {
		return prediction{}, err
	}
	job := parsePrediction(body)
	if !job.terminal() && job.GetURL == "" {
		return job, errors.NewUpstream(provider, "prediction has no status URL", nil).
			WithContext("prediction_id", job.ID)
	}
	return job, nil
}

// wait polls job until it reaches a terminal status or the timeout expires.
func (c *Client) wait(ctx context.Context, job prediction) (prediction, int, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	polls := 0
	last := job
	final, err := job, sleep(pollCtx, c.pollInterval)
	if err == nil {
		final, err = c.retryPoll(pollCtx, &last, &polls)
	}
	if err == nil {
		return final, polls, nil
	}

	switch {
	case ctx.Err() != nil:
		return last, polls, errors.New(errors.CodeContextLost, "caller went away while waiting for the prediction", ctx.Err()).
			WithContext("prediction_id", job.ID)
	case pollCtx.Err() != nil || stderrors.Is(err, errPending):
		return last, polls, errors.NewTimeout("image generation", err).
			WithContext("prediction_id", job.ID).
			WithContext("timeout", c.timeout.String())
	default:
		return last, polls, err
	}
}

// retryPoll re-fetches last.GetURL every poll interval until the prediction
// is terminal.
func (c *Client) retryPoll(pollCtx context.Context, last *prediction, polls *int) (prediction, error) {
	return backoff.Retry(pollCtx, func() (prediction, error) {
		*polls++
		next, err := c.poll(pollCtx, last.GetURL)
		if err != nil {
			return *last, backoff.Permanent(err)
		}
		if next.GetURL == "" {
			next.GetURL = last.GetURL
		}
		*last = next
		if !next.terminal() {
			return next, errPending
		}
		return next, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.pollInterval)),
		backoff.WithMaxElapsedTime(0),
	)
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) poll(ctx context.Context, getURL string) (prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return prediction{}, errors.New(errors.CodeInternal, "failed to build replicate poll request", err)
	}
	c.authorize(req)
	body, err := adapters.Do(c.http, req, provider)
	if err != nil {
		return prediction{}, err
	}
	return parsePrediction(body), nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (p prediction) failure() error {
	switch p.Status {
	case StatusSucceeded:
		return nil
	case StatusCanceled:
		msg := p.Error
		if msg == "" {
			msg = "image generation canceled"
		}
		return errors.NewUpstream(provider, msg, nil).
			WithContext("prediction_id", p.ID)
	default:
		msg := p.Error
		if msg == "" {
			msg = "image generation failed"
		}
		return errors.NewUpstream(provider, msg, nil).
			WithContext("prediction_id", p.ID).
			WithRecoverable(false)
	}
}

// outputURLs normalizes a prediction output: a URL string, an object with a
// url field, or an array of either.
func outputURLs(out gjson.Result) []string {
	var urls []string
	add := func(r gjson.Result) {
		var u string
		switch {
		case r.Type == gjson.String:
			u = r.String()
		case r.IsObject():
			u = r.Get("url").String()
		}
		if u != "" {
			urls = append(urls, u)
		}
	}
	if out.IsArray() {
		out.ForEach(func(_, v gjson.Result) bool {
			add(v)
			return true
		})
	} else {
		add(out)
	}
	return urls
}

var (
	_ core.ImageGenerator = (*Client)(nil)
	_ core.ImageRefiner   = (*Client)(nil)
)

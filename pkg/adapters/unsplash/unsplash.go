// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package unsplash searches the Unsplash photo library.
package unsplash

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jllopis/canvasrelay/pkg/adapters"
	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/resilience"
)

const (
	DefaultBaseURL = "https://api.unsplash.com"
	defaultPerPage = 12
)

// Client is an Unsplash search adapter.
type Client struct {
	accessKey string
	baseURL   string
	perPage   int
	http      *http.Client
	retry     resilience.RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithPerPage sets how many images a search returns.
func WithPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.perPage = n
		}
	}
}

// WithRetry replaces the retry policy.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = rc }
}

// New creates a Client authenticating with accessKey.
func New(accessKey string, opts ...Option) *Client {
	c := &Client{
		accessKey: accessKey,
		baseURL:   DefaultBaseURL,
		perPage:   defaultPerPage,
		http:      adapters.NewHTTPClient(),
		retry:     resilience.ServerErrorRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search implements core.ImageSearcher. It returns the "regular" rendition
// URL of each photo.
func (c *Client) Search(ctx context.Context, query, ratio string) ([]string, error) {
	if c.accessKey == "" {
		return nil, errors.NewConfiguration("unsplash.access_key")
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("orientation", orientation(ratio))

	return resilience.DoWithResult(ctx, c.retry, func() ([]string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/photos?"+q.Encode(), nil)
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "failed to build unsplash request", err)
		}
		req.Header.Set("Authorization", "Client-ID "+c.accessKey)
		req.Header.Set("Accept-Version", "v1")

		body, err := adapters.Do(c.http, req, core.SourceUnsplash)
		if err != nil {
			return nil, err
		}
		return adapters.Strings(body, "results.#.urls.regular"), nil
	})
}

func orientation(ratio string) string {
	switch ratio {
	case "4:3", "16:9":
		return "landscape"
	case "3:4", "9:16":
		return "portrait"
	default:
		return "squarish"
	}
}

var _ core.ImageSearcher = (*Client)(nil)

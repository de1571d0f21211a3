// SPDX-License-Identifier: Apache-2.0

// Package pexels searches the Pexels photo library.
package pexels

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
	DefaultBaseURL = "https://api.pexels.com"
	defaultPerPage = 12
)

// Client is a Pexels search adapter.
type Client struct {
	apiKey  string
	baseURL string
	perPage int
	http    *http.Client
	retry   resilience.RetryConfig
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

// WithRetry replaces the retry policy. The default retries once on 5xx.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = rc }
}

// New creates a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		perPage: defaultPerPage,
		http:    adapters.NewHTTPClient(),
		retry:   resilience.ServerErrorRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search implements core.ImageSearcher with the "large" rendition of each photo.
func (c *Client) Search(ctx context.Context, query, ratio string) ([]string, error) {
	if c.apiKey == "" {
		return nil, errors.NewConfiguration("pexels.api_key")
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("orientation", orientation(ratio))

	return resilience.DoWithResult(ctx, c.retry, func() ([]string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/search?"+q.Encode(), nil)
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "failed to build pexels request", err)
		}
		// Pexels takes the raw key, no scheme.
		req.Header.Set("Authorization", c.apiKey)

		body, err := adapters.Do(c.http, req, core.SourcePexels)
		if err != nil {
			return nil, err
		}
		return adapters.Strings(body, "photos.#.src.large"), nil
	})
}

func orientation(ratio string) string {
	switch ratio {
	case "4:3", "16:9":
		return "landscape"
	case "3:4", "9:16":
		return "portrait"
	default:
		return "square"
	}
}

var _ core.ImageSearcher = (*Client)(nil)

// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package adapters holds the HTTP plumbing shared by the provider adapters in
// its subpackages.
package adapters

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jllopis/canvasrelay/pkg/errors"
)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a provider response is read.
const maxBody = 4 << 20

// NewHTTPClient returns the client adapters use unless one is injected.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// Do sends req and returns the body of a 2xx response. Transport failures and
// other statuses become typed errors labelled with provider.
func Do(client *http.Client, req *http.Request, provider string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, TransportError(req.Context(), provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.NewUpstream(provider, "failed to read "+provider+" response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, StatusError(provider, resp.StatusCode, body)
	}
	return body, nil
}

// TransportError classifies a failed round trip.
func TransportError(ctx context.Context, provider string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewTimeout(provider+" request", err)
	}
	if ctx.Err() != nil {
		return errors.New(errors.CodeContextLost, provider+" request canceled", err).
			WithContext("provider", provider)
	}
	return errors.NewUpstream(provider, provider+" request failed", err)
}

// StatusError builds the upstream error for a non-2xx response. The status is
// kept in the error context so retry policies can tell 5xx apart.
func StatusError(provider string, status int, body []byte) *errors.RelayError {
	msg := Message(body)
	if msg == "" {
		msg = fmt.Sprintf("%s returned status %d", provider, status)
	}
	return errors.NewUpstream(provider, msg, nil).
		WithContext("status", status).
		WithRecoverable(status >= 500)
}

// Message extracts a human-readable error from a provider's JSON body.
func Message(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"detail", "error.message", "error", "errors.0", "message", "reason"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

// Strings collects the string values at path, skipping empty ones.
func Strings(body []byte, path string) []string {
	out := []string{}
	gjson.GetBytes(body, path).ForEach(func(_, v gjson.Result) bool {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

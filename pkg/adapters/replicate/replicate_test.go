// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
)

// fakeReplicate answers the submission with submit and each poll with the
// next entry of polls, repeating the last one.
type fakeReplicate struct {
	t      *testing.T
	srv    *httptest.Server
	submit func(getURL string) (int, string)
	polls  []string
	gets   atomic.Int32

	mu        sync.Mutex
	input     map[string]any
	path      string
	submitted time.Time
	firstGet  time.Time
}

func newFake(t *testing.T, submit func(getURL string) (int, string), polls ...string) *fakeReplicate {
	f := &fakeReplicate{t: t, submit: submit, polls: polls}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeReplicate) handle(w http.ResponseWriter, r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Bearer r8-token" {
		f.t.Errorf("unexpected auth header %q", got)
	}
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Input map[string]any `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("bad submission body: %v", err)
		}
		f.mu.Lock()
		f.path, f.input = r.URL.Path, body.Input
		f.submitted = time.Now()
		f.mu.Unlock()
		status, payload := f.submit(f.srv.URL + "/v1/predictions/p1")
		w.WriteHeader(status)
		w.Write([]byte(payload))
	case http.MethodGet:
		n := int(f.gets.Add(1))
		if n == 1 {
			f.mu.Lock()
			f.firstGet = time.Now()
			f.mu.Unlock()
		}
		if n > len(f.polls) {
			n = len(f.polls)
		}
		w.Write([]byte(f.polls[n-1]))
	}
}

func (f *fakeReplicate) submission() (string, map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path, f.input
}

func (f *fakeReplicate) client(opts ...Option) *Client {
	opts = append([]Option{
		WithBaseURL(f.srv.URL),
		WithHTTPClient(f.srv.Client()),
		WithPollInterval(5 * time.Millisecond),
		WithLogger(telemetry.Discard()),
	}, opts...)
	return New("r8-token", opts...)
}

func pending(status string) func(string) (int, string) {
	return func(getURL string) (int, string) {
		return http.StatusCreated, fmt.Sprintf(`{"id":"p1","status":%q,"urls":{"get":%q}}`, status, getURL)
	}
}

func TestGeneratePollsUntilSucceeded(t *testing.T) {
	f := newFake(t, pending(StatusStarting),
		`{"id":"p1","status":"processing"}`,
		`{"id":"p1","status":"succeeded","output":["https://r/1.webp","https://r/2.webp"]}`,
	)

	images, err := f.client().Generate(context.Background(), "a red fox", 2, "16:9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"https://r/1.webp", "https://r/2.webp"}, images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	path, input := f.submission()
	if path != "/v1/models/black-forest-labs/flux-schnell/predictions" {
		t.Errorf("unexpected submission path %s", path)
	}
	wantInput := map[string]any{"prompt": "a red fox", "num_outputs": float64(2), "aspect_ratio": "16:9"}
	if diff := cmp.Diff(wantInput, input); diff != "" {
		t.Errorf("input mismatch (-want +got):\n%s", diff)
	}
	if got := f.gets.Load(); got != 2 {
		t.Errorf("expected 2 polls, got %d", got)
	}
}

func TestImmediateFailureSkipsPolling(t *testing.T) {
	f := newFake(t, func(string) (int, string) {
		return http.StatusCreated, `{"id":"p1","status":"failed","error":"NSFW content detected"}`
	})

	_, err := f.client().Generate(context.Background(), "x", 1, "1:1")
	if !errors.Is(err, errors.CodeUpstream) || !strings.Contains(err.Error(), "NSFW content detected") {
		t.Errorf("expected upstream error with provider message, got %v", err)
	}
	if got := f.gets.Load(); got != 0 {
		t.Errorf("a terminal submission must not be polled, got %d polls", got)
	}
}

func TestSubmissionRejected(t *testing.T) {
	f := newFake(t, func(string) (int, string) {
		return http.StatusUnprocessableEntity, `{"title":"Input validation failed","detail":"- input.num_outputs: Must be less than or equal to 4"}`
	})

	_, err := f.client().Generate(context.Background(), "x", 5, "1:1")
	if !errors.Is(err, errors.CodeUpstream) || !strings.Contains(err.Error(), "num_outputs") {
		t.Errorf("expected the provider detail, got %v", err)
	}
}

func TestLongProcessingTimesOut(t *testing.T) {
	f := newFake(t, pending(StatusStarting), `{"id":"p1","status":"processing"}`)

	start := time.Now()
	_, err := f.client(WithTimeout(60*time.Millisecond)).Generate(context.Background(), "x", 1, "1:1")
	if !errors.Is(err, errors.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if errors.Is(err, errors.CodeUpstream) {
		t.Error("a timeout must be distinguishable from a provider failure")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("polling did not stop at the timeout: %s", elapsed)
	}
	polled := f.gets.Load()
	time.Sleep(30 * time.Millisecond)
	if f.gets.Load() != polled {
		t.Error("polling continued after the timeout")
	}
}

func TestCallerCancellation(t *testing.T) {
	f := newFake(t, pending(StatusProcessing), `{"id":"p1","status":"processing"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := f.client().Generate(ctx, "x", 1, "1:1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, errors.CodeUpstream) {
		t.Errorf("cancellation is not a provider failure: %v", err)
	}
}

func TestCanceledPrediction(t *testing.T) {
	f := newFake(t, pending(StatusStarting), `{"id":"p1","status":"canceled"}`)

	_, err := f.client().Generate(context.Background(), "x", 1, "1:1")
	if err == nil || !strings.Contains(err.Error(), "canceled") {
		t.Errorf("expected canceled error, got %v", err)
	}
}

func TestCanceledPredictionKeepsProviderError(t *testing.T) {
	f := newFake(t, pending(StatusStarting), `{"id":"p1","status":"canceled","error":"canceled by owner"}`)

	_, err := f.client().Generate(context.Background(), "x", 1, "1:1")
	re := errors.AsRelayError(err)
	if re == nil || re.Message != "canceled by owner" {
		t.Errorf("expected the provider message, got %v", err)
	}
}

func TestFirstPollWaitsForInterval(t *testing.T) {
	f := newFake(t, pending(StatusStarting), `{"id":"p1","status":"succeeded","output":"https://r/1.webp"}`)

	interval := 40 * time.Millisecond
	if _, err := f.client(WithPollInterval(interval)).Generate(context.Background(), "x", 1, "1:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.mu.Lock()
	gap := f.firstGet.Sub(f.submitted)
	f.mu.Unlock()
	if gap < interval {
		t.Errorf("first poll came %s after submission, want at least %s", gap, interval)
	}
}

func TestRefine(t *testing.T) {
	f := newFake(t, func(string) (int, string) {
		return http.StatusCreated, `{"id":"p1","status":"succeeded","output":"https://r/refined.jpg"}`
	})

	image, err := f.client(WithModels("", "acme/edit")).Refine(context.Background(), "add snow", "https://i/1.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if image != "https://r/refined.jpg" {
		t.Errorf("unexpected image %q", image)
	}
	path, input := f.submission()
	if path != "/v1/models/acme/edit/predictions" {
		t.Errorf("unexpected submission path %s", path)
	}
	if input["input_image"] != "https://i/1.png" {
		t.Errorf("input image not forwarded: %v", input)
	}
}

func TestMissingToken(t *testing.T) {
	if _, err := New("").Generate(context.Background(), "x", 1, "1:1"); !errors.Is(err, errors.CodeConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestOutputURLs(t *testing.T) {
	tests := []struct {
		output string
		want   []string
	}{
		{`"https://a"`, []string{"https://a"}},
		{`{"url":"https://a"}`, []string{"https://a"}},
		{`["https://a",{"url":"https://b"},""]`, []string{"https://a", "https://b"}},
		{`null`, nil},
	}
	for _, tt := range tests {
		got := outputURLs(gjson.Parse(tt.output))
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("outputURLs(%s) mismatch (-want +got):\n%s", tt.output, diff)
		}
	}
}

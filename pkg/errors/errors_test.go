// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection reset")
	re := New(CodeUpstream, "unsplash search failed", cause)

	if re.Code != CodeUpstream {
		t.Errorf("expected CodeUpstream, got %v", re.Code)
	}
	if re.Message != "unsplash search failed" {
		t.Errorf("unexpected message %q", re.Message)
	}
	if !errors.Is(re, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
	if re.StatusCode != 502 {
		t.Errorf("expected status 502, got %d", re.StatusCode)
	}
}

func TestWithContextAndAttributes(t *testing.T) {
	re := New(CodeInvalidInput, "missing query", nil).
		WithContext("tool", "search_library").
		WithAttribute("tool.name", "search_library")

	if re.Context["tool"] != "search_library" {
		t.Errorf("expected context tool to be set")
	}
	if re.Attributes["tool.name"] != "search_library" {
		t.Errorf("expected attribute tool.name to be set")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		re       *RelayError
		expected string
		detail   string
	}{
		{
			name:     "with cause",
			re:       New(CodeTimeout, "image job timed out", errors.New("deadline exceeded")),
			expected: "[TIMEOUT] image job timed out: deadline exceeded",
			detail:   "image job timed out: deadline exceeded",
		},
		{
			name:     "without cause",
			re:       NewUnknownTool("launch_rocket"),
			expected: `[UNKNOWN_TOOL] unknown tool "launch_rocket"`,
			detail:   `unknown tool "launch_rocket"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.re.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
			if got := tt.re.Detail(); got != tt.detail {
				t.Errorf("expected detail %q, got %q", tt.detail, got)
			}
		})
	}
}

func TestAsRelayError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewConfiguration("unsplash.access_key"))

	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "relay error", err: NewInvalidInput("message is required"), expected: CodeInvalidInput},
		{name: "wrapped relay error", err: wrapped, expected: CodeConfiguration},
		{name: "generic error", err: errors.New("boom"), expected: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := AsRelayError(tt.err)
			if tt.expected == "" {
				if re != nil {
					t.Errorf("expected nil for nil error")
				}
				return
			}
			if re == nil || re.Code != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, re)
			}
			if CodeOf(tt.err) != tt.expected {
				t.Errorf("CodeOf: expected %v, got %v", tt.expected, CodeOf(tt.err))
			}
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	re := NewUpstream("pexels", "pexels search failed", errors.New("status 503")).
		WithContext("query", "mountains")

	data, err := json.Marshal(re)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}
	if result["code"] != "UPSTREAM_ERROR" {
		t.Errorf("expected code UPSTREAM_ERROR, got %v", result["code"])
	}
	if result["error"] != "status 503" {
		t.Errorf("expected cause in error field, got %v", result["error"])
	}
	if result["recoverable"] != true {
		t.Errorf("expected recoverable true")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{nil, 200},
		{NewInvalidInput("x"), 400},
		{NewNotFound("session", "abc"), 404},
		{NewUpstream("replicate", "x", nil), 502},
		{NewTimeout("image job", nil), 504},
		{NewUnknownTool("x"), 500},
		{NewConfiguration("x"), 500},
		{errors.New("plain"), 500},
	}

	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.expected {
			t.Errorf("StatusCode(%v): expected %d, got %d", tt.err, tt.expected, got)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{NewInvalidInput("city is required"), "ArgumentError"},
		{fmt.Errorf("wrapped: %w", NewUpstream("unsplash", "x", nil)), "UpstreamError"},
		{NewTimeout("image job", nil), "TimeoutError"},
		{NewUnknownTool("x"), "UnknownToolError"},
		{NewConfiguration("replicate.api_token"), "ConfigurationError"},
		{errors.New("plain"), "InternalError"},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.expected {
			t.Errorf("KindOf(%v): expected %q, got %q", tt.err, tt.expected, got)
		}
	}
}

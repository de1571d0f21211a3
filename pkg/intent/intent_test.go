// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package intent

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/planner"
	"github.com/jllopis/canvasrelay/pkg/resilience"
	"github.com/jllopis/canvasrelay/pkg/telemetry"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

type stubPlanner struct {
	plan  *planner.Plan
	err   error
	calls int
}

func (s *stubPlanner) Plan(ctx context.Context, req planner.Request) (*planner.Plan, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.plan, nil
}

func today() time.Time {
	return time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)
}

func newResolver(p planner.Planner, opts ...Option) *Resolver {
	opts = append([]Option{WithClock(today), WithLogger(telemetry.Discard())}, opts...)
	return New(p, nil, opts...)
}

func TestHeuristics(t *testing.T) {
	tests := []struct {
		name    string
		message string
		state   map[string]any
		rule    string
		call    *tools.Call
		clarify string
	}{
		{
			name:    "weather yesterday",
			message: "What was the weather in Paris yesterday?",
			rule:    RuleWeatherHistory,
			call: &tools.Call{Name: tools.NameGetWeatherHistory, Arguments: map[string]any{
				"city": "Paris", "date": "2026-10-18",
			}},
		},
		{
			name:    "city before weather",
			message: "paris weather the day before yesterday",
			rule:    RuleWeatherHistory,
			call: &tools.Call{Name: tools.NameGetWeatherHistory, Arguments: map[string]any{
				"city": "Paris", "date": "2026-10-17",
			}},
		},
		{
			name:    "iso date wins",
			message: "weather in new york on 2026-03-01, not yesterday",
			rule:    RuleWeatherHistory,
			call: &tools.Call{Name: tools.NameGetWeatherHistory, Arguments: map[string]any{
				"city": "New York", "date": "2026-03-01",
			}},
		},
		{
			name:    "days ago",
			message: "How much rain fell in Oslo 3 days ago",
			rule:    RuleWeatherHistory,
			call: &tools.Call{Name: tools.NameGetWeatherHistory, Arguments: map[string]any{
				"city": "Oslo", "date": "2026-10-16",
			}},
		},
		{
			name:    "last week after a non-city preposition",
			message: "weather for last week in Berlin?",
			rule:    RuleWeatherHistory,
			call: &tools.Call{Name: tools.NameGetWeatherHistory, Arguments: map[string]any{
				"city": "Berlin", "date": "2026-10-12",
			}},
		},
		{
			name:    "yesterday without a weather word",
			message: "How hot was it in Madrid yesterday?",
			rule:    RuleWeatherHistory,
			call: &tools.Call{Name: tools.NameGetWeatherHistory, Arguments: map[string]any{
				"city": "Madrid", "date": "2026-10-18",
			}},
		},
		{
			name:    "bare city and day",
			message: "Paris yesterday",
			rule:    RuleWeatherHistory,
			call: &tools.Call{Name: tools.NameGetWeatherHistory, Arguments: map[string]any{
				"city": "Paris", "date": "2026-10-18",
			}},
		},
		{
			name:    "bare city and iso date",
			message: "was it sunny in Rome on 2026-07-04",
			rule:    RuleWeatherHistory,
			call: &tools.Call{Name: tools.NameGetWeatherHistory, Arguments: map[string]any{
				"city": "Rome", "date": "2026-07-04",
			}},
		},
		{
			name:    "missing city",
			message: "What was the weather yesterday?",
			rule:    RuleWeatherHistory,
			clarify: AskCity,
		},
		{
			name:    "unresolvable date",
			message: "weather in Rome last month",
			rule:    RuleWeatherHistory,
			clarify: AskDate,
		},
		{
			name:    "missing both",
			message: "how was the weather earlier",
			rule:    RuleWeatherHistory,
			clarify: AskCityAndDate,
		},
		{
			name:    "search with filler",
			message: "find some photos of red foxes, please",
			rule:    RuleSearch,
			call: &tools.Call{Name: tools.NameSearchLibrary, Arguments: map[string]any{
				"query": "red foxes", "source": "unsplash", "ratio": "1:1",
			}},
		},
		{
			name:    "search uses preferred ratio",
			message: "show me mountains",
			state:   map[string]any{"ratio": "16:9"},
			rule:    RuleSearch,
			call: &tools.Call{Name: tools.NameSearchLibrary, Arguments: map[string]any{
				"query": "mountains", "source": "unsplash", "ratio": "16:9",
			}},
		},
		{
			name:    "subject before the verb",
			message: "mountains, show me some",
			rule:    RuleSearch,
			call: &tools.Call{Name: tools.NameSearchLibrary, Arguments: map[string]any{
				"query": "mountains", "source": "unsplash", "ratio": "1:1",
			}},
		},
		{
			name:    "polite search keeps both sides",
			message: "Could you please find me snowy owls at night",
			rule:    RuleSearch,
			call: &tools.Call{Name: tools.NameSearchLibrary, Arguments: map[string]any{
				"query": "snowy owls at night", "source": "unsplash", "ratio": "1:1",
			}},
		},
		{
			name:    "empty search",
			message: "search for",
			rule:    RuleSearch,
			clarify: AskSearchQuery,
		},
		{
			name:    "generate",
			message: "Please draw me a cat in a hat",
			state:   map[string]any{"aspect_ratio": "9:16"},
			rule:    RuleGenerate,
			call: &tools.Call{Name: tools.NameGenerateAI, Arguments: map[string]any{
				"prompt": "a cat in a hat", "count": 1, "aspect_ratio": "9:16",
			}},
		},
		{
			name:    "generate strips image noun",
			message: "generate an image of a lighthouse at dusk",
			rule:    RuleGenerate,
			call: &tools.Call{Name: tools.NameGenerateAI, Arguments: map[string]any{
				"prompt": "a lighthouse at dusk", "count": 1, "aspect_ratio": "1:1",
			}},
		},
		{
			name:    "empty generate",
			message: "create",
			rule:    RuleGenerate,
			clarify: AskGeneratePrompt,
		},
	}

	r := newResolver(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := r.Resolve(context.Background(), Turn{Message: tt.message, State: tt.state})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Source != SourceHeuristic || d.Rule != tt.rule {
				t.Fatalf("expected heuristic rule %q, got %s/%q", tt.rule, d.Source, d.Rule)
			}
			if diff := cmp.Diff(tt.call, d.Call); diff != "" {
				t.Errorf("call mismatch (-want +got):\n%s", diff)
			}
			if d.Clarification != tt.clarify {
				t.Errorf("clarification = %q, want %q", d.Clarification, tt.clarify)
			}
		})
	}
}

func TestNoIntent(t *testing.T) {
	r := newResolver(nil)
	msgs := []string{
		"hello there",
		"What's the weather like?",
		"  ",
		// Weather words keep search out; there is no date to look up.
		"show me the weather in Paris",
		"find the forecast for Lisbon",
		// A vague past without weather is chatter.
		"what did we talk about earlier",
	}
	for _, msg := range msgs {
		d, err := r.Resolve(context.Background(), Turn{Message: msg})
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", msg, err)
		}
		if d.Source != SourceNone || d.Call != nil || d.Clarification != "" {
			t.Errorf("%q: expected no intent, got %+v", msg, d)
		}
	}
}

func TestPlannerFirst(t *testing.T) {
	p := &stubPlanner{plan: &planner.Plan{
		ResponseID: "resp_1",
		ToolCalls: []tools.Call{
			{ID: "call_1", Name: tools.NameSetView, Arguments: map[string]any{"view": "weather"}},
			{ID: "call_2", Name: tools.NameRefreshWeather, Arguments: map[string]any{}},
		},
	}}
	r := newResolver(p)

	d, err := r.Resolve(context.Background(), Turn{Message: "find photos of cats"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Source != SourcePlanner || d.ResponseID != "resp_1" {
		t.Errorf("expected planner decision, got %+v", d)
	}
	if d.Call == nil || d.Call.ID != "call_1" {
		t.Errorf("expected only the first call, got %+v", d.Call)
	}
}

func TestPlannerTextOnly(t *testing.T) {
	r := newResolver(&stubPlanner{plan: &planner.Plan{ResponseID: "resp_2", Text: "Hi! What can I do?"}})

	d, err := r.Resolve(context.Background(), Turn{Message: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Source != SourcePlanner || d.Call != nil || d.Text != "Hi! What can I do?" {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestPlannerEmptyFallsBackToRules(t *testing.T) {
	r := newResolver(&stubPlanner{plan: &planner.Plan{ResponseID: "resp_3"}})

	d, err := r.Resolve(context.Background(), Turn{Message: "show me beaches"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Source != SourceHeuristic || d.Rule != RuleSearch {
		t.Errorf("expected search heuristic, got %+v", d)
	}
}

func TestPlannerFailure(t *testing.T) {
	p := &stubPlanner{err: errors.NewUpstream("openai", "planner call failed", stderrors.New("503"))}
	r := newResolver(p)

	d, err := r.Resolve(context.Background(), Turn{Message: "draw a dragon"})
	if err != nil {
		t.Fatalf("heuristics should cover the planner failure: %v", err)
	}
	if d.Source != SourceHeuristic || d.Call.Name != tools.NameGenerateAI {
		t.Errorf("unexpected decision %+v", d)
	}

	_, err = r.Resolve(context.Background(), Turn{Message: "hello"})
	if !errors.Is(err, errors.CodeUpstream) {
		t.Errorf("expected upstream error when nothing is inferred, got %v", err)
	}
}

func TestPlannerCircuitBreaker(t *testing.T) {
	p := &stubPlanner{err: stderrors.New("connection refused")}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "planner",
		FailureThreshold: 2,
		Timeout:          time.Hour,
	})
	r := newResolver(p, WithCircuitBreaker(cb))

	for range 4 {
		if _, err := r.Resolve(context.Background(), Turn{Message: "show me owls"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if p.calls != 2 {
		t.Errorf("expected the breaker to stop calls after 2 failures, got %d calls", p.calls)
	}
	if cb.State() != resilience.StateOpen {
		t.Errorf("expected open breaker, got %s", cb.State())
	}
}

func TestPreferredRatio(t *testing.T) {
	tests := []struct {
		state map[string]any
		want  string
	}{
		{nil, "1:1"},
		{map[string]any{"ratio": "4:3"}, "4:3"},
		{map[string]any{"aspect_ratio": "3:4"}, "3:4"},
		{map[string]any{"ratio": "2:1"}, "1:1"},
		{map[string]any{"ratio": 16}, "1:1"},
	}
	for _, tt := range tests {
		if got := PreferredRatio(tt.state); got != tt.want {
			t.Errorf("PreferredRatio(%v) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

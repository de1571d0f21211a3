package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedProvider is a test Provider that pops pre-defined responses in
// order and records every request it receives.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	requests  []ChatRequest
}

// ScriptedResponse is one canned reply; a non-nil Err is returned instead.
type ScriptedResponse struct {
	Content   string
	ToolCalls []ToolCall
	Err       error
}

// NewScriptedProvider creates a provider that answers with responses in order.
func NewScriptedProvider(responses ...ScriptedResponse) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// Chat pops the next scripted response.
func (s *ScriptedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.responses) == 0 {
		return nil, errors.New("scripted provider: no more responses available")
	}

	next := s.responses[0]
	s.responses = s.responses[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	return &ChatResponse{
		Content:   next.Content,
		ToolCalls: next.ToolCalls,
		Usage:     Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// Requests returns a copy of the requests received so far.
func (s *ScriptedProvider) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.requests...)
}

// CallCount returns how many times Chat has been called.
func (s *ScriptedProvider) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// FailingProvider always fails with Err.
type FailingProvider struct {
	Err error
}

// Chat implements Provider.
func (f *FailingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, errors.New("provider unavailable")
	}
	return nil, f.Err
}

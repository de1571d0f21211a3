// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jllopis/canvasrelay/pkg/errors"
)

func upstreamStatus(status int) error {
	return errors.NewUpstream("unsplash", "search failed", nil).WithContext("status", status)
}

func TestRetrySuccess(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	err := config.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return stderrors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithMaxAttempts(2).WithInitialDelay(time.Millisecond)
	err := config.Do(context.Background(), func() error {
		attempts++
		return stderrors.New("always fails")
	})

	if err == nil {
		t.Errorf("expected error after max attempts")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryNonRecoverableRelayError(t *testing.T) {
	attempts := 0
	err := DefaultRetryConfig().Do(context.Background(), func() error {
		attempts++
		return errors.NewInvalidInput("query is required")
	})

	if !errors.Is(err, errors.CodeInvalidInput) {
		t.Errorf("expected invalid input error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestServerErrorRetryConfig(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		attempts int
	}{
		{name: "5xx retried once", err: upstreamStatus(503), attempts: 2},
		{name: "4xx not retried", err: upstreamStatus(401), attempts: 1},
		{name: "plain error not retried", err: stderrors.New("boom"), attempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			config := ServerErrorRetryConfig().WithInitialDelay(time.Millisecond)
			err := config.Do(context.Background(), func() error {
				attempts++
				return tt.err
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if attempts != tt.attempts {
				t.Errorf("expected %d attempts, got %d", tt.attempts, attempts)
			}
		})
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := DefaultRetryConfig().WithInitialDelay(100 * time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := config.Do(ctx, func() error {
		return stderrors.New("transient error")
	})
	if !errors.Is(err, errors.CodeContextLost) {
		t.Errorf("expected context lost error, got %v", err)
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	result, err := DoWithResult(context.Background(), config, func() ([]string, error) {
		attempts++
		if attempts < 2 {
			return nil, stderrors.New("transient")
		}
		return []string{"a"}, nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(result) != 1 || result[0] != "a" {
		t.Errorf("unexpected result %v", result)
	}
}

func TestWithTimeout(t *testing.T) {
	_, err := WithTimeout(context.Background(), "turn", 10*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, errors.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}

	got, err := WithTimeout(context.Background(), "turn", time.Second, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("expected ok, got %q %v", got, err)
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, Name: "planner"})

	for i := 0; i < 2; i++ {
		_ = cb.Call(context.Background(), func() error { return stderrors.New("failure") })
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected state open, got %s", cb.State())
	}

	err := cb.Call(context.Background(), func() error {
		t.Fatal("should not execute in open state")
		return nil
	})
	if !errors.Is(err, errors.CodeUpstream) {
		t.Errorf("expected upstream error when open, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute})
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	_ = cb.Call(context.Background(), func() error { return stderrors.New("fail") })
	if cb.State() != StateOpen {
		t.Fatalf("expected open")
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to run: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreakerIgnoresCallerCancel(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = cb.Call(ctx, func() error { return ctx.Err() })
	if cb.State() != StateClosed {
		t.Errorf("expected closed, caller cancellation must not trip the breaker")
	}
}

// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/resilience"
)

// PlannerHealthChecker reports planner health from its circuit breaker:
// closed is healthy, half-open degraded, open unhealthy. Turns still get
// heuristic answers while the planner is down.
type PlannerHealthChecker struct {
	state       func() resilience.CircuitBreakerState
	configured  bool
	lastCheck   time.Time
	lastResult  core.HealthResult
	minInterval time.Duration
	now         func() time.Time
	mu          sync.RWMutex
}

// NewPlannerHealthChecker creates a checker. A nil state func means no planner
// is configured.
func NewPlannerHealthChecker(state func() resilience.CircuitBreakerState) *PlannerHealthChecker {
	return &PlannerHealthChecker{
		state:       state,
		configured:  state != nil,
		minInterval: 5 * time.Second,
		now:         time.Now,
	}
}

// Check implements core.HealthChecker.
func (h *PlannerHealthChecker) Check(ctx context.Context) core.HealthResult {
	h.mu.RLock()
	if h.now().Sub(h.lastCheck) < h.minInterval && !h.lastResult.LastCheck.IsZero() {
		result := h.lastResult
		h.mu.RUnlock()
		return result
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.now().Sub(h.lastCheck) < h.minInterval && !h.lastResult.LastCheck.IsZero() {
		return h.lastResult
	}

	result := core.HealthResult{
		Component: "planner",
		LastCheck: h.now(),
	}
	switch {
	case !h.configured:
		result.Status = core.HealthDegraded
		result.Message = "no planner configured, heuristics only"
	default:
		switch h.state() {
		case resilience.StateOpen:
			result.Status = core.HealthUnhealthy
			result.Message = "planner circuit open"
		case resilience.StateHalfOpen:
			result.Status = core.HealthDegraded
			result.Message = "planner recovering"
		default:
			result.Status = core.HealthHealthy
		}
	}

	h.lastResult = result
	h.lastCheck = result.LastCheck
	return result
}

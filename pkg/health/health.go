// Package health provides Kubernetes-style liveness and readiness probe
// endpoints. Registered checks run on a shared background ticker; HTTP
// handlers serve the most recent results and never invoke checks inline.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. It returns nil when the component is
// healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []check
	readiness []check
	results   map[string]error
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Health service. It starts not-ready; call SetReady(true)
// once initialization finishes.
func New() *Health {
	return &Health{results: make(map[string]error)}
}

// AddLivenessCheck registers a check that decides whether the process is
// alive at all (e.g. goroutine count). Register checks before Start.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, check{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a check that decides whether the service can
// take traffic (e.g. database ping). Register checks before Start.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, check{name: name, timeout: timeout, fn: fn})
}

// Start launches the background check loop with the given interval. All
// checks run once immediately so the first probe has data.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	h.done = make(chan struct{})
	h.mu.Unlock()

	go h.run(ctx, interval)
}

// Stop terminates the background check loop.
func (h *Health) Stop() {
	h.mu.RLock()
	cancel, done := h.cancel, h.done
	h.mu.RUnlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SetReady flips the manual readiness gate. The readiness endpoint reports
// ready only when the gate is open AND every readiness check passes.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Health) run(ctx context.Context, interval time.Duration) {
	defer close(h.done)

	h.runChecks(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.runChecks(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Health) runChecks(ctx context.Context) {
	h.mu.RLock()
	checks := make([]check, 0, len(h.liveness)+len(h.readiness))
	checks = append(checks, h.liveness...)
	checks = append(checks, h.readiness...)
	h.mu.RUnlock()

	results := make(map[string]error, len(checks))
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		results[c.name] = c.fn(checkCtx)
		cancel()
	}

	h.mu.Lock()
	for name, err := range results {
		h.results[name] = err
	}
	h.mu.Unlock()
}

func (h *Health) status(checks []check) (map[string]string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string, len(checks))
	healthy := true
	for _, c := range checks {
		if err := h.results[c.name]; err != nil {
			out[c.name] = err.Error()
			healthy = false
		} else {
			out[c.name] = "ok"
		}
	}
	return out, healthy
}

// LiveEndpoint serves the liveness probe.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := h.liveness
	h.mu.RUnlock()

	results, healthy := h.status(checks)
	writeStatus(w, results, healthy)
}

// ReadyEndpoint serves the readiness probe.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := h.readiness
	h.mu.RUnlock()

	results, healthy := h.status(checks)
	writeStatus(w, results, healthy && h.ready.Load())
}

func writeStatus(w http.ResponseWriter, checks map[string]string, healthy bool) {
	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}{Status: status, Checks: checks})
}

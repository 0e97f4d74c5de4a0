// Package health provides Kubernetes-style liveness and readiness probe support.
//
// Checks run on demand when a probe endpoint is hit, each bounded by its own
// timeout. Results are cached for a short TTL so aggressive probing does not
// hammer dependencies like the database. A check's mutex is held while it
// runs, so concurrent probes wait for the in-flight run and then reuse its
// result instead of starting their own.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc is a health check function. It should return nil if the checked
// component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// check holds the configuration and cached result for a single check.
type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// eval returns the check's current error state, running fn only when the
// cached result is older than ttl.
func (c *check) eval(ctx context.Context, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastRun.IsZero() && time.Since(c.lastRun) < ttl {
		return c.lastErr
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.lastErr = c.fn(checkCtx)
	c.lastRun = time.Now()
	return c.lastErr
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool
	ttl   time.Duration

	// mu protects the check slices. Registration happens during startup;
	// probe handlers snapshot the slices under RLock and release before
	// evaluating, so a slow check never blocks registration.
	mu              sync.RWMutex
	livenessChecks  []*check
	readinessChecks []*check
}

// New creates a Health instance that caches check results for ttl.
// A non-positive ttl disables caching, so every probe runs the checks.
// The service starts in a not-ready state; call SetReady(true) once
// initialization completes.
func New(ttl time.Duration) *Health {
	return &Health{ttl: ttl}
}

// AddLivenessCheck registers a liveness check. Liveness checks determine
// whether the process is alive and functioning. Examples: goroutine count,
// GC pause duration, deadlock detection.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, &check{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a readiness check. Readiness checks determine
// whether the service is ready to accept traffic. Examples: database
// connectivity, cache warmup, dependent service availability.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, &check{name: name, timeout: timeout, fn: fn})
}

// SetReady sets the manual readiness flag. This is typically called with
// true after service initialization completes, and with false during
// graceful shutdown to stop receiving new traffic.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the manual readiness flag. The /readyz endpoint
// additionally evaluates the registered readiness checks.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}

// statusResponse is the JSON response body for health endpoints.
type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint is an http.HandlerFunc for the /livez endpoint.
// It returns 200 with {"status":"ok"} if all liveness checks pass,
// or 503 with {"status":"unhealthy","checks":{...}} listing failures.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := slices.Clone(h.livenessChecks)
	h.mu.RUnlock()

	writeResponse(w, h.collectFailures(r.Context(), checks))
}

// ReadyEndpoint is an http.HandlerFunc for the /readyz endpoint.
// It returns 200 with {"status":"ok"} if the service is manually marked
// ready AND all readiness checks pass. Otherwise it returns 503 with
// details.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := slices.Clone(h.readinessChecks)
	h.mu.RUnlock()

	failures := h.collectFailures(r.Context(), checks)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

// collectFailures evaluates checks and returns a map of check name to error
// message for each one that fails.
func (h *Health) collectFailures(ctx context.Context, checks []*check) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		if err := c.eval(ctx, h.ttl); err != nil {
			failures[c.name] = err.Error()
		}
	}
	return failures
}

// writeResponse writes the appropriate HTTP status and JSON body based on
// whether any failures were found.
func writeResponse(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	status := http.StatusOK

	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)

	// Best effort: the status code is already written, so we cannot change
	// the response. This should only happen if the client disconnected.
	_ = json.NewEncoder(w).Encode(resp)
}

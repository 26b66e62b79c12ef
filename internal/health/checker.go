// Package health provides liveness, readiness and startup checks for the
// exporter's components.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmaes/prometheus-shelly-exporter/internal/cache"
	"github.com/dmaes/prometheus-shelly-exporter/internal/errors"
	"github.com/dmaes/prometheus-shelly-exporter/internal/store"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult is the outcome of one component's health check.
type CheckResult struct {
	Component   string        `json:"component"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
	LastSuccess *time.Time    `json:"last_success,omitempty"`
}

// HealthStatus aggregates the overall state with the per-component results.
type HealthStatus struct {
	Overall Status                 `json:"overall"`
	Checks  map[string]CheckResult `json:"checks"`
}

// Checker is the health surface the HTTP handlers consume.
type Checker interface {
	LivenessCheck(ctx context.Context) error
	ReadinessCheck(ctx context.Context) error
	StartupCheck(ctx context.Context) error
	GetHealthStatus(ctx context.Context) HealthStatus
}

// ComponentChecker is one registerable component check.
type ComponentChecker interface {
	CheckHealth(ctx context.Context) error
	ComponentName() string
}

// HealthChecker runs registered component checks and remembers the last
// results so failures can report when the component last succeeded.
type HealthChecker struct {
	components  map[string]ComponentChecker
	mu          sync.RWMutex
	lastChecks  map[string]CheckResult
	startupTime time.Time
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		components:  make(map[string]ComponentChecker),
		lastChecks:  make(map[string]CheckResult),
		startupTime: time.Now(),
	}
}

func (hc *HealthChecker) RegisterComponent(checker ComponentChecker) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.components[checker.ComponentName()] = checker
}

// LivenessCheck only verifies the process is responsive; it never touches
// external dependencies so a broken store cannot get the pod killed.
func (hc *HealthChecker) LivenessCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// ReadinessCheck verifies every registered component within a bounded time.
func (hc *HealthChecker) ReadinessCheck(ctx context.Context) error {
	components := hc.snapshot()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for name, component := range components {
		if err := component.CheckHealth(ctx); err != nil {
			return fmt.Errorf("component %s not ready: %w", name, err)
		}
	}

	return nil
}

// StartupCheck degrades to a liveness check during the startup grace period
// so slow store backends do not fail the startup probe.
func (hc *HealthChecker) StartupCheck(ctx context.Context) error {
	if time.Since(hc.startupTime) < 30*time.Second {
		return hc.LivenessCheck(ctx)
	}
	return hc.ReadinessCheck(ctx)
}

// GetHealthStatus runs all component checks and returns the detailed per
// component results. Checks taking over five seconds mark the component
// degraded even when they succeed.
func (hc *HealthChecker) GetHealthStatus(ctx context.Context) HealthStatus {
	components := hc.snapshot()

	results := make(map[string]CheckResult)
	overallHealthy := true
	degraded := false

	for name, component := range components {
		start := time.Now()
		err := component.CheckHealth(ctx)
		duration := time.Since(start)

		var status Status
		var message string
		var lastSuccess *time.Time

		if err != nil {
			status = StatusUnhealthy
			message = err.Error()
			overallHealthy = false

			hc.mu.RLock()
			if prev, exists := hc.lastChecks[name]; exists && prev.Status == StatusHealthy {
				lastSuccess = &prev.Timestamp
			}
			hc.mu.RUnlock()
		} else {
			status = StatusHealthy
			now := time.Now()
			lastSuccess = &now
		}

		if duration > 5*time.Second {
			degraded = true
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}

		results[name] = CheckResult{
			Component:   name,
			Status:      status,
			Message:     message,
			Duration:    duration,
			Timestamp:   time.Now(),
			LastSuccess: lastSuccess,
		}
	}

	hc.mu.Lock()
	hc.lastChecks = results
	hc.mu.Unlock()

	overall := StatusHealthy
	if !overallHealthy {
		overall = StatusUnhealthy
	} else if degraded {
		overall = StatusDegraded
	}

	return HealthStatus{Overall: overall, Checks: results}
}

func (hc *HealthChecker) snapshot() map[string]ComponentChecker {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	components := make(map[string]ComponentChecker, len(hc.components))
	for name, comp := range hc.components {
		components[name] = comp
	}
	return components
}

// StoreHealthChecker verifies the persisted probe store's backing medium is
// reachable. A not-yet-initialized document counts as healthy; the store
// bootstraps it on first load.
type StoreHealthChecker struct {
	backend store.Backend
}

// NewStoreHealthChecker creates a health checker over the store's backend.
func NewStoreHealthChecker(backend store.Backend) *StoreHealthChecker {
	return &StoreHealthChecker{backend: backend}
}

func (sc *StoreHealthChecker) ComponentName() string {
	return "probe_store"
}

func (sc *StoreHealthChecker) CheckHealth(ctx context.Context) error {
	if sc.backend == nil {
		return fmt.Errorf("store backend not initialized")
	}

	if _, err := sc.backend.ReadBytes(ctx); err != nil && err != errors.ErrNotFound {
		return fmt.Errorf("store connectivity check failed: %w", err)
	}
	return nil
}

// CacheHealthChecker verifies the device type cache is functioning.
type CacheHealthChecker struct {
	cache *cache.TypeCache
}

// NewCacheHealthChecker creates a health checker over the type cache.
func NewCacheHealthChecker(c *cache.TypeCache) *CacheHealthChecker {
	return &CacheHealthChecker{cache: c}
}

func (cc *CacheHealthChecker) ComponentName() string {
	return "type_cache"
}

func (cc *CacheHealthChecker) CheckHealth(context.Context) error {
	if cc.cache == nil {
		return fmt.Errorf("cache not initialized")
	}
	if cc.cache.Len() < 0 {
		return fmt.Errorf("cache in invalid state")
	}
	return nil
}

// WriteHealthResponse encodes the detailed status as JSON.
func WriteHealthResponse(w http.ResponseWriter, status HealthStatus, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}

// DetermineHTTPStatus maps an overall status to an HTTP status code.
// Degraded still reports OK so orchestrators do not restart a slow but
// working exporter.
func DetermineHTTPStatus(status Status) int {
	switch status {
	case StatusHealthy, StatusDegraded:
		return http.StatusOK
	case StatusUnhealthy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/recipegate/recipegate/internal/errors"
	"github.com/recipegate/recipegate/internal/metrics"
)

// Check results.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
)

// ErrDegraded marks a check that still serves traffic in a reduced mode.
var ErrDegraded = errors.New("degraded")

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components.
// Returning an error wrapping ErrDegraded reports "degraded" instead of "unhealthy".
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// HealthManager runs the registered checks for the health endpoints.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
	}
}

// RegisterChecker registers a health checker
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	checks := make(map[string]string, len(hm.checkers))
	for name, checker := range hm.checkers {
		if ctx.Err() != nil {
			checks[name] = StatusTimeout
			continue
		}

		start := time.Now()
		err := checker.CheckHealth(ctx)
		switch {
		case err == nil:
			checks[name] = StatusHealthy
		case errors.Is(err, ErrDegraded):
			checks[name] = StatusDegraded
		default:
			checks[name] = StatusUnhealthy
		}
		metrics.RecordHealthCheck(name, checks[name] != StatusUnhealthy, time.Since(start))
	}

	return checks
}

func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		if status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if status == StatusDegraded || status == StatusTimeout {
			degraded = true
		}
	}

	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// HealthHandler handles aggregate health check requests
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := hm.runHealthChecks(checkCtx)
	status := hm.determineOverallStatus(checks)
	if status == StatusUnhealthy {
		respondWithError(w, r, unavailable("aggregate health check failed", checks))
		return
	}

	writeJSON(w, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler reports whether the process is up. It runs no checks.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ProbeResponse{Status: StatusHealthy, Timestamp: time.Now().UTC()})
}

// ReadinessHandler reports whether the gateway should receive traffic.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "readiness", 5*time.Second)
}

// StartupHandler reports whether initialization has completed.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "startup", 3*time.Second)
}

func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, name string, timeout time.Duration) {
	checkCtx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := hm.runHealthChecks(checkCtx)
	status := hm.determineOverallStatus(checks)
	if status == StatusUnhealthy {
		respondWithError(w, r, unavailable(name+" probe failed", checks))
		return
	}

	writeJSON(w, ProbeResponse{Status: status, Timestamp: time.Now().UTC()})
}

// unavailable builds a 503 envelope naming the failing checks.
func unavailable(message string, checks map[string]string) error {
	var failing []string
	for name, result := range checks {
		if result == StatusUnhealthy {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	if len(failing) > 0 {
		message = fmt.Sprintf("%s (%s)", message, strings.Join(failing, ", "))
	}

	envelope := apperrors.NewServiceUnavailableError(message)
	envelope, _ = envelope.WithContext(map[string]interface{}{
		"unhealthy_checks": failing,
	})
	return envelope
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

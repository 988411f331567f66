package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/pkg/logger"
)

// Check is one named dependency probe
type Check struct {
	Name string
	Func func() error
}

// Checker serves liveness and readiness probes for K8s
type Checker struct {
	checks    []Check
	ready     bool
	readyMu   sync.RWMutex
	startTime time.Time
}

// HealthStatus represents system health
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessStatus represents system readiness
type ReadinessStatus struct {
	Ready     bool              `json:"ready"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// NewChecker creates new health checker over dependency probes
func NewChecker(checks ...Check) *Checker {
	return &Checker{
		checks:    checks,
		startTime: time.Now(),
	}
}

// SetReady marks the service as ready
func (c *Checker) SetReady(ready bool) {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	c.ready = ready

	if ready {
		logger.Info("✅ service marked as READY")
	} else {
		logger.Warn("⚠️ service marked as NOT READY")
	}
}

// runChecks probes every dependency
func (c *Checker) runChecks() (map[string]string, bool) {
	results := make(map[string]string, len(c.checks))
	allHealthy := true

	for _, check := range c.checks {
		if err := check.Func(); err != nil {
			results[check.Name] = "unhealthy: " + err.Error()
			allHealthy = false
			logger.Debug("dependency unhealthy", zap.String("check", check.Name), zap.Error(err))
			continue
		}
		results[check.Name] = "healthy"
	}

	return results, allHealthy
}

// HandleHealth handles liveness probe - /health
// Returns 200 if process is alive (even if dependencies are down)
func (c *Checker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
	}

	if r.URL.Query().Get("verbose") == "true" {
		status.Checks, _ = c.runChecks()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// HandleReadiness handles readiness probe - /ready
// Returns 200 only if startup finished and all dependencies are healthy
func (c *Checker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	c.readyMu.RLock()
	ready := c.ready
	c.readyMu.RUnlock()

	checks, allHealthy := c.runChecks()
	isReady := ready && allHealthy

	status := ReadinessStatus{
		Ready:     isReady,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if isReady {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}

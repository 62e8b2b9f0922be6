package handlers

import (
	"context"
	"net/http"
	"time"

	"honeyshield/pkg/logger"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store     Pinger
	cache     Pinger
	version   string
	logger    *logger.Logger
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler. cache may be nil.
func NewHealthHandler(store, cache Pinger, version string, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		cache:     cache,
		version:   version,
		logger:    log.WithComponent("health"),
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) response(status string, checks map[string]string) HealthResponse {
	return HealthResponse{
		Status:    status,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.response("healthy", nil))
}

// Ready handles GET /ready - checks all dependencies
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := http.StatusOK
	overall := "ready"

	probe := func(name string, p Pinger) {
		if p == nil {
			checks[name] = "not configured"
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			overall = "not ready"
			return
		}
		checks[name] = "healthy"
	}
	probe("database", h.store)
	probe("redis", h.cache)

	if status != http.StatusOK {
		h.logger.Warn().Interface("checks", checks).Msg("readiness check failed")
	}
	writeJSON(w, status, h.response(overall, checks))
}

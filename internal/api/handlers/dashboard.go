package handlers

import (
	_ "embed"
	"net/http"

	"honeyshield/internal/domain/services"
	"honeyshield/pkg/logger"
)

//go:embed static/dashboard.html
var dashboardPage []byte

// DashboardHandler serves the dashboard page and its data.
type DashboardHandler struct {
	dashboard *services.DashboardService
	logger    *logger.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(d *services.DashboardService, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboard: d,
		logger:    log.WithComponent("dashboard-handler"),
	}
}

// Page handles GET /
func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(dashboardPage)
}

// Overview handles GET /api/v1/dashboard/overview
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.dashboard.Overview(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build dashboard overview")
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// Distribution handles GET /api/v1/dashboard/distribution
func (h *DashboardHandler) Distribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.dashboard.Distribution(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load risk distribution")
		writeError(w, http.StatusInternalServerError, "failed to load distribution")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"risk_distribution": dist})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"honeyshield/internal/domain/services"
	"honeyshield/internal/sources"
	"honeyshield/pkg/logger"
)

// SourcesHandler exposes decoy sources and the monitor loop.
type SourcesHandler struct {
	monitor *services.MonitorService
	logger  *logger.Logger
}

// NewSourcesHandler creates a new sources handler
func NewSourcesHandler(monitor *services.MonitorService, log *logger.Logger) *SourcesHandler {
	return &SourcesHandler{
		monitor: monitor,
		logger:  log.WithComponent("sources-handler"),
	}
}

// List handles GET /api/v1/sources
func (h *SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	status := h.monitor.Sources()
	writeJSON(w, http.StatusOK, map[string]any{"sources": status, "count": len(status)})
}

// Poll handles POST /api/v1/sources/{slug}/poll
func (h *SourcesHandler) Poll(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	res, err := h.monitor.PollSource(r.Context(), slug)
	switch {
	case errors.Is(err, sources.ErrSourceNotFound):
		writeError(w, http.StatusNotFound, "source not found")
	case errors.Is(err, sources.ErrSourceDisabled):
		writeError(w, http.StatusConflict, "source is disabled")
	case err != nil:
		h.logger.Warn().Err(err).Str("slug", slug).Msg("manual poll failed")
		writeJSON(w, http.StatusBadGateway, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// MonitorStats handles GET /api/v1/monitor/stats
func (h *SourcesHandler) MonitorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Stats())
}

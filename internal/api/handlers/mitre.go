package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"honeyshield/internal/domain/models"
	"honeyshield/internal/domain/services"
	"honeyshield/internal/infrastructure/database/repository"
	"honeyshield/pkg/logger"
)

const navigatorLayerName = "Honeyshield detections"

// MITREHandler serves the social engineering technique catalog.
type MITREHandler struct {
	service *services.MITREService
	store   repository.Store
	logger  *logger.Logger
}

// NewMITREHandler creates a new MITRE handler
func NewMITREHandler(service *services.MITREService, store repository.Store, log *logger.Logger) *MITREHandler {
	return &MITREHandler{
		service: service,
		store:   store,
		logger:  log.WithComponent("mitre-handler"),
	}
}

// ListTechniques handles GET /api/v1/mitre/techniques?tactic=&q=
func (h *MITREHandler) ListTechniques(w http.ResponseWriter, r *http.Request) {
	filter := &models.MITRETechniqueFilter{
		Tactic: r.URL.Query().Get("tactic"),
		Search: r.URL.Query().Get("q"),
	}
	techniques := h.service.ListTechniques(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"techniques": techniques,
		"count":      len(techniques),
		"tactics":    h.service.ListTactics(),
	})
}

// GetTechnique handles GET /api/v1/mitre/techniques/{id}
func (h *MITREHandler) GetTechnique(w http.ResponseWriter, r *http.Request) {
	tech := h.service.GetTechnique(chi.URLParam(r, "id"))
	if tech == nil {
		writeError(w, http.StatusNotFound, "technique not found")
		return
	}
	writeJSON(w, http.StatusOK, tech)
}

// Navigator handles GET /api/v1/mitre/navigator. The layer is weighted by
// how often each technique was mapped to stored messages.
func (h *MITREHandler) Navigator(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.TechniqueCounts(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to count techniques")
		writeError(w, http.StatusInternalServerError, "failed to build navigator layer")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="honeyshield-layer.json"`)
	writeJSON(w, http.StatusOK, h.service.GenerateNavigatorLayer(navigatorLayerName, counts))
}

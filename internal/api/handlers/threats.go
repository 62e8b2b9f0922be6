package handlers

import (
	"net/http"
	"strings"

	"honeyshield/internal/infrastructure/database/repository"
	"honeyshield/pkg/logger"
)

// ThreatsHandler lists aggregated senders and their relationships.
type ThreatsHandler struct {
	store  repository.Store
	graph  RelatedFinder
	logger *logger.Logger
}

// NewThreatsHandler creates a new ThreatsHandler. graph may be nil.
func NewThreatsHandler(store repository.Store, graph RelatedFinder, log *logger.Logger) *ThreatsHandler {
	return &ThreatsHandler{
		store:  store,
		graph:  graph,
		logger: log.WithComponent("threats-handler"),
	}
}

// List handles GET /api/v1/threats?limit=
func (h *ThreatsHandler) List(w http.ResponseWriter, r *http.Request) {
	threats, err := h.store.ListThreats(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list threats")
		writeError(w, http.StatusInternalServerError, "failed to list threats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threats": threats, "count": len(threats)})
}

// Related handles GET /api/v1/threats/related?profile=
func (h *ThreatsHandler) Related(w http.ResponseWriter, r *http.Request) {
	profile := strings.TrimSpace(r.URL.Query().Get("profile"))
	if profile == "" {
		writeError(w, http.StatusBadRequest, "profile is required")
		return
	}
	if h.graph == nil {
		writeError(w, http.StatusServiceUnavailable, "threat graph disabled")
		return
	}

	related, err := h.graph.RelatedSenders(r.Context(), profile, queryInt(r, "limit", 0))
	if err != nil {
		h.logger.Error().Err(err).Str("profile", profile).Msg("failed to query related senders")
		writeError(w, http.StatusInternalServerError, "failed to query threat graph")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": profile,
		"related": related,
		"count":   len(related),
	})
}

package handlers

import (
	"errors"
	"net/http"

	"honeyshield/internal/domain/services"
	"honeyshield/pkg/logger"
)

// ModelHandler reports on and retrains the phishing classifier.
type ModelHandler struct {
	service *services.ModelService
	logger  *logger.Logger
}

// NewModelHandler creates a new ModelHandler
func NewModelHandler(service *services.ModelService, log *logger.Logger) *ModelHandler {
	return &ModelHandler{
		service: service,
		logger:  log.WithComponent("model-handler"),
	}
}

// Info handles GET /api/v1/model
func (h *ModelHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Info()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Retrain handles POST /api/v1/model/retrain?size=
func (h *ModelHandler) Retrain(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Retrain(r.Context(), queryInt(r, "size", 0))
	switch {
	case errors.Is(err, services.ErrClassifierDisabled):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrRetrainInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.logger.Error().Err(err).Msg("retrain failed")
		writeError(w, http.StatusInternalServerError, "retrain failed")
	default:
		writeJSON(w, http.StatusOK, info)
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"honeyshield/internal/domain/models"
	"honeyshield/internal/domain/services"
	"honeyshield/internal/infrastructure/database/repository"
	"honeyshield/pkg/logger"
)

// AlertsHandler handles alert listing and triage.
type AlertsHandler struct {
	alerts *services.AlertService
	slack  *services.SlackNotifier
	logger *logger.Logger
}

// NewAlertsHandler creates a new AlertsHandler
func NewAlertsHandler(alerts *services.AlertService, slack *services.SlackNotifier, log *logger.Logger) *AlertsHandler {
	return &AlertsHandler{
		alerts: alerts,
		slack:  slack,
		logger: log.WithComponent("alerts-handler"),
	}
}

// List handles GET /api/v1/alerts?hours=&severity=&limit=
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	var severity models.Severity
	if raw := r.URL.Query().Get("severity"); raw != "" {
		sev, ok := models.ParseSeverity(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown severity")
			return
		}
		severity = sev
	}
	hours := services.ClampAlertHours(queryInt(r, "hours", 24))

	alerts, err := h.alerts.RecentAlerts(r.Context(), hours, severity, queryInt(r, "limit", 0))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list alerts")
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	stats, err := h.alerts.Stats(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to load alert stats")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
		"hours":  hours,
		"stats":  stats,
	})
}

// Get handles GET /api/v1/alerts/{alertID}
func (h *AlertsHandler) Get(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")
	alert, err := h.alerts.GetAlert(r.Context(), alertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		h.logger.Error().Err(err).Str("alert_id", alertID).Msg("failed to get alert")
		writeError(w, http.StatusInternalServerError, "failed to get alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// Update handles PATCH /api/v1/alerts/{alertID}
func (h *AlertsHandler) Update(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	var req models.AlertUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	alert, err := h.alerts.UpdateStatus(r.Context(), alertID, req)
	switch {
	case errors.Is(err, services.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "alert not found")
	case err != nil:
		h.logger.Error().Err(err).Str("alert_id", alertID).Msg("failed to update alert")
		writeError(w, http.StatusInternalServerError, "failed to update alert")
	default:
		writeJSON(w, http.StatusOK, alert)
	}
}

// TestSlack handles POST /api/v1/alerts/test-slack
func (h *AlertsHandler) TestSlack(w http.ResponseWriter, r *http.Request) {
	if h.slack == nil {
		writeError(w, http.StatusServiceUnavailable, services.ErrNotConfigured.Error())
		return
	}
	if err := h.slack.TestConnection(r.Context()); err != nil {
		if errors.Is(err, services.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Warn().Err(err).Msg("slack test failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

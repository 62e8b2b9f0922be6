package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"honeyshield/internal/domain/models"
	"honeyshield/internal/domain/services"
	"honeyshield/internal/infrastructure/database/repository"
	"honeyshield/pkg/logger"
)

// MessagesHandler handles analysis, ingestion and message listing.
type MessagesHandler struct {
	analyzer  *services.MessageAnalyzer
	monitor   *services.MonitorService
	store     repository.Store
	dashboard *services.DashboardService
	logger    *logger.Logger
}

// NewMessagesHandler creates a new MessagesHandler
func NewMessagesHandler(
	analyzer *services.MessageAnalyzer,
	monitor *services.MonitorService,
	store repository.Store,
	dashboard *services.DashboardService,
	log *logger.Logger,
) *MessagesHandler {
	return &MessagesHandler{
		analyzer:  analyzer,
		monitor:   monitor,
		store:     store,
		dashboard: dashboard,
		logger:    log.WithComponent("messages-handler"),
	}
}

// Analyze handles POST /api/v1/messages/analyze. Nothing is stored.
func (h *MessagesHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug().Err(err).Msg("invalid request body")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), req.ToInbound())
	if err != nil {
		if errors.Is(err, services.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "message_content is required")
			return
		}
		h.logger.Error().Err(err).Msg("failed to analyze message")
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// AnalyzeBatch handles POST /api/v1/messages/analyze/batch
func (h *MessagesHandler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchAnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug().Err(err).Msg("invalid request body")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "at least one message is required")
		return
	}

	inbound := make([]*models.InboundMessage, len(req.Messages))
	for i := range req.Messages {
		inbound[i] = req.Messages[i].ToInbound()
	}

	result, err := h.analyzer.AnalyzeBatch(r.Context(), inbound)
	if err != nil {
		if errors.Is(err, services.ErrBatchTooLarge) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("failed to analyze batch")
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Ingest handles POST /api/v1/messages: analyze, persist and alert.
// A message already seen answers 200 with duplicate=true.
func (h *MessagesHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug().Err(err).Msg("invalid request body")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.monitor.Ingest(r.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "message_content is required")
			return
		}
		h.logger.Error().Err(err).Msg("failed to ingest message")
		writeError(w, http.StatusInternalServerError, "ingest failed")
		return
	}

	if result.Duplicate {
		writeJSON(w, http.StatusOK, result)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// List handles GET /api/v1/messages?limit=
func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.dashboard.RecentMessages(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list messages")
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

// HighRisk handles GET /api/v1/messages/high-risk?limit=
func (h *MessagesHandler) HighRisk(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.dashboard.HighRiskMessages(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list high risk messages")
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

// Get handles GET /api/v1/messages/{id}
func (h *MessagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	msg, err := h.store.GetMessage(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id.String()).Msg("failed to get message")
		writeError(w, http.StatusInternalServerError, "failed to get message")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

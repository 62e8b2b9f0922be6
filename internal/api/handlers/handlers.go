package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"honeyshield/internal/domain/models"
	"honeyshield/internal/domain/services"
	"honeyshield/internal/infrastructure/database/repository"
	"honeyshield/pkg/logger"
)

// Pinger is a dependency /ready can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RelatedFinder answers sender relationship queries; backed by the Neo4j
// threat graph.
type RelatedFinder interface {
	RelatedSenders(ctx context.Context, key string, limit int) ([]models.RelatedSender, error)
}

// Handlers holds all API handlers
type Handlers struct {
	Health    *HealthHandler
	Messages  *MessagesHandler
	Dashboard *DashboardHandler
	Alerts    *AlertsHandler
	Threats   *ThreatsHandler
	MITRE     *MITREHandler
	Sources   *SourcesHandler
	Model     *ModelHandler
}

// Dependencies holds dependencies for handlers. Cache and Graph are
// optional.
type Dependencies struct {
	Store     repository.Store
	Cache     Pinger
	Graph     RelatedFinder
	Analyzer  *services.MessageAnalyzer
	Monitor   *services.MonitorService
	Alerts    *services.AlertService
	Slack     *services.SlackNotifier
	Dashboard *services.DashboardService
	MITRE     *services.MITREService
	Model     *services.ModelService
	Version   string
	Logger    *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Store, deps.Cache, deps.Version, deps.Logger),
		Messages:  NewMessagesHandler(deps.Analyzer, deps.Monitor, deps.Store, deps.Dashboard, deps.Logger),
		Dashboard: NewDashboardHandler(deps.Dashboard, deps.Logger),
		Alerts:    NewAlertsHandler(deps.Alerts, deps.Slack, deps.Logger),
		Threats:   NewThreatsHandler(deps.Store, deps.Graph, deps.Logger),
		MITRE:     NewMITREHandler(deps.MITRE, deps.Store, deps.Logger),
		Sources:   NewSourcesHandler(deps.Monitor, deps.Logger),
		Model:     NewModelHandler(deps.Model, deps.Logger),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

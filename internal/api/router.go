package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"honeyshield/internal/api/handlers"
	apimiddleware "honeyshield/internal/api/middleware"
	"honeyshield/internal/config"
	"honeyshield/internal/metrics"
	"honeyshield/internal/streaming"
	"honeyshield/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   *config.Config
	handlers *handlers.Handlers
	limiter  apimiddleware.RateLimitChecker // nil without Redis
	metrics  *metrics.Metrics
	hub      *streaming.WebSocketHub
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. limiter and hub may be nil.
func NewRouter(
	cfg *config.Config,
	h *handlers.Handlers,
	limiter apimiddleware.RateLimitChecker,
	m *metrics.Metrics,
	hub *streaming.WebSocketHub,
	log *logger.Logger,
) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		limiter:  limiter,
		metrics:  m,
		hub:      hub,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger, r.metrics))
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Public routes
	router.Group(func(pub chi.Router) {
		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)
		pub.Get("/", r.handlers.Dashboard.Page)

		if r.metrics != nil && r.config.Metrics.Enabled {
			pub.Handle(r.config.Metrics.Path, r.metrics.Handler())
		}
		// Long-lived; kept outside the request timeout.
		if r.hub != nil {
			pub.Get("/ws", r.hub.ServeWebSocket)
		}
	})

	// API v1 routes (authenticated)
	router.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(60 * time.Second))
		api.Use(apimiddleware.APIKeyAuth(r.config.Auth.APIKey))
		if r.config.RateLimit.Enabled && r.limiter != nil {
			api.Use(apimiddleware.RateLimiter(r.limiter, r.config.RateLimit, r.logger))
		}

		api.Route("/messages", func(msgs chi.Router) {
			msgs.Post("/analyze", r.handlers.Messages.Analyze)
			msgs.Post("/analyze/batch", r.handlers.Messages.AnalyzeBatch)
			msgs.Post("/", r.handlers.Messages.Ingest)
			msgs.Get("/", r.handlers.Messages.List)
			msgs.Get("/high-risk", r.handlers.Messages.HighRisk)
			msgs.Get("/{id}", r.handlers.Messages.Get)
		})

		api.Route("/dashboard", func(dash chi.Router) {
			dash.Get("/overview", r.handlers.Dashboard.Overview)
			dash.Get("/distribution", r.handlers.Dashboard.Distribution)
		})

		api.Route("/alerts", func(alerts chi.Router) {
			alerts.Get("/", r.handlers.Alerts.List)
			alerts.Post("/test-slack", r.handlers.Alerts.TestSlack)
			alerts.Get("/{alertID}", r.handlers.Alerts.Get)
			alerts.Patch("/{alertID}", r.handlers.Alerts.Update)
		})

		api.Route("/threats", func(threats chi.Router) {
			threats.Get("/", r.handlers.Threats.List)
			threats.Get("/related", r.handlers.Threats.Related)
		})

		api.Route("/mitre", func(mitre chi.Router) {
			mitre.Get("/techniques", r.handlers.MITRE.ListTechniques)
			mitre.Get("/techniques/{id}", r.handlers.MITRE.GetTechnique)
			mitre.Get("/navigator", r.handlers.MITRE.Navigator)
		})

		api.Route("/sources", func(src chi.Router) {
			src.Get("/", r.handlers.Sources.List)
			src.Post("/{slug}/poll", r.handlers.Sources.Poll)
		})
		api.Get("/monitor/stats", r.handlers.Sources.MonitorStats)

		api.Get("/model", r.handlers.Model.Info)
		api.With(apimiddleware.AdminAuth(r.config.Auth.AdminToken)).
			Post("/model/retrain", r.handlers.Model.Retrain)
	})

	return router
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"honeyshield/internal/api"
	"honeyshield/internal/api/handlers"
	apimiddleware "honeyshield/internal/api/middleware"
	"honeyshield/internal/config"
	"honeyshield/internal/detection/sigma"
	"honeyshield/internal/domain/services"
	grpchealth "honeyshield/internal/grpc/health"
	"honeyshield/internal/infrastructure/cache"
	"honeyshield/internal/infrastructure/database"
	"honeyshield/internal/infrastructure/fswatch"
	"honeyshield/internal/infrastructure/graph"
	"honeyshield/internal/metrics"
	"honeyshield/internal/sources"
	"honeyshield/internal/sources/linkedin"
	"honeyshield/internal/sources/queue"
	"honeyshield/internal/sources/twitter"
	"honeyshield/internal/streaming"
	"honeyshield/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: search ., ./config, /etc/honeyshield)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	format := cfg.Logger.Format
	if format == "" && cfg.App.IsProduction() {
		format = "json"
	}
	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     format,
		TimeFormat: cfg.Logger.TimeFormat,
		Service:    cfg.App.Name,
	})
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Str("storage", cfg.Storage.Driver).
		Msg("starting Honeyshield")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("honeyshield exited with error")
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// Infrastructure
	store, err := database.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without cache, dedupe and locks")
		} else {
			defer redisCache.Close()
		}
	}

	var threatGraph *graph.ThreatGraph
	if cfg.Neo4j.Enabled {
		neo, err := graph.NewNeo4jClient(ctx, cfg.Neo4j, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Neo4j, continuing without threat graph")
		} else {
			defer neo.Close(context.Background())
			threatGraph = graph.NewThreatGraph(neo, log)
		}
	}

	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing with local events only")
		} else {
			defer natsPublisher.Close()
		}
	}

	m := metrics.New()

	// Real-time updates
	eventBus := streaming.NewEventBus(natsPublisher, log)
	defer eventBus.Close()
	wsHub := streaming.NewWebSocketHub(cfg.CORS.AllowedOrigins, m, log)
	go wsHub.Run(ctx)
	if natsPublisher != nil {
		remote, err := natsPublisher.Subscribe(ctx, nil)
		if err != nil {
			log.Warn().Err(err).Msg("failed to subscribe to NATS, dashboards see local events only")
		} else {
			go wsHub.Relay(ctx, remote)
		}
	}
	local, unsubscribe := eventBus.Subscribe(nil)
	defer unsubscribe()
	go wsHub.Relay(ctx, local)
	publisher := streaming.NewEventBusPublisher(eventBus)

	// Detection
	lexicon, err := services.NewLexiconStore(cfg.Analysis.LexiconFile, cfg.Analysis.SuspiciousKeywords, cfg.Analysis.HighRiskPhrases, log)
	if err != nil {
		return fmt.Errorf("load lexicon: %w", err)
	}
	if cfg.Analysis.WatchLexicon && lexicon.Path() != "" {
		go func() {
			if err := fswatch.NewFile(lexicon.Path(), lexicon.Reload, log).Run(ctx); err != nil {
				log.Warn().Err(err).Msg("lexicon watcher stopped")
			}
		}()
	}

	weights := services.RuleWeights{
		Keyword:     cfg.Scoring.KeywordWeight,
		Sentiment:   cfg.Scoring.SentimentWeight,
		Escalation:  cfg.Scoring.RelationshipEscalationWeight,
		PrivateInfo: cfg.Scoring.RequestPrivateInfoWeight,
	}
	rules := services.NewRuleEngine(lexicon, weights, cfg.Scoring.MediumThreshold, cfg.Scoring.HighThreshold)

	var classifier *services.PhishingClassifier
	if cfg.ML.Enabled {
		classifier = services.NewPhishingClassifier(services.RandomForestConfig{
			NumTrees:       cfg.ML.NumTrees,
			MaxDepth:       cfg.ML.MaxDepth,
			MinSamplesLeaf: cfg.ML.MinSamplesLeaf,
			Seed:           cfg.ML.Seed,
		}, log)
		if err := classifier.EnsureModel(cfg.ML.ModelPath, cfg.ML.TrainingSize); err != nil {
			log.Warn().Err(err).Msg("phishing classifier unavailable, scoring with rules only")
			classifier = nil
		}
	}

	var sigmaEngine *sigma.Engine
	if cfg.Rules.Enabled {
		sigmaEngine, err = sigma.NewEngine(cfg.Rules.Dir, true, log)
		if err != nil {
			return fmt.Errorf("load sigma rules: %w", err)
		}
		if cfg.Rules.Watch && cfg.Rules.Dir != "" {
			go func() {
				if err := sigmaEngine.Watch(ctx); err != nil {
					log.Warn().Err(err).Msg("sigma rule watcher stopped")
				}
			}()
		}
	}

	mitre := services.NewMITREService(cfg.Scoring.MediumThreshold, cfg.Scoring.HighThreshold, log)
	analyzer := services.NewMessageAnalyzer(rules, classifier, sigmaEngine, mitre, m, log)

	// Alerting
	slack := services.NewSlackNotifier(cfg.Slack, m, log)
	slack.Start()
	defer slack.Stop()

	alerts := services.NewAlertService(store, cfg.Alerts.Threshold, m, log)
	alerts.SetNotifier(slack)
	alerts.SetEventPublisher(publisher)

	// Sources and monitor
	registry := sources.NewRegistry(log)
	registerSources(registry, cfg, redisCache, log)
	defer registry.Close()

	monitor := services.NewMonitorService(registry, analyzer, store, alerts, services.MonitorConfig{
		Interval:         cfg.Monitor.Interval,
		InitialDelay:     cfg.Monitor.InitialDelay,
		ActivityInterval: cfg.Monitor.ActivityInterval,
		LockTTL:          cfg.Monitor.LockTTL,
		SeenTTL:          cfg.Redis.SeenTTL,
		ThreatThreshold:  cfg.Scoring.MediumThreshold,
	}, m, log)
	monitor.SetEventPublisher(publisher)
	if redisCache != nil {
		monitor.SetSeenSet(redisCache)
		monitor.SetLocker(redisCache)
	}
	if threatGraph != nil {
		monitor.SetGraph(threatGraph)
	}

	modelService := services.NewModelService(classifier, cfg.ML.ModelPath, cfg.ML.TrainingSize, log)
	modelService.SetEventPublisher(publisher)

	var dashCache services.JSONCache
	if redisCache != nil {
		dashCache = redisCache
	}
	dashboard := services.NewDashboardService(store, dashCache, cfg.Scoring.HighThreshold, log)

	// HTTP
	deps := handlers.Dependencies{
		Store:     store,
		Analyzer:  analyzer,
		Monitor:   monitor,
		Alerts:    alerts,
		Slack:     slack,
		Dashboard: dashboard,
		MITRE:     mitre,
		Model:     modelService,
		Version:   cfg.App.Version,
		Logger:    log,
	}
	if redisCache != nil {
		deps.Cache = redisCache
	}
	if threatGraph != nil {
		deps.Graph = threatGraph
	}
	var limiter apimiddleware.RateLimitChecker
	if redisCache != nil {
		limiter = redisCache
	}
	router := api.NewRouter(cfg, handlers.NewHandlers(deps), limiter, m, wsHub, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// gRPC health
	grpcServer := grpc.NewServer()
	checks := []grpchealth.Check{{Name: "database", Fn: store.Ping}}
	if redisCache != nil {
		checks = append(checks, grpchealth.Check{Name: "redis", Fn: redisCache.Ping})
	}
	if threatGraph != nil {
		checks = append(checks, grpchealth.Check{Name: "neo4j", Fn: threatGraph.Health})
	}
	healthChecker := grpchealth.NewChecker(0, log, checks...)
	healthChecker.Register(grpcServer)
	go healthChecker.Run(ctx)

	errCh := make(chan error, 2)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
		if err != nil {
			errCh <- fmt.Errorf("grpc listen: %w", err)
			return
		}
		log.Info().Str("addr", cfg.Server.GRPCAddr()).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	if cfg.Monitor.Enabled {
		go func() {
			if err := monitor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("monitor stopped with error")
			}
		}()
	} else {
		log.Info().Msg("monitor loop disabled, sources poll on demand only")
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down...")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("server failed, shutting down")
	}

	monitor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	grpcServer.GracefulStop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	return runErr
}

// registerSources registers every decoy source. Disabled sources stay
// registered so their status shows up in the API.
func registerSources(registry *sources.Registry, cfg *config.Config, redisCache *cache.RedisCache, log *logger.Logger) {
	if err := registry.Register(linkedin.New(cfg.LinkedIn, log)); err != nil {
		log.Warn().Err(err).Msg("failed to register LinkedIn source")
	}
	if err := registry.Register(twitter.New(cfg.Twitter, log)); err != nil {
		log.Warn().Err(err).Msg("failed to register Twitter source")
	}

	if cfg.Queue.Enabled && redisCache == nil {
		log.Warn().Msg("queue source requires Redis, not registering it")
	} else if redisCache != nil {
		if err := registry.Register(queue.New(cfg.Queue, redisCache, log)); err != nil {
			log.Warn().Err(err).Msg("failed to register queue source")
		}
	}

	log.Info().
		Int("total", registry.Count()).
		Int("enabled", registry.CountEnabled()).
		Msg("registered sources")
}

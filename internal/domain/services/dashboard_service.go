package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"honeyshield/internal/domain/models"
	"honeyshield/internal/infrastructure/cache"
	"honeyshield/pkg/logger"
)

// DashboardCacheTTL bounds how stale the overview numbers may be.
const DashboardCacheTTL = 30 * time.Second

const (
	recentMessagesLimit = 20
	highRiskLimit       = 10
	recentAlertsLimit   = 10
	topTechniquesLimit  = 10
)

// DashboardStore is the read side the dashboard needs.
type DashboardStore interface {
	Stats(ctx context.Context) (*models.DashboardStats, error)
	RiskDistribution(ctx context.Context) ([]models.RiskBucket, error)
	TechniqueCounts(ctx context.Context) ([]models.TechniqueCount, error)
	RecentMessages(ctx context.Context, limit int) ([]*models.Message, error)
	HighRiskMessages(ctx context.Context, minScore, limit int) ([]*models.Message, error)
	RecentAlerts(ctx context.Context, f models.AlertFilter) ([]*models.Alert, error)
}

// JSONCache is the read-through cache used for dashboard aggregates.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// DashboardService assembles the dashboard views.
type DashboardService struct {
	store         DashboardStore
	cache         JSONCache // optional
	highThreshold int
	logger        *logger.Logger
}

// NewDashboardService creates the dashboard service. cache may be nil.
func NewDashboardService(store DashboardStore, c JSONCache, highThreshold int, log *logger.Logger) *DashboardService {
	if highThreshold <= 0 {
		highThreshold = 70
	}
	return &DashboardService{
		store:         store,
		cache:         c,
		highThreshold: highThreshold,
		logger:        log.WithComponent("dashboard"),
	}
}

// cached loads key from the cache or computes and stores it.
func cached[T any](ctx context.Context, s *DashboardService, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	if s.cache != nil {
		err := s.cache.GetJSON(ctx, key, &v)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Debug().Err(err).Str("key", key).Msg("dashboard cache read failed")
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, v, DashboardCacheTTL); err != nil {
			s.logger.Debug().Err(err).Str("key", key).Msg("dashboard cache write failed")
		}
	}
	return v, nil
}

// Stats returns the headline counters.
func (s *DashboardService) Stats(ctx context.Context) (*models.DashboardStats, error) {
	return cached(ctx, s, cache.KeyDashboardStats, s.store.Stats)
}

// Distribution returns message counts per risk level.
func (s *DashboardService) Distribution(ctx context.Context) ([]models.RiskBucket, error) {
	return cached(ctx, s, cache.KeyDashboardDist, s.store.RiskDistribution)
}

// RecentMessages returns the newest messages.
func (s *DashboardService) RecentMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = recentMessagesLimit
	}
	return s.store.RecentMessages(ctx, limit)
}

// HighRiskMessages returns the newest messages at or above the high
// threshold.
func (s *DashboardService) HighRiskMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = highRiskLimit
	}
	return s.store.HighRiskMessages(ctx, s.highThreshold, limit)
}

// TopTechniques returns the most frequently mapped techniques.
func (s *DashboardService) TopTechniques(ctx context.Context, limit int) ([]models.TechniqueCount, error) {
	counts, err := s.store.TechniqueCounts(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}

// Overview bundles every dashboard panel.
func (s *DashboardService) Overview(ctx context.Context) (*models.DashboardOverview, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	dist, err := s.Distribution(ctx)
	if err != nil {
		return nil, fmt.Errorf("risk distribution: %w", err)
	}
	recent, err := s.RecentMessages(ctx, recentMessagesLimit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	high, err := s.HighRiskMessages(ctx, highRiskLimit)
	if err != nil {
		return nil, fmt.Errorf("high risk messages: %w", err)
	}
	alerts, err := s.store.RecentAlerts(ctx, models.AlertFilter{Limit: recentAlertsLimit})
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	top, err := s.TopTechniques(ctx, topTechniquesLimit)
	if err != nil {
		return nil, fmt.Errorf("techniques: %w", err)
	}

	return &models.DashboardOverview{
		Stats:          stats,
		Distribution:   dist,
		RecentMessages: recent,
		HighRisk:       high,
		RecentAlerts:   alerts,
		TopTechniques:  top,
	}, nil
}

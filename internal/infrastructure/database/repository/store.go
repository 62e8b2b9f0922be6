package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"honeyshield/internal/domain/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a message fingerprint is already stored.
	ErrDuplicate = errors.New("duplicate message")
)

// Store is the persistence surface the services depend on. Postgres and
// SQLite both implement it.
type Store interface {
	SaveMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	RecentMessages(ctx context.Context, limit int) ([]*models.Message, error)
	HighRiskMessages(ctx context.Context, minScore, limit int) ([]*models.Message, error)

	UpsertThreat(ctx context.Context, u models.ThreatUpdate) (*models.Threat, error)
	GetThreat(ctx context.Context, profileURL string) (*models.Threat, error)
	ListThreats(ctx context.Context, limit int) ([]*models.Threat, error)

	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)
	RecentAlerts(ctx context.Context, f models.AlertFilter) ([]*models.Alert, error)
	UpdateAlertStatus(ctx context.Context, alertID string, u models.AlertUpdate, at time.Time) (*models.Alert, error)
	AlertStats(ctx context.Context) (*models.AlertStats, error)

	Stats(ctx context.Context) (*models.DashboardStats, error)
	RiskDistribution(ctx context.Context) ([]models.RiskBucket, error)
	TechniqueCounts(ctx context.Context) ([]models.TechniqueCount, error)

	Ping(ctx context.Context) error
	Close() error
}

const (
	defaultLimit = 20
	maxLimit     = 500
)

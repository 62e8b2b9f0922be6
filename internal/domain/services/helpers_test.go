package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"honeyshield/internal/config"
	"honeyshield/internal/domain/models"
	"honeyshield/internal/infrastructure/database"
	"honeyshield/internal/infrastructure/database/repository"
	"honeyshield/pkg/logger"
)

func newTestStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "honeyshield.db")}, logger.Nop())
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewSQLiteStore(db.DB())
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*models.Message
	alerts   []*models.Alert
	updates  []*models.Alert
	polls    []models.CycleResult
	models   []models.ModelInfo
}

func (p *recordingPublisher) PublishMessage(_ context.Context, m *models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, m)
	return nil
}

func (p *recordingPublisher) PublishAlert(_ context.Context, a *models.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *recordingPublisher) PublishAlertUpdate(_ context.Context, a *models.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, a)
	return nil
}

func (p *recordingPublisher) PublishSourcePolled(_ context.Context, r models.CycleResult, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls = append(p.polls, r)
	return nil
}

func (p *recordingPublisher) PublishModelRetrained(_ context.Context, info models.ModelInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.models = append(p.models, info)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	enabled bool
	alerts  []*models.Alert
}

func (n *recordingNotifier) Enabled() bool { return n.enabled }

func (n *recordingNotifier) Notify(a *models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

package services

import (
	"context"
	"time"

	"honeyshield/internal/domain/models"
)

// EventPublisher pushes real-time updates to dashboards and other instances.
type EventPublisher interface {
	PublishMessage(ctx context.Context, m *models.Message) error
	PublishAlert(ctx context.Context, a *models.Alert) error
	PublishAlertUpdate(ctx context.Context, a *models.Alert) error
	PublishSourcePolled(ctx context.Context, r models.CycleResult, d time.Duration) error
	PublishModelRetrained(ctx context.Context, info models.ModelInfo) error
}

// AlertNotifier delivers alerts to an out-of-band channel such as Slack.
type AlertNotifier interface {
	Enabled() bool
	Notify(a *models.Alert) error
}

package streaming

import (
	"context"
	"time"

	"honeyshield/internal/domain/models"
)

// EventBusPublisher turns domain objects into events on the bus. It
// satisfies services.EventPublisher.
type EventBusPublisher struct {
	bus *EventBus
}

func NewEventBusPublisher(bus *EventBus) *EventBusPublisher {
	return &EventBusPublisher{bus: bus}
}

func (p *EventBusPublisher) publish(ctx context.Context, event *Event) error {
	return p.bus.Publish(ctx, event)
}

// PublishMessage announces a stored, analyzed message.
func (p *EventBusPublisher) PublishMessage(ctx context.Context, m *models.Message) error {
	return p.publish(ctx, NewMessageEvent(m))
}

// PublishAlert announces a new alert.
func (p *EventBusPublisher) PublishAlert(ctx context.Context, a *models.Alert) error {
	return p.publish(ctx, NewAlertEvent(EventTypeAlertCreated, a))
}

// PublishAlertUpdate announces an analyst status change.
func (p *EventBusPublisher) PublishAlertUpdate(ctx context.Context, a *models.Alert) error {
	return p.publish(ctx, NewAlertEvent(EventTypeAlertUpdated, a))
}

// PublishSourcePolled announces a finished source poll.
func (p *EventBusPublisher) PublishSourcePolled(ctx context.Context, r models.CycleResult, d time.Duration) error {
	return p.publish(ctx, NewSourcePolledEvent(r, d))
}

// PublishModelRetrained announces a retrained classifier.
func (p *EventBusPublisher) PublishModelRetrained(ctx context.Context, info models.ModelInfo) error {
	return p.publish(ctx, NewModelEvent(info))
}

// Package queue reads messages pushed onto a Redis list by external scrapers
// or manual injection.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"honeyshield/internal/config"
	"honeyshield/internal/domain/models"
	"honeyshield/internal/sources"
	"honeyshield/pkg/logger"
)

const slug = "queue"

// DeadLetterSuffix names the list that receives messages which kept failing.
const DeadLetterSuffix = ":dead"

// Store pops raw payloads from a named queue and pushes them back.
type Store interface {
	PopQueue(ctx context.Context, queue string, max int, block time.Duration) ([][]byte, error)
	PushQueue(ctx context.Context, queue string, payloads ...[]byte) error
}

// Source drains the inbox queue on every poll.
type Source struct {
	*sources.BaseSource
	store       Store
	key         string
	block       time.Duration
	maxAttempts int
	logger      *logger.Logger
}

// New creates the queue source.
func New(cfg config.QueueConfig, store Store, log *logger.Logger) *Source {
	if cfg.Key == "" {
		cfg.Key = "inbox"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	s := &Source{
		BaseSource:  sources.NewBaseSource(slug, "Redis Inbox Queue", models.PlatformManual),
		store:       store,
		key:         cfg.Key,
		block:       cfg.BlockTimeout,
		maxAttempts: cfg.MaxAttempts,
		logger:      log.WithSource(slug),
	}
	_ = s.Configure(sources.SourceConfig{
		Enabled:      cfg.Enabled,
		PollInterval: cfg.PollInterval,
		MaxMessages:  cfg.BatchSize,
	})
	return s
}

// Fetch pops up to one batch of payloads. Malformed payloads are dropped.
// Payloads that were popped before an error are still returned with it.
func (s *Source) Fetch(ctx context.Context) ([]*models.InboundMessage, error) {
	payloads, popErr := s.store.PopQueue(ctx, s.key, s.Config().MaxMessages, s.block)

	out := make([]*models.InboundMessage, 0, len(payloads))
	for _, p := range payloads {
		msg, err := Decode(p)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed queue payload")
			continue
		}
		out = append(out, msg)
	}
	if popErr != nil {
		return out, fmt.Errorf("pop queue %s: %w", s.key, popErr)
	}
	return out, nil
}

// Requeue pushes messages back onto the queue with their attempt count
// raised. Messages that reach the attempt limit go to the dead-letter list.
func (s *Source) Requeue(ctx context.Context, msgs ...*models.InboundMessage) error {
	var retry, dead [][]byte
	for _, m := range msgs {
		if m == nil {
			continue
		}
		cp := *m
		cp.Attempts++
		payload, err := Encode(&cp)
		if err != nil {
			return err
		}
		if cp.Attempts >= s.maxAttempts {
			dead = append(dead, payload)
			continue
		}
		retry = append(retry, payload)
	}

	if err := s.store.PushQueue(ctx, s.key, retry...); err != nil {
		return fmt.Errorf("requeue %d messages: %w", len(retry), err)
	}
	if len(dead) > 0 {
		if err := s.store.PushQueue(ctx, s.key+DeadLetterSuffix, dead...); err != nil {
			return fmt.Errorf("dead-letter %d messages: %w", len(dead), err)
		}
		s.logger.Warn().Int("count", len(dead)).Str("queue", s.key+DeadLetterSuffix).Msg("messages moved to dead-letter queue")
	}
	return nil
}

// Decode parses one queued message. Platform defaults to manual and the
// receive time to now.
func Decode(payload []byte) (*models.InboundMessage, error) {
	var msg models.InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.Content == "" {
		return nil, fmt.Errorf("message has no content")
	}
	if msg.SenderName == "" {
		msg.SenderName = "Unknown"
	}
	if msg.Platform == "" {
		msg.Platform = models.PlatformManual
	}
	if msg.SourceSlug == "" {
		msg.SourceSlug = slug
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	return &msg, nil
}

// Encode renders a message the way Decode expects it.
func Encode(msg *models.InboundMessage) ([]byte, error) {
	return json.Marshal(msg)
}

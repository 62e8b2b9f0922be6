package sources

import (
	"context"
	"time"

	"honeyshield/internal/domain/models"
)

// Source delivers inbound messages addressed to a decoy profile.
type Source interface {
	// Slug returns the unique identifier for this source
	Slug() string

	// Name returns the human-readable name of this source
	Name() string

	// Platform returns the social network the decoy lives on
	Platform() models.Platform

	// Fetch returns the messages currently visible to the decoy
	Fetch(ctx context.Context) ([]*models.InboundMessage, error)

	// IsEnabled returns whether this source is enabled
	IsEnabled() bool

	// PollInterval returns how often this source should be polled
	PollInterval() time.Duration

	// Configure configures the source with the given config
	Configure(cfg SourceConfig) error

	// Close releases browser sessions and connections
	Close() error
}

// ActivityMaintainer is implemented by sources whose decoy profile should
// look alive between polls.
type ActivityMaintainer interface {
	MaintainActivity(ctx context.Context) error
}

// Requeuer is implemented by sources whose Fetch is destructive. Messages
// that failed processing are handed back so a later poll retries them.
type Requeuer interface {
	Requeue(ctx context.Context, msgs ...*models.InboundMessage) error
}

// SourceConfig holds configuration shared by all sources
type SourceConfig struct {
	Enabled      bool          `json:"enabled"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxMessages  int           `json:"max_messages,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
}

// DefaultConfig returns default source configuration
func DefaultConfig() SourceConfig {
	return SourceConfig{
		Enabled:      true,
		PollInterval: 5 * time.Minute,
		MaxMessages:  10,
		Timeout:      2 * time.Minute,
	}
}

// BaseSource provides common functionality for sources
type BaseSource struct {
	slug     string
	name     string
	platform models.Platform
	config   SourceConfig
}

// NewBaseSource creates a new base source
func NewBaseSource(slug, name string, platform models.Platform) *BaseSource {
	return &BaseSource{
		slug:     slug,
		name:     name,
		platform: platform,
		config:   DefaultConfig(),
	}
}

func (s *BaseSource) Slug() string { return s.slug }

func (s *BaseSource) Name() string { return s.name }

func (s *BaseSource) Platform() models.Platform { return s.platform }

func (s *BaseSource) IsEnabled() bool { return s.config.Enabled }

// PollInterval falls back to the default when unset.
func (s *BaseSource) PollInterval() time.Duration {
	if s.config.PollInterval <= 0 {
		return DefaultConfig().PollInterval
	}
	return s.config.PollInterval
}

// Configure replaces the configuration, keeping defaults for zero values.
func (s *BaseSource) Configure(cfg SourceConfig) error {
	def := DefaultConfig()
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	s.config = cfg
	return nil
}

// Config returns the current configuration
func (s *BaseSource) Config() SourceConfig {
	return s.config
}

// Close is a no-op for sources without resources.
func (s *BaseSource) Close() error { return nil }

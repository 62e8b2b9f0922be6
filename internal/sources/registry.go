package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrSourceDisabled = errors.New("source is disabled")
)

// Registry manages all message sources and their poll status
type Registry struct {
	sources map[string]Source
	status  map[string]*models.SourceStatus
	mu      sync.RWMutex
	logger  *logger.Logger
}

// NewRegistry creates a new source registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		sources: make(map[string]Source),
		status:  make(map[string]*models.SourceStatus),
		logger:  log.WithComponent("source-registry"),
	}
}

// Register registers a source
func (r *Registry) Register(src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slug := src.Slug()
	if _, exists := r.sources[slug]; exists {
		return fmt.Errorf("source already registered: %s", slug)
	}

	r.sources[slug] = src
	r.status[slug] = &models.SourceStatus{Slug: slug, Name: src.Name(), Platform: src.Platform()}
	r.logger.Info().
		Str("slug", slug).
		Str("name", src.Name()).
		Str("platform", string(src.Platform())).
		Bool("enabled", src.IsEnabled()).
		Msg("registered source")

	return nil
}

// Get returns a source by slug
func (r *Registry) Get(slug string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[slug]
	return src, ok
}

// List returns all registered sources ordered by slug
func (r *Registry) List() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug() < out[j].Slug() })
	return out
}

// ListEnabled returns all enabled sources ordered by slug
func (r *Registry) ListEnabled() []Source {
	all := r.List()
	out := all[:0]
	for _, src := range all {
		if src.IsEnabled() {
			out = append(out, src)
		}
	}
	return out
}

// Count returns the number of registered sources
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// CountEnabled returns the number of enabled sources
func (r *Registry) CountEnabled() int {
	return len(r.ListEnabled())
}

// Fetch polls one source and records the outcome.
func (r *Registry) Fetch(ctx context.Context, slug string) ([]*models.InboundMessage, error) {
	src, ok := r.Get(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, slug)
	}
	if !src.IsEnabled() {
		return nil, fmt.Errorf("%w: %s", ErrSourceDisabled, slug)
	}

	msgs, err := src.Fetch(ctx)
	r.record(slug, len(msgs), err)
	return msgs, err
}

func (r *Registry) record(slug string, n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.status[slug]
	if !ok {
		return
	}
	now := time.Now().UTC()
	st.LastPoll = now
	st.PollCount++
	if err != nil {
		st.LastError = err.Error()
		return
	}
	st.LastError = ""
	st.LastSuccess = now
	st.MessagesSeen += int64(n)
}

// Status returns a snapshot of every source's poll status
func (r *Registry) Status() []models.SourceStatus {
	srcs := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.SourceStatus, 0, len(srcs))
	for _, src := range srcs {
		st := *r.status[src.Slug()]
		st.Enabled = src.IsEnabled()
		st.PollInterval = src.PollInterval()
		out = append(out, st)
	}
	return out
}

// Close closes every source, returning the first error.
func (r *Registry) Close() error {
	var first error
	for _, src := range r.List() {
		if err := src.Close(); err != nil {
			r.logger.Warn().Err(err).Str("slug", src.Slug()).Msg("failed to close source")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

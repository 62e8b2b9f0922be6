package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"honeyshield/internal/domain/models"
	"honeyshield/internal/infrastructure/database/repository"
	"honeyshield/internal/metrics"
	"honeyshield/internal/sources"
	"honeyshield/pkg/logger"
)

// MessageStore is the persistence the monitor needs.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *models.Message) error
	UpsertThreat(ctx context.Context, u models.ThreatUpdate) (*models.Threat, error)
}

// SeenSet remembers message fingerprints across polls and instances.
type SeenSet interface {
	MarkSeen(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, fingerprint string) error
}

// Locker serializes work across instances.
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, func(), error)
}

// ThreatGraph records sender relationships.
type ThreatGraph interface {
	RecordMessage(ctx context.Context, m *models.Message) error
}

// MonitorConfig controls the monitoring loop.
type MonitorConfig struct {
	Interval         time.Duration
	InitialDelay     time.Duration
	ActivityInterval time.Duration
	LockTTL          time.Duration
	SeenTTL          time.Duration
	ThreatThreshold  int
}

func (c *MonitorConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	if c.SeenTTL <= 0 {
		c.SeenTTL = 30 * 24 * time.Hour
	}
	if c.ThreatThreshold <= 0 {
		c.ThreatThreshold = DefaultAlertThreshold
	}
}

// ProcessResult is the outcome of ingesting one message.
type ProcessResult struct {
	Message   *models.Message         `json:"message,omitempty"`
	Analysis  *models.MessageAnalysis `json:"analysis,omitempty"`
	Alert     *models.Alert           `json:"alert,omitempty"`
	Duplicate bool                    `json:"duplicate"`
}

// MonitorService polls decoy sources and runs every new message through
// analysis, persistence and alerting.
type MonitorService struct {
	registry  *sources.Registry
	analyzer  *MessageAnalyzer
	store     MessageStore
	alerts    *AlertService
	seen      SeenSet        // optional
	locker    Locker         // optional
	graph     ThreatGraph    // optional
	publisher EventPublisher // optional
	metrics   *metrics.Metrics
	config    MonitorConfig
	logger    *logger.Logger

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	lastPoll map[string]time.Time
	stats    models.MonitorStats
}

// NewMonitorService creates the monitor.
func NewMonitorService(
	registry *sources.Registry,
	analyzer *MessageAnalyzer,
	store MessageStore,
	alerts *AlertService,
	cfg MonitorConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) *MonitorService {
	cfg.applyDefaults()
	return &MonitorService{
		registry: registry,
		analyzer: analyzer,
		store:    store,
		alerts:   alerts,
		metrics:  m,
		config:   cfg,
		logger:   log.WithComponent("monitor"),
		stopCh:   make(chan struct{}),
		lastPoll: make(map[string]time.Time),
	}
}

// SetSeenSet enables fingerprint de-duplication before analysis.
func (s *MonitorService) SetSeenSet(seen SeenSet) { s.seen = seen }

// SetLocker enables cross-instance locking of source polls.
func (s *MonitorService) SetLocker(l Locker) { s.locker = l }

// SetGraph enables the relationship graph.
func (s *MonitorService) SetGraph(g ThreatGraph) { s.graph = g }

// SetEventPublisher sets the event publisher for real-time updates
func (s *MonitorService) SetEventPublisher(p EventPublisher) { s.publisher = p }

// Start runs the polling and activity loops until ctx is done or Stop is
// called.
func (s *MonitorService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.stats.Running = true
	s.mu.Unlock()

	tick := s.tickInterval()
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("tick", tick).
		Int("sources", s.registry.CountEnabled()).
		Msg("monitor started")

	if s.config.ActivityInterval > 0 {
		go s.activityLoop(ctx, stopCh)
	}

	if s.config.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-time.After(s.config.InitialDelay):
		}
	}
	s.runDue(ctx)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// Stop stops the monitor
func (s *MonitorService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.stats.Running = false
	close(s.stopCh)
	s.logger.Info().Msg("monitor stopped")
}

// tickInterval is the shortest poll interval among enabled sources, capped
// by the configured interval.
func (s *MonitorService) tickInterval() time.Duration {
	tick := s.config.Interval
	for _, src := range s.registry.ListEnabled() {
		if iv := src.PollInterval(); iv > 0 && iv < tick {
			tick = iv
		}
	}
	return tick
}

func (s *MonitorService) interval(src sources.Source) time.Duration {
	if iv := src.PollInterval(); iv > 0 {
		return iv
	}
	return s.config.Interval
}

// runDue polls every enabled source whose interval has elapsed.
func (s *MonitorService) runDue(ctx context.Context) {
	now := time.Now()
	var results []models.CycleResult
	for _, src := range s.registry.ListEnabled() {
		s.mu.RLock()
		last := s.lastPoll[src.Slug()]
		s.mu.RUnlock()
		if !last.IsZero() && now.Sub(last) < s.interval(src) {
			continue
		}
		res, _ := s.PollSource(ctx, src.Slug())
		results = append(results, res)
	}
	if len(results) > 0 {
		s.finishCycle(now, results)
	}
}

// RunOnce polls every enabled source immediately.
func (s *MonitorService) RunOnce(ctx context.Context) ([]models.CycleResult, error) {
	start := time.Now()
	var (
		results []models.CycleResult
		errs    []error
	)
	for _, src := range s.registry.ListEnabled() {
		res, err := s.PollSource(ctx, src.Slug())
		results = append(results, res)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Slug(), err))
		}
	}
	s.finishCycle(start, results)
	return results, errors.Join(errs...)
}

func (s *MonitorService) finishCycle(start time.Time, results []models.CycleResult) {
	var cycleErr error
	s.mu.Lock()
	s.stats.Cycles++
	s.stats.LastCycleAt = start.UTC()
	s.stats.LastCycleDuration = time.Since(start).Round(time.Millisecond).String()
	for _, r := range results {
		if r.Error != "" {
			s.stats.LastError = r.Source + ": " + r.Error
			cycleErr = errors.New(r.Error)
		}
	}
	s.mu.Unlock()
	s.metrics.MonitorCycle(cycleErr)
}

// PollSource fetches and processes one source. The poll is skipped when
// another instance holds the source lock.
func (s *MonitorService) PollSource(ctx context.Context, slug string) (models.CycleResult, error) {
	res := models.CycleResult{Source: slug}
	log := s.logger.WithSource(slug)

	src, ok := s.registry.Get(slug)
	if !ok {
		res.Error = sources.ErrSourceNotFound.Error()
		return res, fmt.Errorf("%w: %s", sources.ErrSourceNotFound, slug)
	}

	if s.locker != nil {
		acquired, release, err := s.locker.AcquireLock(ctx, "poll:"+slug, s.config.LockTTL)
		if err != nil {
			log.Warn().Err(err).Msg("lock unavailable, polling without it")
		} else if !acquired {
			log.Info().Msg("source locked by another instance, skipping")
			res.Skipped = true
			return res, nil
		}
		defer release()
	}

	start := time.Now()
	s.mu.Lock()
	s.lastPoll[slug] = start
	s.mu.Unlock()

	msgs, fetchErr := s.registry.Fetch(ctx, slug)
	s.metrics.SourcePolled(slug, len(msgs), fetchErr)
	res.Fetched = len(msgs)
	if fetchErr != nil {
		res.Error = fetchErr.Error()
		log.Error().Err(fetchErr).Int("fetched", len(msgs)).Msg("failed to fetch messages")
		if len(msgs) == 0 {
			s.publishPoll(ctx, res, time.Since(start))
			return res, fetchErr
		}
	}

	var failed []*models.InboundMessage
	for i, in := range msgs {
		if ctx.Err() != nil {
			failed = append(failed, msgs[i:]...)
			break
		}
		pr, err := s.ProcessMessage(ctx, in)
		if err != nil {
			if !errors.Is(err, ErrEmptyMessage) {
				log.Warn().Err(err).Str("sender", in.SenderName).Msg("failed to process message")
				failed = append(failed, in)
			}
			continue
		}
		if pr.Duplicate {
			res.Duplicates++
			continue
		}
		res.Processed++
		if pr.Alert != nil {
			res.AlertsCreated++
		}
	}

	if len(failed) > 0 {
		res.Requeued = s.requeue(ctx, src, failed)
	}

	s.mu.Lock()
	s.stats.MessagesFetched += int64(res.Fetched)
	s.mu.Unlock()

	log.Info().
		Int("fetched", res.Fetched).
		Int("processed", res.Processed).
		Int("duplicates", res.Duplicates).
		Int("requeued", res.Requeued).
		Int("alerts", res.AlertsCreated).
		Dur("duration", time.Since(start)).
		Msg("source polled")

	s.publishPoll(ctx, res, time.Since(start))
	return res, fetchErr
}

// requeue hands unprocessed messages back to sources that consumed them
// destructively. Sources that re-read on every poll need nothing.
func (s *MonitorService) requeue(ctx context.Context, src sources.Source, msgs []*models.InboundMessage) int {
	rq, ok := src.(sources.Requeuer)
	if !ok {
		return 0
	}
	// The poll context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := rq.Requeue(ctx, msgs...); err != nil {
		s.logger.WithSource(src.Slug()).Error().Err(err).Int("count", len(msgs)).Msg("failed to requeue messages")
		return 0
	}
	return len(msgs)
}

func (s *MonitorService) publishPoll(ctx context.Context, res models.CycleResult, d time.Duration) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSourcePolled(ctx, res, d); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish poll event")
	}
}

// ProcessMessage de-duplicates, analyzes, stores and alerts on one message.
func (s *MonitorService) ProcessMessage(ctx context.Context, in *models.InboundMessage) (*ProcessResult, error) {
	fp := in.Fingerprint()

	if s.seen != nil {
		first, err := s.seen.MarkSeen(ctx, fp, s.config.SeenTTL)
		if err != nil {
			s.logger.Warn().Err(err).Msg("seen-set unavailable, relying on store")
		} else if !first {
			s.duplicate()
			return &ProcessResult{Duplicate: true}, nil
		}
	}

	analysis, err := s.analyzer.Analyze(ctx, in)
	if err != nil {
		s.forget(ctx, fp)
		return nil, err
	}

	msg := models.NewMessage(in, analysis)
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.duplicate()
			return &ProcessResult{Duplicate: true, Analysis: analysis}, nil
		}
		s.forget(ctx, fp)
		return nil, fmt.Errorf("save message: %w", err)
	}

	result := &ProcessResult{Message: msg, Analysis: analysis}

	if msg.RiskScore >= s.config.ThreatThreshold {
		if _, err := s.store.UpsertThreat(ctx, models.ThreatUpdate{
			SenderProfileURL: in.SenderKey(),
			SenderName:       in.SenderName,
			Platform:         in.Platform,
			RiskScore:        msg.RiskScore,
			Techniques:       msg.MITRETechniques,
			ObservedAt:       msg.ReceivedAt,
		}); err != nil {
			s.logger.Warn().Err(err).Str("sender", in.SenderName).Msg("failed to update threat actor")
		}
		if s.graph != nil {
			if err := s.graph.RecordMessage(ctx, msg); err != nil {
				s.logger.Warn().Err(err).Msg("failed to update threat graph")
			}
		}
	}

	if s.alerts != nil {
		id := msg.ID
		alert, err := s.alerts.ProcessAnalysis(ctx, analysis, &id)
		if err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to create alert")
		}
		result.Alert = alert
	}

	if s.publisher != nil {
		if err := s.publisher.PublishMessage(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish message event")
		}
	}

	s.mu.Lock()
	s.stats.MessagesProcessed++
	if result.Alert != nil {
		s.stats.AlertsCreated++
	}
	s.mu.Unlock()

	s.logger.Debug().
		Str("message_id", msg.ID.String()).
		Int("risk_score", msg.RiskScore).
		Str("risk_level", string(msg.RiskLevel)).
		Msg("message processed")

	return result, nil
}

func (s *MonitorService) duplicate() {
	s.metrics.DuplicateSkipped()
	s.mu.Lock()
	s.stats.Duplicates++
	s.mu.Unlock()
}

func (s *MonitorService) forget(ctx context.Context, fp string) {
	if s.seen == nil {
		return
	}
	if err := s.seen.Forget(ctx, fp); err != nil {
		s.logger.Debug().Err(err).Msg("failed to forget fingerprint")
	}
}

func (s *MonitorService) activityLoop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.config.ActivityInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.MaintainActivity(ctx)
		}
	}
}

// MaintainActivity lets every source that supports it act on its decoy
// profile so the account does not look dormant.
func (s *MonitorService) MaintainActivity(ctx context.Context) {
	for _, src := range s.registry.ListEnabled() {
		if am, ok := src.(sources.ActivityMaintainer); ok {
			s.maintain(ctx, src.Slug(), am)
		}
	}
}

func (s *MonitorService) maintain(ctx context.Context, slug string, am sources.ActivityMaintainer) {
	log := s.logger.WithSource(slug)
	if s.locker != nil {
		// Shares the poll lock: one browser session per decoy.
		acquired, release, err := s.locker.AcquireLock(ctx, "poll:"+slug, s.config.LockTTL)
		if err == nil && !acquired {
			return
		}
		defer release()
	}
	if err := am.MaintainActivity(ctx); err != nil {
		log.Warn().Err(err).Msg("activity maintenance failed")
		return
	}
	log.Debug().Msg("activity maintained")
}

// Stats returns monitor statistics
func (s *MonitorService) Stats() models.MonitorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Sources reports the status of every registered source.
func (s *MonitorService) Sources() []models.SourceStatus {
	return s.registry.Status()
}

// Ingest processes a message pushed through the API.
func (s *MonitorService) Ingest(ctx context.Context, req *models.AnalyzeRequest) (*ProcessResult, error) {
	in := req.ToInbound()
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = time.Now().UTC()
	}
	return s.ProcessMessage(ctx, in)
}

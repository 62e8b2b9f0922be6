package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"honeyshield/internal/domain/models"
	"honeyshield/internal/metrics"
	"honeyshield/pkg/logger"
)

// DefaultAlertThreshold is the final score at which a message raises an alert.
const DefaultAlertThreshold = 40

// ErrInvalidStatus is returned for unknown alert statuses.
var ErrInvalidStatus = errors.New("invalid alert status")

// AlertStore is the persistence the alert service needs.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)
	RecentAlerts(ctx context.Context, f models.AlertFilter) ([]*models.Alert, error)
	UpdateAlertStatus(ctx context.Context, alertID string, u models.AlertUpdate, at time.Time) (*models.Alert, error)
	AlertStats(ctx context.Context) (*models.AlertStats, error)
}

// AlertService raises, lists and triages security alerts.
type AlertService struct {
	store     AlertStore
	notifier  AlertNotifier  // optional
	publisher EventPublisher // optional
	metrics   *metrics.Metrics
	threshold int
	logger    *logger.Logger
	now       func() time.Time
}

// NewAlertService creates the alert service. A threshold <= 0 uses
// DefaultAlertThreshold.
func NewAlertService(store AlertStore, threshold int, m *metrics.Metrics, log *logger.Logger) *AlertService {
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}
	return &AlertService{
		store:     store,
		metrics:   m,
		threshold: threshold,
		logger:    log.WithComponent("alerts"),
		now:       time.Now,
	}
}

// SetNotifier sets the out-of-band notifier.
func (s *AlertService) SetNotifier(n AlertNotifier) {
	s.notifier = n
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *AlertService) SetEventPublisher(p EventPublisher) {
	s.publisher = p
}

// Threshold returns the alerting threshold.
func (s *AlertService) Threshold() int {
	return s.threshold
}

// BuildAlert converts an analysis into an unsaved alert.
func (s *AlertService) BuildAlert(a *models.MessageAnalysis, messageID *uuid.UUID) *models.Alert {
	msg := a.Message
	return &models.Alert{
		ID:                uuid.New(),
		AlertID:           models.NewAlertID(),
		CreatedAt:         s.now().UTC(),
		Severity:          a.Severity,
		Status:            models.AlertStatusOpen,
		SourcePlatform:    msg.Platform.DisplayName(),
		SenderName:        msg.SenderName,
		SenderProfile:     msg.SenderProfileURL,
		MessageID:         messageID,
		MessageContent:    msg.Content,
		RiskScore:         a.FinalScore,
		ThreatType:        a.ThreatType(),
		Indicators:        models.JoinOr(a.Indicators(), ", ", "None"),
		MITRETechniques:   techniqueIDs(a.Techniques),
		RecommendedAction: a.RecommendedAction,
		MLConfidence:      a.Confidence(),
	}
}

func techniqueIDs(refs []models.TechniqueRef) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	return ids
}

// CreateAlert persists an alert for the analysis, publishes it and queues
// a notification.
func (s *AlertService) CreateAlert(ctx context.Context, a *models.MessageAnalysis, messageID *uuid.UUID) (*models.Alert, error) {
	if a == nil || a.Message == nil {
		return nil, fmt.Errorf("create alert: missing analysis")
	}
	alert := s.BuildAlert(a, messageID)
	if err := s.store.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}

	s.metrics.AlertCreated(string(alert.Severity))
	s.logger.WithAlert(alert.AlertID).Info().
		Str("severity", string(alert.Severity)).
		Int("risk_score", alert.RiskScore).
		Str("sender", alert.SenderName).
		Msg("new alert created")

	if s.publisher != nil {
		if err := s.publisher.PublishAlert(ctx, alert); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", alert.AlertID).Msg("failed to publish alert event")
		}
	}
	if s.notifier != nil && s.notifier.Enabled() {
		if err := s.notifier.Notify(alert); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", alert.AlertID).Msg("failed to queue alert notification")
		}
	}
	return alert, nil
}

// ProcessAnalysis raises an alert when the final score reaches the
// threshold. It returns nil without error otherwise.
func (s *AlertService) ProcessAnalysis(ctx context.Context, a *models.MessageAnalysis, messageID *uuid.UUID) (*models.Alert, error) {
	if a == nil || a.FinalScore < s.threshold {
		return nil, nil
	}
	return s.CreateAlert(ctx, a, messageID)
}

// MaxAlertHours bounds the look-back window of RecentAlerts.
const MaxAlertHours = 24 * 365

// ClampAlertHours maps a requested look-back window onto 1..MaxAlertHours.
// hours <= 0 defaults to 24.
func ClampAlertHours(hours int) int {
	switch {
	case hours <= 0:
		return 24
	case hours > MaxAlertHours:
		return MaxAlertHours
	}
	return hours
}

// RecentAlerts lists alerts from the last hours, optionally of one severity.
func (s *AlertService) RecentAlerts(ctx context.Context, hours int, severity models.Severity, limit int) ([]*models.Alert, error) {
	hours = ClampAlertHours(hours)
	return s.store.RecentAlerts(ctx, models.AlertFilter{
		Since:    s.now().UTC().Add(-time.Duration(hours) * time.Hour),
		Severity: severity,
		Limit:    limit,
	})
}

// GetAlert returns one alert by its ALT- id.
func (s *AlertService) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return s.store.GetAlert(ctx, alertID)
}

// UpdateStatus records an analyst decision. Resolved and false-positive
// alerts get a resolution time.
func (s *AlertService) UpdateStatus(ctx context.Context, alertID string, u models.AlertUpdate) (*models.Alert, error) {
	if !u.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}
	alert, err := s.store.UpdateAlertStatus(ctx, alertID, u, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.WithAlert(alertID).Info().Str("status", string(u.Status)).Msg("alert status updated")

	if s.publisher != nil {
		if err := s.publisher.PublishAlertUpdate(ctx, alert); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", alertID).Msg("failed to publish alert update")
		}
	}
	return alert, nil
}

// Stats counts alerts by status and severity.
func (s *AlertService) Stats(ctx context.Context) (*models.AlertStats, error) {
	return s.store.AlertStats(ctx)
}

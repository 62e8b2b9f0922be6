package streaming

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"honeyshield/internal/domain/models"
)

// EventType represents the type of dashboard event
type EventType string

const (
	EventTypeMessageAnalyzed EventType = "message_analyzed"
	EventTypeAlertCreated    EventType = "alert_created"
	EventTypeAlertUpdated    EventType = "alert_updated"
	EventTypeSourcePolled    EventType = "source_polled"
	EventTypeModelRetrained  EventType = "model_retrained"
)

// Event is a real-time update pushed to dashboards and other instances.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Severity   models.Severity  `json:"severity,omitempty"`
	RiskLevel  models.RiskLevel `json:"risk_level,omitempty"`
	RiskScore  int              `json:"risk_score,omitempty"`
	Platform   models.Platform  `json:"platform,omitempty"`
	SourceSlug string           `json:"source,omitempty"`

	SenderName    string   `json:"sender_name,omitempty"`
	SenderProfile string   `json:"sender_profile,omitempty"`
	MessageID     string   `json:"message_id,omitempty"`
	AlertID       string   `json:"alert_id,omitempty"`
	Status        string   `json:"status,omitempty"`
	ThreatType    string   `json:"threat_type,omitempty"`
	Techniques    []string `json:"techniques,omitempty"`
	Summary       string   `json:"summary,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	// Origin is the instance that published the event.
	Origin string `json:"origin,omitempty"`
}

func newEvent(t EventType) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageEvent describes a stored, analyzed message.
func NewMessageEvent(m *models.Message) *Event {
	e := newEvent(EventTypeMessageAnalyzed)
	e.Severity = m.Severity
	e.RiskLevel = m.RiskLevel
	e.RiskScore = m.RiskScore
	e.Platform = m.Platform
	e.SourceSlug = m.SourceSlug
	e.SenderName = m.SenderName
	e.SenderProfile = m.SenderProfileURL
	e.MessageID = m.ID.String()
	e.ThreatType = m.ThreatType
	e.Techniques = m.MITRETechniques
	e.Summary = truncate(m.Content, 140)
	return e
}

// NewAlertEvent describes a created or updated alert.
func NewAlertEvent(t EventType, a *models.Alert) *Event {
	e := newEvent(t)
	e.Severity = a.Severity
	e.RiskScore = a.RiskScore
	e.SenderName = a.SenderName
	e.SenderProfile = a.SenderProfile
	e.AlertID = a.AlertID
	e.Status = string(a.Status)
	e.ThreatType = a.ThreatType
	e.Techniques = a.MITRETechniques
	e.Summary = truncate(a.MessageContent, 140)
	if a.MessageID != nil {
		e.MessageID = a.MessageID.String()
	}
	return e
}

// NewSourcePolledEvent describes one finished source poll.
func NewSourcePolledEvent(r models.CycleResult, d time.Duration) *Event {
	e := newEvent(EventTypeSourcePolled)
	e.SourceSlug = r.Source
	e.Metadata = map[string]any{
		"fetched":        r.Fetched,
		"processed":      r.Processed,
		"duplicates":     r.Duplicates,
		"alerts_created": r.AlertsCreated,
		"duration_ms":    d.Milliseconds(),
	}
	if r.Error != "" {
		e.Metadata["error"] = r.Error
	}
	return e
}

// NewModelEvent describes a retrained classifier.
func NewModelEvent(info models.ModelInfo) *Event {
	e := newEvent(EventTypeModelRetrained)
	e.Metadata = map[string]any{
		"training_size":    info.TrainingSize,
		"holdout_accuracy": info.HoldoutAccuracy,
	}
	return e
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Subscription represents a client's subscription preferences
type Subscription struct {
	// Filter by severity (empty = all)
	MinSeverity models.Severity `json:"min_severity,omitempty"`

	// Filter by risk score (0 = all)
	MinScore int `json:"min_score,omitempty"`

	// Filter by event types (empty = all)
	Types []EventType `json:"types,omitempty"`

	// Filter by platforms (empty = all)
	Platforms []models.Platform `json:"platforms,omitempty"`
}

// Matches checks if an event matches the subscription filters. Events
// without a severity or platform, like source polls, pass those filters.
func (s *Subscription) Matches(event *Event) bool {
	if s.MinSeverity != "" && event.Severity != "" && event.Severity.Rank() < s.MinSeverity.Rank() {
		return false
	}
	if s.MinScore > 0 && event.Type != EventTypeSourcePolled && event.RiskScore < s.MinScore {
		return false
	}
	if len(s.Types) > 0 && !slices.Contains(s.Types, event.Type) {
		return false
	}
	if len(s.Platforms) > 0 && event.Platform != "" && !slices.Contains(s.Platforms, event.Platform) {
		return false
	}
	return true
}

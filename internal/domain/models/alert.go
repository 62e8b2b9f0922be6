package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AlertStatus tracks analyst triage.
type AlertStatus string

const (
	AlertStatusOpen          AlertStatus = "OPEN"
	AlertStatusAcknowledged  AlertStatus = "ACKNOWLEDGED"
	AlertStatusResolved      AlertStatus = "RESOLVED"
	AlertStatusFalsePositive AlertStatus = "FALSE_POSITIVE"
)

// Valid reports whether s is a known status.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusOpen, AlertStatusAcknowledged, AlertStatusResolved, AlertStatusFalsePositive:
		return true
	}
	return false
}

// Closed reports whether the status ends triage.
func (s AlertStatus) Closed() bool {
	return s == AlertStatusResolved || s == AlertStatusFalsePositive
}

// Alert is a security alert raised for a risky message.
type Alert struct {
	ID                uuid.UUID   `json:"id" db:"id"`
	AlertID           string      `json:"alert_id" db:"alert_id"`
	CreatedAt         time.Time   `json:"timestamp" db:"created_at"`
	Severity          Severity    `json:"severity" db:"severity"`
	Status            AlertStatus `json:"status" db:"status"`
	SourcePlatform    string      `json:"source_platform" db:"source_platform"`
	SenderName        string      `json:"sender_name" db:"sender_name"`
	SenderProfile     string      `json:"sender_profile" db:"sender_profile"`
	MessageID         *uuid.UUID  `json:"message_id,omitempty" db:"message_id"`
	MessageContent    string      `json:"message_content" db:"message_content"`
	RiskScore         int         `json:"risk_score" db:"risk_score"`
	ThreatType        string      `json:"threat_type" db:"threat_type"`
	Indicators        string      `json:"indicators" db:"indicators"`
	MITRETechniques   []string    `json:"mitre_techniques" db:"mitre_techniques"`
	RecommendedAction string      `json:"recommended_action" db:"recommended_action"`
	AnalystNotes      string      `json:"analyst_notes" db:"analyst_notes"`
	MLConfidence      float64     `json:"ml_confidence" db:"ml_confidence"`
	ResolvedAt        *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
}

// NewAlertID returns an id of the form ALT-1A2B3C4D.
func NewAlertID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("ALT-%s", strings.ToUpper(hex[:8]))
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	Since    time.Time
	Severity Severity
	Status   AlertStatus
	Limit    int
}

// AlertUpdate is an analyst triage action.
type AlertUpdate struct {
	Status       AlertStatus `json:"status"`
	AnalystNotes string      `json:"analyst_notes"`
}

// AlertStats counts alerts by severity and status.
type AlertStats struct {
	Total      int                 `json:"total"`
	Open       int                 `json:"open"`
	BySeverity map[Severity]int    `json:"by_severity"`
	ByStatus   map[AlertStatus]int `json:"by_status"`
}

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the social network a decoy profile lives on.
type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformTwitter  Platform = "twitter"
	PlatformManual   Platform = "manual"
)

// DisplayName is the platform name as shown in alerts.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformLinkedIn:
		return "LinkedIn"
	case PlatformTwitter:
		return "X/Twitter"
	case PlatformManual:
		return "Manual"
	default:
		return string(p)
	}
}

// RiskLevel is the coarse level stored with each message.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "Low"
	RiskLevelMedium RiskLevel = "Medium"
	RiskLevelHigh   RiskLevel = "High"
)

// InboundMessage is a message as delivered by a source, before analysis.
type InboundMessage struct {
	SourceSlug       string    `json:"source"`
	Platform         Platform  `json:"platform"`
	ExternalID       string    `json:"external_id,omitempty"`
	SenderName       string    `json:"sender_name"`
	SenderProfileURL string    `json:"sender_profile_url,omitempty"`
	Content          string    `json:"message_content"`
	ReceivedAt       time.Time `json:"timestamp"`

	// Attempts counts failed processing rounds of a requeued message.
	Attempts int `json:"attempts,omitempty"`
}

// Fingerprint identifies a message independently of when it was scraped.
// Scrapers re-read the last message of a conversation on every poll, so the
// fingerprint excludes the timestamp.
func (m *InboundMessage) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(string(m.Platform)))
	h.Write([]byte{0})
	sender := m.SenderProfileURL
	if sender == "" {
		sender = strings.ToLower(m.SenderName)
	}
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(m.Content)))
	return hex.EncodeToString(h.Sum(nil))
}

// SenderKey is the identity threats are aggregated under.
func (m *InboundMessage) SenderKey() string {
	if m.SenderProfileURL != "" {
		return m.SenderProfileURL
	}
	return string(m.Platform) + ":" + m.SenderName
}

// Message is a persisted, analyzed message.
type Message struct {
	ID               uuid.UUID `json:"id" db:"id"`
	SourceSlug       string    `json:"source" db:"source"`
	Platform         Platform  `json:"platform" db:"platform"`
	ExternalID       string    `json:"external_id,omitempty" db:"external_id"`
	SenderName       string    `json:"sender_name" db:"sender_name"`
	SenderProfileURL string    `json:"sender_profile_url" db:"sender_profile_url"`
	Content          string    `json:"message_content" db:"message_content"`
	Fingerprint      string    `json:"-" db:"fingerprint"`
	ReceivedAt       time.Time `json:"timestamp" db:"received_at"`
	AnalyzedAt       time.Time `json:"analyzed_at" db:"analyzed_at"`

	RiskScore       int       `json:"risk_score" db:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level" db:"risk_level"`
	Severity        Severity  `json:"severity" db:"severity"`
	Keywords        []string  `json:"keywords_found" db:"keywords_found"`
	AnalysisNotes   []string  `json:"analysis_notes" db:"analysis_notes"`
	MITRETechniques []string  `json:"mitre_techniques" db:"mitre_techniques"`
	ThreatType      string    `json:"threat_type,omitempty" db:"threat_type"`
}

// NewMessage builds the persisted form of an analysis.
func NewMessage(in *InboundMessage, a *MessageAnalysis) *Message {
	techniques := make([]string, 0, len(a.Techniques))
	for _, t := range a.Techniques {
		techniques = append(techniques, t.ID)
	}
	threatType := ""
	if a.Classification != nil && len(a.Classification.PrimaryTypes) > 0 {
		threatType = a.Classification.PrimaryTypes[0]
	}
	received := in.ReceivedAt
	if received.IsZero() {
		received = a.AnalyzedAt
	}
	return &Message{
		ID:               uuid.New(),
		SourceSlug:       in.SourceSlug,
		Platform:         in.Platform,
		ExternalID:       in.ExternalID,
		SenderName:       in.SenderName,
		SenderProfileURL: in.SenderProfileURL,
		Content:          in.Content,
		Fingerprint:      in.Fingerprint(),
		ReceivedAt:       received,
		AnalyzedAt:       a.AnalyzedAt,
		RiskScore:        a.FinalScore,
		RiskLevel:        a.RiskLevel,
		Severity:         a.Severity,
		Keywords:         a.Rule.Keywords,
		AnalysisNotes:    a.Rule.Notes,
		MITRETechniques:  techniques,
		ThreatType:       threatType,
	}
}

// SenderKey is the identity threats are aggregated under.
func (m *Message) SenderKey() string {
	if m.SenderProfileURL != "" {
		return m.SenderProfileURL
	}
	return string(m.Platform) + ":" + m.SenderName
}

// JoinOr renders a list the way the dashboard shows it, with a placeholder
// for empty lists.
func JoinOr(items []string, sep, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, sep)
}

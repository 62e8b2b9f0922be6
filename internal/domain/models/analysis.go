package models

import (
	"strings"
	"time"
)

// Severity is the classifier driven alert severity.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities, LOW=1 .. CRITICAL=4. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// ParseSeverity accepts any casing. ok is false for unknown values.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityCritical:
		return SeverityCritical, true
	}
	return "", false
}

// Analysis notes emitted by the rule engine.
const (
	NoteRelationshipEscalation = "Rapid relationship escalation detected"
	NotePrivateInfoRequest     = "Potential private information request"
)

// RuleAnalysis is the heuristic keyword/sentiment score.
type RuleAnalysis struct {
	Score              int      `json:"score"`
	Keywords           []string `json:"keywords"`
	Notes              []string `json:"notes"`
	SentimentPolarity  float64  `json:"sentiment_polarity"`
	Escalation         bool     `json:"relationship_escalation"`
	PrivateInfoRequest bool     `json:"private_info_request"`
}

// KeywordsText renders keywords as stored, "None" when empty.
func (r RuleAnalysis) KeywordsText() string {
	return JoinOr(r.Keywords, ", ", "None")
}

// NotesText renders notes as stored, "No significant alerts" when empty.
func (r RuleAnalysis) NotesText() string {
	return JoinOr(r.Notes, "; ", "No significant alerts")
}

// LinguisticFeatures are named numeric features extracted from message text.
type LinguisticFeatures map[string]float64

// ClassifierResult is the output of the phishing classifier.
type ClassifierResult struct {
	Probability        float64            `json:"probability"`
	Severity           Severity           `json:"risk_level"`
	RiskScore          int                `json:"risk_score"`
	Confidence         float64            `json:"confidence"`
	KeyIndicators      []string           `json:"key_indicators"`
	BehavioralPatterns []string           `json:"behavioral_patterns"`
	Features           LinguisticFeatures `json:"feature_analysis"`
	Summary            string             `json:"explanation_summary"`
}

// ThreatClassification names the kind of social engineering observed.
type ThreatClassification struct {
	PrimaryTypes       []string `json:"primary_types"`
	SecondaryTypes     []string `json:"secondary_types"`
	Confidence         float64  `json:"confidence"`
	TechniquesDetected []string `json:"techniques_detected"`
}

const (
	TimeContextBusinessHours = "business_hours"
	TimeContextOffHours      = "off_hours"
)

// TemporalContext records when, relative to working hours, a message arrived.
type TemporalContext struct {
	HourOfDay   int       `json:"hour_of_day"`
	DayOfWeek   int       `json:"day_of_week"` // 0 = Monday
	TimeContext string    `json:"time_context"`
	Timestamp   time.Time `json:"timestamp"`
}

// RuleMatch is a custom detection rule that fired on a message.
type RuleMatch struct {
	RuleID     string   `json:"rule_id"`
	Title      string   `json:"title"`
	Level      string   `json:"level"`
	Techniques []string `json:"techniques,omitempty"`
	Bonus      int      `json:"bonus"`
}

// MessageAnalysis is the combined verdict for one message.
type MessageAnalysis struct {
	Message           *InboundMessage       `json:"message"`
	Rule              RuleAnalysis          `json:"rule_analysis"`
	Classifier        *ClassifierResult     `json:"ml_analysis,omitempty"`
	Classification    *ThreatClassification `json:"threat_classification,omitempty"`
	Temporal          TemporalContext       `json:"temporal_context"`
	RuleMatches       []RuleMatch           `json:"rule_matches,omitempty"`
	Techniques        []TechniqueRef        `json:"mitre_techniques"`
	TechniquesText    string                `json:"mitre_summary"`
	FinalScore        int                   `json:"final_score"`
	RiskLevel         RiskLevel             `json:"risk_level"`
	Severity          Severity              `json:"severity"`
	RecommendedAction string                `json:"recommended_action"`
	AnalyzedAt        time.Time             `json:"analysis_timestamp"`
}

// Indicators merges classifier indicators, behavioral patterns and rule notes
// in that order.
func (a *MessageAnalysis) Indicators() []string {
	var out []string
	if a.Classifier != nil {
		out = append(out, a.Classifier.KeyIndicators...)
		out = append(out, a.Classifier.BehavioralPatterns...)
	}
	out = append(out, a.Rule.Notes...)
	for _, m := range a.RuleMatches {
		out = append(out, "Rule: "+m.Title)
	}
	return out
}

// Confidence is the classifier confidence, or 0 when it did not run.
func (a *MessageAnalysis) Confidence() float64 {
	if a.Classifier == nil {
		return 0
	}
	return a.Classifier.Confidence
}

// ThreatType is the first primary classification.
func (a *MessageAnalysis) ThreatType() string {
	if a.Classification == nil || len(a.Classification.PrimaryTypes) == 0 {
		return "Unknown"
	}
	return a.Classification.PrimaryTypes[0]
}

// AnalyzeRequest is the body of the analyze endpoints.
type AnalyzeRequest struct {
	SenderName       string    `json:"sender_name"`
	SenderProfileURL string    `json:"sender_profile_url,omitempty"`
	Content          string    `json:"message_content"`
	Platform         Platform  `json:"platform,omitempty"`
	ReceivedAt       time.Time `json:"timestamp,omitempty"`
}

// ToInbound converts a request to an inbound message for the manual source.
func (r *AnalyzeRequest) ToInbound() *InboundMessage {
	platform := r.Platform
	if platform == "" {
		platform = PlatformManual
	}
	return &InboundMessage{
		SourceSlug:       "api",
		Platform:         platform,
		SenderName:       r.SenderName,
		SenderProfileURL: r.SenderProfileURL,
		Content:          r.Content,
		ReceivedAt:       r.ReceivedAt,
	}
}

// BatchAnalyzeRequest carries up to 100 messages.
type BatchAnalyzeRequest struct {
	Messages []AnalyzeRequest `json:"messages"`
}

// BatchAnalyzeResult summarizes a batch.
type BatchAnalyzeResult struct {
	Results   []*MessageAnalysis `json:"results"`
	Total     int                `json:"total"`
	HighRisk  int                `json:"high_risk"`
	Medium    int                `json:"medium_risk"`
	AvgScore  float64            `json:"average_score"`
	ElapsedMS int64              `json:"elapsed_ms"`
}

package models

import "time"

// Threat aggregates every message of medium risk or above from one sender.
type Threat struct {
	SenderProfileURL string    `json:"sender_profile_url" db:"sender_profile_url"`
	SenderName       string    `json:"sender_name" db:"sender_name"`
	Platform         Platform  `json:"platform" db:"platform"`
	FirstDetected    time.Time `json:"first_detected" db:"first_detected"`
	LastDetected     time.Time `json:"last_detected" db:"last_detected"`
	TotalMessages    int       `json:"total_messages" db:"total_messages"`
	MaxRiskScore     int       `json:"max_risk_score" db:"max_risk_score"`
	MITRETechniques  []string  `json:"mitre_techniques" db:"mitre_techniques"`
}

// ThreatUpdate is one observation folded into a Threat.
type ThreatUpdate struct {
	SenderProfileURL string
	SenderName       string
	Platform         Platform
	RiskScore        int
	Techniques       []string
	ObservedAt       time.Time
}

// Apply folds an observation into t. Techniques are merged without
// duplicates, keeping first-seen order.
func (t *Threat) Apply(u ThreatUpdate) {
	if t.TotalMessages == 0 || u.ObservedAt.Before(t.FirstDetected) {
		t.FirstDetected = u.ObservedAt
	}
	if u.ObservedAt.After(t.LastDetected) {
		t.LastDetected = u.ObservedAt
	}
	t.TotalMessages++
	if u.RiskScore > t.MaxRiskScore {
		t.MaxRiskScore = u.RiskScore
	}
	if u.SenderName != "" {
		t.SenderName = u.SenderName
	}
	if t.Platform == "" {
		t.Platform = u.Platform
	}
	t.MITRETechniques = MergeUnique(t.MITRETechniques, u.Techniques)
}

// MergeUnique appends the values of b missing from a.
func MergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range b {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// RelatedSender is a sender linked to another through shared techniques.
type RelatedSender struct {
	SenderProfileURL string   `json:"sender_profile_url"`
	SenderName       string   `json:"sender_name"`
	SharedTechniques []string `json:"shared_techniques"`
	MaxRiskScore     int      `json:"max_risk_score"`
}

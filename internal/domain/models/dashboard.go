package models

import "time"

// DashboardStats is the overview shown at the top of the dashboard.
type DashboardStats struct {
	TotalMessages int       `json:"total_messages"`
	HighRisk      int       `json:"high_risk"`
	MediumRisk    int       `json:"medium_risk"`
	UniqueSenders int       `json:"unique_senders"`
	OpenAlerts    int       `json:"open_alerts"`
	ActiveThreats int       `json:"active_threats"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// RiskBucket is one row of the risk distribution.
type RiskBucket struct {
	Level RiskLevel `json:"risk_level"`
	Count int       `json:"count"`
}

// TechniqueCount is how often a technique was mapped.
type TechniqueCount struct {
	TechniqueID string `json:"technique_id"`
	Count       int    `json:"count"`
}

// DashboardOverview bundles everything the dashboard page renders on load.
type DashboardOverview struct {
	Stats          *DashboardStats  `json:"stats"`
	Distribution   []RiskBucket     `json:"risk_distribution"`
	RecentMessages []*Message       `json:"recent_messages"`
	HighRisk       []*Message       `json:"high_risk_messages"`
	RecentAlerts   []*Alert         `json:"recent_alerts"`
	TopTechniques  []TechniqueCount `json:"top_techniques"`
}

package models

import "time"

// SourceStatus reports the health of one message source.
type SourceStatus struct {
	Slug         string        `json:"slug"`
	Name         string        `json:"name"`
	Platform     Platform      `json:"platform"`
	Enabled      bool          `json:"enabled"`
	PollInterval time.Duration `json:"poll_interval"`
	LastPoll     time.Time     `json:"last_poll,omitempty"`
	LastSuccess  time.Time     `json:"last_success,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	MessagesSeen int64         `json:"messages_seen"`
	PollCount    int64         `json:"poll_count"`
}

// MonitorStats summarizes the monitoring loop.
type MonitorStats struct {
	Running           bool      `json:"running"`
	Cycles            int64     `json:"cycles"`
	MessagesFetched   int64     `json:"messages_fetched"`
	MessagesProcessed int64     `json:"messages_processed"`
	Duplicates        int64     `json:"duplicates"`
	AlertsCreated     int64     `json:"alerts_created"`
	LastCycleAt       time.Time `json:"last_cycle_at,omitempty"`
	LastCycleDuration string    `json:"last_cycle_duration,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
}

// CycleResult is the outcome of one monitoring pass.
type CycleResult struct {
	Source        string `json:"source"`
	Fetched       int    `json:"fetched"`
	Processed     int    `json:"processed"`
	Duplicates    int    `json:"duplicates"`
	AlertsCreated int    `json:"alerts_created"`
	Requeued      int    `json:"requeued,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
	Error         string `json:"error,omitempty"`
}

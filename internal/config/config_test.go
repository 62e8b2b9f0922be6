package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver by default, got %q", cfg.Storage.Driver)
	}
	if cfg.Scoring.KeywordWeight != 10 || cfg.Scoring.RequestPrivateInfoWeight != 25 {
		t.Fatalf("unexpected scoring weights: %+v", cfg.Scoring)
	}
	if cfg.Monitor.Interval != 5*time.Minute {
		t.Fatalf("expected 5m monitor interval, got %s", cfg.Monitor.Interval)
	}
	if cfg.Alerts.Threshold != 40 {
		t.Fatalf("expected alert threshold 40, got %d", cfg.Alerts.Threshold)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
storage:
  driver: postgres
scoring:
  keyword_weight: 7
monitor:
  interval: 2m
linkedin:
  enabled: false
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HONEYSHIELD_SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T/B/X")
	t.Setenv("HONEYSHIELD_SERVER_HTTP_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Scoring.KeywordWeight != 7 {
		t.Fatalf("keyword weight = %d", cfg.Scoring.KeywordWeight)
	}
	if cfg.Monitor.Interval != 2*time.Minute {
		t.Fatalf("interval = %s", cfg.Monitor.Interval)
	}
	if cfg.Slack.WebhookURL == "" {
		t.Fatalf("slack webhook not bound from env")
	}
	if cfg.Server.HTTPPort != 9999 {
		t.Fatalf("http port = %d", cfg.Server.HTTPPort)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(*Config) {}, false},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }, true},
		{"inverted thresholds", func(c *Config) { c.Scoring.HighThreshold = 30 }, true},
		{"linkedin without credentials", func(c *Config) { c.LinkedIn.Enabled = true }, true},
		{"tiny interval", func(c *Config) { c.Monitor.Interval = time.Millisecond }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Storage: StorageConfig{Driver: "sqlite"},
				Scoring: ScoringConfig{MediumThreshold: 40, HighThreshold: 70},
				Monitor: MonitorConfig{Enabled: true, Interval: time.Minute},
			}
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

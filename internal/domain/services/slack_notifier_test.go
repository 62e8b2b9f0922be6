package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"honeyshield/internal/config"
	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

const testWebhook = SlackWebhookPrefix + "T000/B000/XXXX"

// redirectTransport sends every request to target, keeping the path.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

type slackRecorder struct {
	mu       sync.Mutex
	status   int
	payloads []SlackMessage
	paths    []string
}

func (s *slackRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var msg SlackMessage
	_ = json.Unmarshal(body, &msg)

	s.mu.Lock()
	s.payloads = append(s.payloads, msg)
	s.paths = append(s.paths, r.URL.Path)
	status := s.status
	s.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if status == http.StatusOK {
		io.WriteString(w, "ok")
	} else {
		io.WriteString(w, "invalid_payload")
	}
}

func (s *slackRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func newTestNotifier(t *testing.T, rec *slackRecorder) *SlackNotifier {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	target, _ := url.Parse(srv.URL)

	n := NewSlackNotifier(config.SlackConfig{WebhookURL: testWebhook, Workers: 1, QueueSize: 4}, nil, logger.Nop())
	n.client.HTTPClient.Transport = redirectTransport{target: target}
	n.now = func() time.Time { return time.Date(2024, 3, 4, 14, 5, 9, 0, time.UTC) }
	return n
}

func testAlert(sev models.Severity) *models.Alert {
	return &models.Alert{
		AlertID:           "ALT-1A2B3C4D",
		Severity:          sev,
		SourcePlatform:    "LinkedIn",
		SenderName:        "Jane Recruiter",
		MessageContent:    strings.Repeat("a", 250),
		RiskScore:         82,
		ThreatType:        ThreatTypePlatformMigration,
		Indicators:        "Platform migration attempt (1 instances)",
		RecommendedAction: RecommendedAction(sev),
	}
}

func TestBuildMessageLayout(t *testing.T) {
	n := NewSlackNotifier(config.SlackConfig{WebhookURL: testWebhook}, nil, logger.Nop())
	n.now = func() time.Time { return time.Date(2024, 3, 4, 14, 5, 9, 0, time.UTC) }

	msg := n.BuildMessage(testAlert(models.SeverityCritical))

	if got := msg.Blocks[0].Text.Text; got != "🚨 Honeyshield Security Alert 🚨" {
		t.Errorf("header = %q", got)
	}
	fields := msg.Blocks[1].Fields
	if fields[0].Text != "*Severity:*\nCRITICAL" || fields[1].Text != "*Risk Score:*\n82/100" {
		t.Errorf("summary fields = %+v", fields)
	}
	if got := msg.Blocks[2].Fields[1].Text; got != "*Time:*\n14:05:09" {
		t.Errorf("time field = %q", got)
	}
	preview := msg.Blocks[3].Text.Text
	if !strings.HasSuffix(preview, strings.Repeat("a", 200)+"...```") {
		t.Errorf("preview not truncated to 200 runes: %q", preview)
	}
	if got := msg.Blocks[4].Text.Text; !strings.HasPrefix(got, "*Detection Indicators:*") {
		t.Errorf("indicators block = %q", got)
	}
	last := msg.Blocks[len(msg.Blocks)-1]
	if last.Type != "context" || !strings.Contains(last.Elements[0].Text, "`ALT-1A2B3C4D`") {
		t.Errorf("footer = %+v", last)
	}
	if msg.Attachments[0].Color != "#ff0000" {
		t.Errorf("color = %q, want #ff0000", msg.Attachments[0].Color)
	}
}

func TestBuildMessageOmitsEmptyIndicators(t *testing.T) {
	n := NewSlackNotifier(config.SlackConfig{WebhookURL: testWebhook}, nil, logger.Nop())
	a := testAlert(models.SeverityLow)
	a.Indicators = "None"

	msg := n.BuildMessage(a)
	for _, b := range msg.Blocks {
		if b.Text != nil && strings.HasPrefix(b.Text.Text, "*Detection Indicators:*") {
			t.Fatal("indicators block rendered for None")
		}
	}
	if msg.Attachments[0].Color != "#4caf50" {
		t.Errorf("color = %q, want #4caf50", msg.Attachments[0].Color)
	}
}

func TestSendPostsToWebhook(t *testing.T) {
	rec := &slackRecorder{}
	n := newTestNotifier(t, rec)

	if err := n.Send(context.Background(), testAlert(models.SeverityHigh)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("webhook received %d posts, want 1", rec.count())
	}
	if rec.paths[0] != "/services/T000/B000/XXXX" {
		t.Errorf("path = %q", rec.paths[0])
	}
	if len(rec.payloads[0].Blocks) == 0 {
		t.Error("payload has no blocks")
	}
}

func TestSendReportsAPIError(t *testing.T) {
	rec := &slackRecorder{status: http.StatusBadRequest}
	n := newTestNotifier(t, rec)

	err := n.Send(context.Background(), testAlert(models.SeverityHigh))
	if err == nil || !strings.Contains(err.Error(), "slack API error: 400 - invalid_payload") {
		t.Fatalf("error = %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	n := NewSlackNotifier(config.SlackConfig{WebhookURL: "https://example.com/hook"}, nil, logger.Nop())
	if n.Enabled() {
		t.Fatal("non-Slack webhook reported enabled")
	}
	if err := n.Notify(testAlert(models.SeverityHigh)); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Notify error = %v, want ErrNotConfigured", err)
	}
	if err := n.TestConnection(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("TestConnection error = %v, want ErrNotConfigured", err)
	}
}

func TestNotifyDeliversThroughWorkers(t *testing.T) {
	rec := &slackRecorder{}
	n := newTestNotifier(t, rec)
	n.Start()

	for i := 0; i < 3; i++ {
		if err := n.Notify(testAlert(models.SeverityMedium)); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	n.Stop()

	if rec.count() != 3 {
		t.Fatalf("webhook received %d posts, want 3", rec.count())
	}
}

func TestNotifyQueueFull(t *testing.T) {
	n := NewSlackNotifier(config.SlackConfig{WebhookURL: testWebhook, QueueSize: 1}, nil, logger.Nop())
	if err := n.Notify(testAlert(models.SeverityLow)); err != nil {
		t.Fatalf("first Notify: %v", err)
	}
	if err := n.Notify(testAlert(models.SeverityLow)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Notify error = %v, want ErrQueueFull", err)
	}
}

func TestConnectionSendsText(t *testing.T) {
	rec := &slackRecorder{}
	n := newTestNotifier(t, rec)

	if err := n.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if rec.count() != 1 || !strings.Contains(rec.payloads[0].Text, "connection test") {
		t.Fatalf("payloads = %+v", rec.payloads)
	}
}

package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestRecordedSeries(t *testing.T) {
	m := New()
	m.ObserveAnalysis("High", 85, 0.002)
	m.AlertCreated("HIGH")
	m.SourcePolled("linkedin", 3, nil)
	m.SourcePolled("twitter", 0, errors.New("rate limited"))
	m.SlackDelivered(nil)
	m.ObserveHTTP("/api/v1/alerts/{alertID}", "GET", 404, 0.01)
	m.WebsocketConnected(2)
	m.WebsocketConnected(-1)

	body := scrape(t, m)
	for _, want := range []string{
		`honeyshield_analyses_total{risk_level="High"} 1`,
		`honeyshield_alerts_total{severity="HIGH"} 1`,
		`honeyshield_source_polls_total{result="ok",source="linkedin"} 1`,
		`honeyshield_source_polls_total{result="error",source="twitter"} 1`,
		`honeyshield_source_messages_total{source="linkedin"} 3`,
		`honeyshield_slack_deliveries_total{result="ok"} 1`,
		`honeyshield_http_requests_total{method="GET",route="/api/v1/alerts/{alertID}",status="4xx"} 1`,
		`honeyshield_websocket_clients 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %s", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAnalysis("Low", 0, 0)
	m.AlertCreated("LOW")
	m.SourcePolled("queue", 1, nil)
	m.DuplicateSkipped()
	m.MonitorCycle(nil)
	m.ObserveHTTP("/", "GET", 200, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}

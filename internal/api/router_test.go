package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"honeyshield/internal/api/handlers"
	"honeyshield/internal/config"
	"honeyshield/internal/domain/models"
	"honeyshield/internal/domain/services"
	"honeyshield/internal/infrastructure/database"
	"honeyshield/internal/infrastructure/database/repository"
	"honeyshield/internal/metrics"
	"honeyshield/internal/sources"
	"honeyshield/pkg/logger"
)

const (
	testAPIKey     = "test-key"
	testAdminToken = "test-admin"
	riskyText      = "Hi dear, please switch to whatsapp and send me your phone number immediately"
)

type stubSource struct {
	*sources.BaseSource
	msgs []*models.InboundMessage
}

func (s *stubSource) Fetch(context.Context) ([]*models.InboundMessage, error) {
	return s.msgs, nil
}

func newStubSource(slug string, msgs ...*models.InboundMessage) *stubSource {
	src := &stubSource{BaseSource: sources.NewBaseSource(slug, "Stub "+slug, models.PlatformLinkedIn), msgs: msgs}
	src.Configure(sources.SourceConfig{Enabled: true})
	return src
}

type fixture struct {
	handler http.Handler
	store   *repository.SQLiteStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.Nop()

	db, err := database.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "api.db")}, log)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := repository.NewSQLiteStore(db.DB())

	m := metrics.New()
	mitre := services.NewMITREService(40, 70, log)
	rules := services.NewRuleEngine(services.NewStaticLexiconStore(services.DefaultLexicon()), services.DefaultRuleWeights(), 40, 70)
	analyzer := services.NewMessageAnalyzer(rules, nil, nil, mitre, m, log)
	alerts := services.NewAlertService(store, 40, m, log)
	slack := services.NewSlackNotifier(config.SlackConfig{}, m, log)

	registry := sources.NewRegistry(log)
	registry.Register(newStubSource("stub", &models.InboundMessage{
		SourceSlug:       "stub",
		Platform:         models.PlatformLinkedIn,
		SenderName:       "Eve",
		SenderProfileURL: "https://www.linkedin.com/in/eve",
		Content:          riskyText,
	}))
	monitor := services.NewMonitorService(registry, analyzer, store, alerts, services.MonitorConfig{}, m, log)

	h := handlers.NewHandlers(handlers.Dependencies{
		Store:     store,
		Analyzer:  analyzer,
		Monitor:   monitor,
		Alerts:    alerts,
		Slack:     slack,
		Dashboard: services.NewDashboardService(store, nil, 70, log),
		MITRE:     mitre,
		Model:     services.NewModelService(nil, "", 0, log),
		Version:   "test",
		Logger:    log,
	})

	cfg := &config.Config{
		Auth:    config.AuthConfig{APIKey: testAPIKey, AdminToken: testAdminToken},
		CORS:    config.CORSConfig{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "PATCH"}},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	return &fixture{
		handler: NewRouter(cfg, h, nil, m, nil, log).Setup(),
		store:   store,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestPublicRoutes(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health", "/ready", "/metrics", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("dashboard content type = %q", ct)
	}

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated API call = %d, want 401", rec.Code)
	}
}

func TestAnalyzeEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/messages/analyze", `{"sender_name":"Mallory","message_content":"`+riskyText+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze = %d: %s", rec.Code, rec.Body.String())
	}
	var analysis models.MessageAnalysis
	decode(t, rec, &analysis)
	if analysis.FinalScore != 100 || analysis.Severity != models.SeverityCritical {
		t.Errorf("score=%d severity=%s", analysis.FinalScore, analysis.Severity)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/messages/analyze", `{"sender_name":"x","message_content":"  "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty content = %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/messages/analyze", `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/messages/analyze/batch",
		`{"messages":[{"sender_name":"a","message_content":"`+riskyText+`"},{"sender_name":"b","message_content":"Thanks for connecting"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch = %d: %s", rec.Code, rec.Body.String())
	}
	var batch models.BatchAnalyzeResult
	decode(t, rec, &batch)
	if batch.Total != 2 || batch.HighRisk != 1 {
		t.Errorf("batch total=%d high=%d", batch.Total, batch.HighRisk)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/messages/analyze/batch", `{"messages":[]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch = %d, want 400", rec.Code)
	}

	// analysis alone stores nothing
	msgs, err := f.store.RecentMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("stored %d messages, want 0", len(msgs))
	}
}

func TestIngestAndTriage(t *testing.T) {
	f := newFixture(t)
	body := `{"sender_name":"Mallory","sender_profile_url":"https://www.linkedin.com/in/mallory","message_content":"` + riskyText + `","timestamp":"2024-03-04T10:00:00Z"}`

	rec := f.do(t, http.MethodPost, "/api/v1/messages", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest = %d: %s", rec.Code, rec.Body.String())
	}
	var result services.ProcessResult
	decode(t, rec, &result)
	if result.Message == nil || result.Alert == nil {
		t.Fatalf("result = %+v, want message and alert", result)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/messages", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate ingest = %d, want 200", rec.Code)
	}
	var dup services.ProcessResult
	decode(t, rec, &dup)
	if !dup.Duplicate {
		t.Error("second ingest not flagged duplicate")
	}

	t.Run("messages", func(t *testing.T) {
		var list struct {
			Count int `json:"count"`
		}
		decode(t, f.do(t, http.MethodGet, "/api/v1/messages?limit=5", ""), &list)
		if list.Count != 1 {
			t.Errorf("count = %d, want 1", list.Count)
		}
		decode(t, f.do(t, http.MethodGet, "/api/v1/messages/high-risk", ""), &list)
		if list.Count != 1 {
			t.Errorf("high risk count = %d, want 1", list.Count)
		}

		if rec := f.do(t, http.MethodGet, "/api/v1/messages/"+result.Message.ID.String(), ""); rec.Code != http.StatusOK {
			t.Errorf("get message = %d", rec.Code)
		}
		if rec := f.do(t, http.MethodGet, "/api/v1/messages/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("bad id = %d, want 400", rec.Code)
		}
		if rec := f.do(t, http.MethodGet, "/api/v1/messages/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
			t.Errorf("unknown id = %d, want 404", rec.Code)
		}
	})

	t.Run("alerts", func(t *testing.T) {
		var list struct {
			Count  int             `json:"count"`
			Alerts []*models.Alert `json:"alerts"`
		}
		decode(t, f.do(t, http.MethodGet, "/api/v1/alerts?hours=100000&severity=critical", ""), &list)
		if list.Count != 1 {
			t.Fatalf("alert count = %d, want 1", list.Count)
		}
		var wide struct {
			Count int `json:"count"`
			Hours int `json:"hours"`
		}
		decode(t, f.do(t, http.MethodGet, "/api/v1/alerts?hours=9223372036854775807", ""), &wide)
		if wide.Count == 0 || wide.Hours != 24*365 {
			t.Errorf("max hours window = %+v, want alerts within %d hours", wide, 24*365)
		}
		if rec := f.do(t, http.MethodGet, "/api/v1/alerts?severity=bogus", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("bogus severity = %d, want 400", rec.Code)
		}

		path := "/api/v1/alerts/" + result.Alert.AlertID
		if rec := f.do(t, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("get alert = %d", rec.Code)
		}
		rec := f.do(t, http.MethodPatch, path, `{"status":"RESOLVED","analyst_notes":"confirmed honey trap"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("patch = %d: %s", rec.Code, rec.Body.String())
		}
		var updated models.Alert
		decode(t, rec, &updated)
		if updated.Status != models.AlertStatusResolved || updated.AnalystNotes != "confirmed honey trap" {
			t.Errorf("updated = %s %q", updated.Status, updated.AnalystNotes)
		}
		if rec := f.do(t, http.MethodPatch, path, `{"status":"DONE"}`); rec.Code != http.StatusBadRequest {
			t.Errorf("invalid status = %d, want 400", rec.Code)
		}
		if rec := f.do(t, http.MethodPatch, "/api/v1/alerts/ALT-missing", `{"status":"RESOLVED"}`); rec.Code != http.StatusNotFound {
			t.Errorf("unknown alert = %d, want 404", rec.Code)
		}
		if rec := f.do(t, http.MethodPost, "/api/v1/alerts/test-slack", ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("test-slack without webhook = %d, want 503", rec.Code)
		}
	})

	t.Run("threats", func(t *testing.T) {
		var list struct {
			Count int `json:"count"`
		}
		decode(t, f.do(t, http.MethodGet, "/api/v1/threats", ""), &list)
		if list.Count != 1 {
			t.Errorf("threat count = %d, want 1", list.Count)
		}
		if rec := f.do(t, http.MethodGet, "/api/v1/threats/related", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("related without profile = %d, want 400", rec.Code)
		}
		if rec := f.do(t, http.MethodGet, "/api/v1/threats/related?profile=x", ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("related without graph = %d, want 503", rec.Code)
		}
	})

	t.Run("dashboard", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/dashboard/overview", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("overview = %d", rec.Code)
		}
		var overview models.DashboardOverview
		decode(t, rec, &overview)
		if overview.Stats == nil || overview.Stats.TotalMessages != 1 || overview.Stats.HighRisk != 1 {
			t.Errorf("stats = %+v", overview.Stats)
		}
		if rec := f.do(t, http.MethodGet, "/api/v1/dashboard/distribution", ""); rec.Code != http.StatusOK {
			t.Errorf("distribution = %d", rec.Code)
		}
	})

	t.Run("navigator", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/mitre/navigator", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("navigator = %d", rec.Code)
		}
		var layer models.NavigatorLayer
		decode(t, rec, &layer)
		if len(layer.Techniques) == 0 {
			t.Error("navigator layer has no techniques")
		}
	})
}

func TestMITREEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/mitre/techniques", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("techniques = %d", rec.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count == 0 {
		t.Error("empty technique catalog")
	}

	rec = f.do(t, http.MethodGet, "/api/v1/mitre/techniques/t1594", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("T1594 = %d", rec.Code)
	}
	var tech models.MITRETechnique
	decode(t, rec, &tech)
	if tech.ID != "T1594" {
		t.Errorf("id = %q", tech.ID)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/mitre/techniques/T9999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown technique = %d, want 404", rec.Code)
	}
}

func TestSourceEndpoints(t *testing.T) {
	f := newFixture(t)

	var list struct {
		Count   int                   `json:"count"`
		Sources []models.SourceStatus `json:"sources"`
	}
	decode(t, f.do(t, http.MethodGet, "/api/v1/sources", ""), &list)
	if list.Count != 1 || list.Sources[0].Slug != "stub" {
		t.Fatalf("sources = %+v", list)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/sources/missing/poll", ""); rec.Code != http.StatusNotFound {
		t.Errorf("poll unknown = %d, want 404", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/sources/stub/poll", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("poll = %d: %s", rec.Code, rec.Body.String())
	}
	var res models.CycleResult
	decode(t, rec, &res)
	if res.Fetched != 1 || res.Processed != 1 || res.AlertsCreated != 1 {
		t.Errorf("cycle = %+v", res)
	}

	var stats models.MonitorStats
	decode(t, f.do(t, http.MethodGet, "/api/v1/monitor/stats", ""), &stats)
	if stats.MessagesProcessed != 1 {
		t.Errorf("messages processed = %d, want 1", stats.MessagesProcessed)
	}
}

func TestModelEndpoints(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodGet, "/api/v1/model", ""); rec.Code != http.StatusNotFound {
		t.Errorf("model info with classifier disabled = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/model/retrain", ""); rec.Code != http.StatusForbidden {
		t.Errorf("retrain without admin token = %d, want 403", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/model/retrain", "", "X-Admin-Token", testAdminToken); rec.Code != http.StatusNotFound {
		t.Errorf("retrain with classifier disabled = %d, want 404", rec.Code)
	}
}

package twitter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"honeyshield/internal/config"
	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

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

const eventsJSON = `{"events":[
 {"type":"message_create","id":"3","created_timestamp":"1709546400000",
  "message_create":{"sender_id":"42","target":{"recipient_id":"1"},"message_data":{"text":"Let's move this conversation to telegram"}}},
 {"type":"message_create","id":"2","created_timestamp":"1709546300000",
  "message_create":{"sender_id":"1","target":{"recipient_id":"42"},"message_data":{"text":"Hello!"}}},
 {"type":"message_create","id":"1","created_timestamp":"1709546200000",
  "message_create":{"sender_id":"42","target":{"recipient_id":"1"},"message_data":{"text":"   "}}}
]}`

func newTestSource(t *testing.T, userLookups *int32) *Source {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/1.1/direct_messages/events/list.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, eventsJSON)
	})
	mux.HandleFunc("/1.1/users/show.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(userLookups, 1)
		if r.URL.Query().Get("user_id") != "42" {
			http.Error(w, `{"errors":[{"code":50,"message":"User not found."}]}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":42,"id_str":"42","name":"Jane Recruiter","screen_name":"jane_hr"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	target, _ := url.Parse(srv.URL)

	cfg := config.TwitterConfig{Enabled: true, AccountID: "1", PollInterval: time.Minute}
	return NewWithClient(cfg, &http.Client{Transport: redirectTransport{target: target}}, logger.Nop())
}

func TestFetchSkipsOwnAndEmptyMessages(t *testing.T) {
	var lookups int32
	s := newTestSource(t, &lookups)

	msgs, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.SenderName != "Jane Recruiter" || m.SenderProfileURL != "https://x.com/jane_hr" {
		t.Errorf("sender = %q %q", m.SenderName, m.SenderProfileURL)
	}
	if m.Platform != models.PlatformTwitter || m.ExternalID != "3" {
		t.Errorf("message = %+v", m)
	}
	if !strings.Contains(m.Content, "telegram") {
		t.Errorf("content = %q", m.Content)
	}
	if !m.ReceivedAt.Equal(time.UnixMilli(1709546400000)) {
		t.Errorf("received at = %v", m.ReceivedAt)
	}
}

func TestFetchOnlyReturnsNewEvents(t *testing.T) {
	var lookups int32
	s := newTestSource(t, &lookups)
	ctx := context.Background()

	if _, err := s.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	msgs, err := s.Fetch(ctx)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("second poll returned %d messages, want 0", len(msgs))
	}
	if n := atomic.LoadInt32(&lookups); n != 1 {
		t.Errorf("user lookups = %d, want 1", n)
	}
}

func TestParseTimestamp(t *testing.T) {
	if got := parseTimestamp("1709546400000"); !got.Equal(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("parseTimestamp = %v", got)
	}
	if got := parseTimestamp("bogus"); got.IsZero() {
		t.Error("invalid timestamp produced zero time")
	}
}

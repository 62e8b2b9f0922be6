package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

type testSource struct {
	*BaseSource
	msgs []*models.InboundMessage
	err  error
}

func (s *testSource) Fetch(context.Context) ([]*models.InboundMessage, error) {
	return s.msgs, s.err
}

func newTestSource(slug string, enabled bool) *testSource {
	s := &testSource{BaseSource: NewBaseSource(slug, slug, models.PlatformLinkedIn)}
	s.Configure(SourceConfig{Enabled: enabled, PollInterval: time.Minute})
	return s
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(logger.Nop())
	b := newTestSource("b", true)
	a := newTestSource("a", true)
	off := newTestSource("c", false)

	for _, s := range []Source{b, a, off} {
		if err := r.Register(s); err != nil {
			t.Fatalf("Register(%s): %v", s.Slug(), err)
		}
	}
	if err := r.Register(a); err == nil {
		t.Fatal("duplicate registration accepted")
	}

	if r.Count() != 3 || r.CountEnabled() != 2 {
		t.Fatalf("count=%d enabled=%d", r.Count(), r.CountEnabled())
	}
	list := r.List()
	if list[0].Slug() != "a" || list[1].Slug() != "b" || list[2].Slug() != "c" {
		t.Fatalf("list not sorted: %s %s %s", list[0].Slug(), list[1].Slug(), list[2].Slug())
	}

	if _, err := r.Fetch(context.Background(), "c"); !errors.Is(err, ErrSourceDisabled) {
		t.Errorf("disabled fetch error = %v", err)
	}
	if _, err := r.Fetch(context.Background(), "zzz"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("missing fetch error = %v", err)
	}
}

func TestRegistryStatus(t *testing.T) {
	r := NewRegistry(logger.Nop())
	ok := newTestSource("ok", true)
	ok.msgs = []*models.InboundMessage{{Content: "a"}, {Content: "b"}}
	bad := newTestSource("bad", true)
	bad.err = errors.New("boom")
	r.Register(ok)
	r.Register(bad)

	r.Fetch(context.Background(), "ok")
	r.Fetch(context.Background(), "ok")
	r.Fetch(context.Background(), "bad")

	status := r.Status()
	if len(status) != 2 {
		t.Fatalf("status = %+v", status)
	}
	badStatus, okStatus := status[0], status[1]
	if okStatus.MessagesSeen != 4 || okStatus.PollCount != 2 || okStatus.LastSuccess.IsZero() {
		t.Errorf("ok status = %+v", okStatus)
	}
	if badStatus.LastError != "boom" || !badStatus.LastSuccess.IsZero() {
		t.Errorf("bad status = %+v", badStatus)
	}
	if okStatus.PollInterval != time.Minute || !okStatus.Enabled {
		t.Errorf("ok config = %+v", okStatus)
	}
}

func TestBaseSourceDefaults(t *testing.T) {
	s := NewBaseSource("x", "X", models.PlatformTwitter)
	s.Configure(SourceConfig{Enabled: true})
	if s.PollInterval() != 5*time.Minute || s.Config().MaxMessages != 10 || s.Config().Timeout != 2*time.Minute {
		t.Fatalf("config = %+v interval = %v", s.Config(), s.PollInterval())
	}
}

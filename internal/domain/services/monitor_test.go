package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"honeyshield/internal/domain/models"
	"honeyshield/internal/sources"
	"honeyshield/pkg/logger"
)

type stubSource struct {
	*sources.BaseSource
	mu       sync.Mutex
	messages []*models.InboundMessage
	err      error
	fetches  int
	activity int
}

func newStubSource(slug string, msgs ...*models.InboundMessage) *stubSource {
	return &stubSource{
		BaseSource: sources.NewBaseSource(slug, "Stub "+slug, models.PlatformLinkedIn),
		messages:   msgs,
	}
}

func (s *stubSource) Fetch(ctx context.Context) ([]*models.InboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return s.messages, s.err
}

func (s *stubSource) MaintainActivity(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity++
	return nil
}

type memorySeenSet struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memorySeenSet) MarkSeen(_ context.Context, fp string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[fp] {
		return false, nil
	}
	m.seen[fp] = true
	return true, nil
}

func (m *memorySeenSet) Forget(_ context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, fp)
	return nil
}

type requeueSource struct {
	*stubSource
	requeued []*models.InboundMessage
}

func (s *requeueSource) Requeue(_ context.Context, msgs ...*models.InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeued = append(s.requeued, msgs...)
	return nil
}

// flakyStore fails to save messages from one sender.
type flakyStore struct {
	MessageStore
	failSender string
}

func (s *flakyStore) SaveMessage(ctx context.Context, m *models.Message) error {
	if m.SenderName == s.failSender {
		return errors.New("database is locked")
	}
	return s.MessageStore.SaveMessage(ctx, m)
}

type heldLocker struct {
	held bool
}

func (l *heldLocker) AcquireLock(context.Context, string, time.Duration) (bool, func(), error) {
	return !l.held, func() {}, nil
}

type recordingGraph struct {
	mu      sync.Mutex
	senders []string
}

func (g *recordingGraph) RecordMessage(_ context.Context, m *models.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.senders = append(g.senders, m.SenderName)
	return nil
}

type monitorFixture struct {
	monitor  *MonitorService
	registry *sources.Registry
	store    interface {
		MessageStore
		DashboardStore
	}
	pub   *recordingPublisher
	graph *recordingGraph
}

func newMonitorFixture(t *testing.T, srcs ...sources.Source) *monitorFixture {
	t.Helper()
	log := logger.Nop()
	reg := sources.NewRegistry(log)
	for _, s := range srcs {
		if err := reg.Register(s); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	store := newTestStore(t)
	alerts := NewAlertService(store, 40, nil, log)
	analyzer := newTestAnalyzer(t, false)

	pub := &recordingPublisher{}
	graph := &recordingGraph{}
	m := NewMonitorService(reg, analyzer, store, alerts, MonitorConfig{}, nil, log)
	m.SetEventPublisher(pub)
	m.SetGraph(graph)
	return &monitorFixture{monitor: m, registry: reg, store: store, pub: pub, graph: graph}
}

const (
	riskyText  = "Hi dear, please switch to whatsapp and send me your phone number immediately"
	benignText = "Thanks for connecting, looking forward to the meeting"
)

func TestPollSourceProcessesMessages(t *testing.T) {
	src := newStubSource("linkedin", inbound("mallory", riskyText), inbound("alice", benignText))
	f := newMonitorFixture(t, src)
	ctx := context.Background()

	res, err := f.monitor.PollSource(ctx, "linkedin")
	if err != nil {
		t.Fatalf("PollSource: %v", err)
	}
	if res.Fetched != 2 || res.Processed != 2 || res.AlertsCreated != 1 || res.Duplicates != 0 {
		t.Fatalf("result = %+v", res)
	}

	// The conversation list is re-read on every poll.
	res, err = f.monitor.PollSource(ctx, "linkedin")
	if err != nil {
		t.Fatalf("second PollSource: %v", err)
	}
	if res.Duplicates != 2 || res.Processed != 0 || res.AlertsCreated != 0 {
		t.Fatalf("second result = %+v", res)
	}

	stats, err := f.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalMessages != 2 || stats.HighRisk != 1 || stats.OpenAlerts != 1 || stats.ActiveThreats != 1 {
		t.Errorf("dashboard stats = %+v", stats)
	}

	if len(f.graph.senders) != 1 || f.graph.senders[0] != "mallory" {
		t.Errorf("graph recorded %v, want [mallory]", f.graph.senders)
	}
	if len(f.pub.messages) != 2 || len(f.pub.polls) != 2 {
		t.Errorf("published %d messages and %d polls", len(f.pub.messages), len(f.pub.polls))
	}

	ms := f.monitor.Stats()
	if ms.MessagesProcessed != 2 || ms.Duplicates != 2 || ms.AlertsCreated != 1 || ms.MessagesFetched != 4 {
		t.Errorf("monitor stats = %+v", ms)
	}
}

func TestSeenSetSkipsAnalysis(t *testing.T) {
	src := newStubSource("linkedin", inbound("mallory", riskyText))
	f := newMonitorFixture(t, src)
	f.monitor.SetSeenSet(&memorySeenSet{})
	ctx := context.Background()

	if _, err := f.monitor.PollSource(ctx, "linkedin"); err != nil {
		t.Fatalf("PollSource: %v", err)
	}
	res, err := f.monitor.PollSource(ctx, "linkedin")
	if err != nil {
		t.Fatalf("PollSource: %v", err)
	}
	if res.Duplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", res.Duplicates)
	}
	if len(f.pub.messages) != 1 {
		t.Errorf("published %d messages, want 1", len(f.pub.messages))
	}
}

func TestPollSourceSkipsWhenLocked(t *testing.T) {
	src := newStubSource("linkedin", inbound("mallory", riskyText))
	f := newMonitorFixture(t, src)
	f.monitor.SetLocker(&heldLocker{held: true})

	res, err := f.monitor.PollSource(context.Background(), "linkedin")
	if err != nil {
		t.Fatalf("PollSource: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("result = %+v, want skipped", res)
	}
	if src.fetches != 0 {
		t.Fatalf("locked source fetched %d times", src.fetches)
	}
}

func TestPollSourceErrors(t *testing.T) {
	src := newStubSource("linkedin")
	src.err = errors.New("login failed")
	f := newMonitorFixture(t, src)
	ctx := context.Background()

	res, err := f.monitor.PollSource(ctx, "linkedin")
	if err == nil || res.Error != "login failed" {
		t.Fatalf("result = %+v err = %v", res, err)
	}
	if _, err := f.monitor.PollSource(ctx, "missing"); !errors.Is(err, sources.ErrSourceNotFound) {
		t.Fatalf("missing source error = %v", err)
	}

	status := f.monitor.Sources()
	if len(status) != 1 || status[0].LastError != "login failed" || status[0].PollCount != 1 {
		t.Fatalf("status = %+v", status)
	}
}

func TestPollSourceRequeuesFailedMessages(t *testing.T) {
	src := &requeueSource{stubSource: newStubSource("queue", inbound("mallory", riskyText), inbound("alice", benignText))}
	f := newMonitorFixture(t, src)
	seen := &memorySeenSet{}
	f.monitor.SetSeenSet(seen)
	f.monitor.store = &flakyStore{MessageStore: f.store, failSender: "mallory"}

	res, err := f.monitor.PollSource(context.Background(), "queue")
	if err != nil {
		t.Fatalf("PollSource: %v", err)
	}
	if res.Processed != 1 || res.Requeued != 1 {
		t.Fatalf("result = %+v, want 1 processed and 1 requeued", res)
	}
	if len(src.requeued) != 1 || src.requeued[0].SenderName != "mallory" {
		t.Fatalf("requeued = %+v, want [mallory]", src.requeued)
	}
	if seen.seen[src.requeued[0].Fingerprint()] {
		t.Error("failed message still marked seen, a retry would be skipped")
	}
}

func TestPollSourceWithoutRequeuer(t *testing.T) {
	src := newStubSource("linkedin", inbound("mallory", riskyText))
	f := newMonitorFixture(t, src)
	f.monitor.store = &flakyStore{MessageStore: f.store, failSender: "mallory"}

	res, err := f.monitor.PollSource(context.Background(), "linkedin")
	if err != nil {
		t.Fatalf("PollSource: %v", err)
	}
	if res.Processed != 0 || res.Requeued != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestPollSourceProcessesPartialFetch(t *testing.T) {
	src := &requeueSource{stubSource: newStubSource("queue", inbound("alice", benignText))}
	src.err = errors.New("LPOP failed")
	f := newMonitorFixture(t, src)

	res, err := f.monitor.PollSource(context.Background(), "queue")
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if res.Fetched != 1 || res.Processed != 1 || res.Error != "LPOP failed" {
		t.Fatalf("result = %+v", res)
	}
	if len(src.requeued) != 0 {
		t.Errorf("requeued %d processed messages", len(src.requeued))
	}
}

func TestRunOnceJoinsErrors(t *testing.T) {
	good := newStubSource("a-good", inbound("alice", benignText))
	bad := newStubSource("b-bad")
	bad.err = errors.New("session expired")
	f := newMonitorFixture(t, good, bad)

	results, err := f.monitor.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce returned no error")
	}
	if len(results) != 2 || results[0].Processed != 1 || results[1].Error == "" {
		t.Fatalf("results = %+v", results)
	}
	stats := f.monitor.Stats()
	if stats.Cycles != 1 || stats.LastError != "b-bad: session expired" {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMaintainActivity(t *testing.T) {
	src := newStubSource("linkedin")
	f := newMonitorFixture(t, src)

	f.monitor.MaintainActivity(context.Background())
	if src.activity != 1 {
		t.Fatalf("activity = %d, want 1", src.activity)
	}

	f.monitor.SetLocker(&heldLocker{held: true})
	f.monitor.MaintainActivity(context.Background())
	if src.activity != 1 {
		t.Fatalf("activity ran while locked")
	}
}

func TestIngest(t *testing.T) {
	f := newMonitorFixture(t)

	res, err := f.monitor.Ingest(context.Background(), &models.AnalyzeRequest{
		SenderName: "Manual Sender",
		Content:    riskyText,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Message.Platform != models.PlatformManual || res.Message.ReceivedAt.IsZero() {
		t.Errorf("message = %+v", res.Message)
	}
	if res.Alert == nil {
		t.Error("no alert for risky message")
	}

	if _, err := f.monitor.Ingest(context.Background(), &models.AnalyzeRequest{SenderName: "x"}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty ingest error = %v", err)
	}
}

func TestStartStop(t *testing.T) {
	src := newStubSource("linkedin", inbound("alice", benignText))
	f := newMonitorFixture(t, src)

	done := make(chan error, 1)
	go func() { done <- f.monitor.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.monitor.Stats().Cycles == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	f.monitor.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
	if f.monitor.Stats().Cycles == 0 {
		t.Fatal("no cycle ran")
	}
}

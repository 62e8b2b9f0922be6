package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"honeyshield/internal/config"
	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

type fakeStore struct {
	payloads [][]byte
	err      error
	pushErr  error
	gotKey   string
	gotMax   int
	pushed   map[string][][]byte
}

func (f *fakeStore) PopQueue(_ context.Context, queue string, max int, _ time.Duration) ([][]byte, error) {
	f.gotKey, f.gotMax = queue, max
	return f.payloads, f.err
}

func (f *fakeStore) PushQueue(_ context.Context, queue string, payloads ...[]byte) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	if f.pushed == nil {
		f.pushed = make(map[string][][]byte)
	}
	f.pushed[queue] = append(f.pushed[queue], payloads...)
	return nil
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		check   func(t *testing.T, m *models.InboundMessage)
	}{
		{
			name:    "full message",
			payload: `{"platform":"linkedin","sender_name":"Jane","sender_profile_url":"https://www.linkedin.com/in/jane","message_content":" hi ","timestamp":"2024-03-04T10:00:00Z"}`,
			check: func(t *testing.T, m *models.InboundMessage) {
				if m.Platform != models.PlatformLinkedIn || m.Content != "hi" || m.SourceSlug != "queue" {
					t.Errorf("message = %+v", m)
				}
				if !m.ReceivedAt.Equal(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)) {
					t.Errorf("received at = %v", m.ReceivedAt)
				}
			},
		},
		{
			name:    "defaults",
			payload: `{"message_content":"hello"}`,
			check: func(t *testing.T, m *models.InboundMessage) {
				if m.Platform != models.PlatformManual || m.SenderName != "Unknown" || m.ReceivedAt.IsZero() {
					t.Errorf("message = %+v", m)
				}
			},
		},
		{name: "empty content", payload: `{"sender_name":"x","message_content":"  "}`, wantErr: true},
		{name: "not json", payload: `hello`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			tt.check(t, m)
		})
	}
}

func TestFetchDropsMalformed(t *testing.T) {
	good, _ := Encode(&models.InboundMessage{SenderName: "Jane", Content: "switch to whatsapp"})
	reader := &fakeStore{payloads: [][]byte{good, []byte("{")}}
	s := New(config.QueueConfig{Enabled: true, BatchSize: 5}, reader, logger.Nop())

	msgs, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(msgs) != 1 || msgs[0].SenderName != "Jane" {
		t.Fatalf("messages = %+v", msgs)
	}
	if reader.gotKey != "inbox" || reader.gotMax != 5 {
		t.Errorf("popped %q max %d", reader.gotKey, reader.gotMax)
	}
}

func TestFetchError(t *testing.T) {
	reader := &fakeStore{err: errors.New("connection refused")}
	s := New(config.QueueConfig{Enabled: true}, reader, logger.Nop())
	if _, err := s.Fetch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestFetchKeepsPoppedPayloadsOnError(t *testing.T) {
	good, _ := Encode(&models.InboundMessage{SenderName: "Jane", Content: "move to telegram"})
	store := &fakeStore{payloads: [][]byte{good}, err: errors.New("LPOP failed")}
	s := New(config.QueueConfig{Enabled: true, BatchSize: 5}, store, logger.Nop())

	msgs, err := s.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(msgs) != 1 || msgs[0].Content != "move to telegram" {
		t.Fatalf("messages = %+v, want the popped message", msgs)
	}
}

func TestRequeue(t *testing.T) {
	store := &fakeStore{}
	s := New(config.QueueConfig{Enabled: true, MaxAttempts: 3}, store, logger.Nop())

	fresh := &models.InboundMessage{SenderName: "Jane", Content: "hello"}
	worn := &models.InboundMessage{SenderName: "Eve", Content: "send cv", Attempts: 2}
	if err := s.Requeue(context.Background(), fresh, worn, nil); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	retry := store.pushed["inbox"]
	if len(retry) != 1 {
		t.Fatalf("requeued %d payloads, want 1", len(retry))
	}
	m, err := Decode(retry[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.SenderName != "Jane" || m.Attempts != 1 {
		t.Errorf("requeued = %+v, want Jane with 1 attempt", m)
	}
	if fresh.Attempts != 0 {
		t.Errorf("caller's message mutated: attempts = %d", fresh.Attempts)
	}

	dead := store.pushed["inbox"+DeadLetterSuffix]
	if len(dead) != 1 {
		t.Fatalf("dead-lettered %d payloads, want 1", len(dead))
	}
	if m, _ := Decode(dead[0]); m == nil || m.SenderName != "Eve" || m.Attempts != 3 {
		t.Errorf("dead letter = %+v", m)
	}
}

func TestRequeuePushError(t *testing.T) {
	store := &fakeStore{pushErr: errors.New("READONLY")}
	s := New(config.QueueConfig{Enabled: true}, store, logger.Nop())
	err := s.Requeue(context.Background(), &models.InboundMessage{Content: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
}

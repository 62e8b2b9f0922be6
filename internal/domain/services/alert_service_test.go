package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"honeyshield/internal/domain/models"
	"honeyshield/internal/infrastructure/database/repository"
	"honeyshield/pkg/logger"
)

func analysisWithScore(score int) *models.MessageAnalysis {
	return &models.MessageAnalysis{
		Message: &models.InboundMessage{
			SourceSlug:       "linkedin",
			Platform:         models.PlatformLinkedIn,
			SenderName:       "Jane Recruiter",
			SenderProfileURL: "https://www.linkedin.com/in/jane",
			Content:          "Let's continue on telegram",
		},
		Rule: models.RuleAnalysis{
			Score: score,
			Notes: []string{models.NotePrivateInfoRequest},
		},
		Classification:    &models.ThreatClassification{PrimaryTypes: []string{ThreatTypePlatformMigration}},
		Techniques:        []models.TechniqueRef{{ID: TechniqueGatherIdentity}, {ID: TechniqueSearchVictimSites}},
		FinalScore:        score,
		Severity:          SeverityForScore(score),
		RecommendedAction: RecommendedAction(SeverityForScore(score)),
	}
}

func TestProcessAnalysisThreshold(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pub := &recordingPublisher{}
	notifier := &recordingNotifier{enabled: true}

	svc := NewAlertService(store, 0, nil, logger.Nop())
	svc.SetEventPublisher(pub)
	svc.SetNotifier(notifier)

	if svc.Threshold() != DefaultAlertThreshold {
		t.Fatalf("threshold = %d, want %d", svc.Threshold(), DefaultAlertThreshold)
	}

	alert, err := svc.ProcessAnalysis(ctx, analysisWithScore(39), nil)
	if err != nil || alert != nil {
		t.Fatalf("below threshold: alert=%v err=%v, want nil nil", alert, err)
	}

	id := uuid.New()
	alert, err = svc.ProcessAnalysis(ctx, analysisWithScore(40), &id)
	if err != nil {
		t.Fatalf("ProcessAnalysis: %v", err)
	}
	if alert == nil {
		t.Fatal("no alert at threshold")
	}
	if !strings.HasPrefix(alert.AlertID, "ALT-") || len(alert.AlertID) != 12 {
		t.Errorf("alert id = %q", alert.AlertID)
	}
	if alert.Status != models.AlertStatusOpen {
		t.Errorf("status = %s, want OPEN", alert.Status)
	}
	if alert.SourcePlatform != "LinkedIn" {
		t.Errorf("source platform = %q, want LinkedIn", alert.SourcePlatform)
	}
	if alert.ThreatType != ThreatTypePlatformMigration {
		t.Errorf("threat type = %q", alert.ThreatType)
	}
	if alert.Indicators != models.NotePrivateInfoRequest {
		t.Errorf("indicators = %q", alert.Indicators)
	}
	if alert.MessageID == nil || *alert.MessageID != id {
		t.Errorf("message id = %v, want %v", alert.MessageID, id)
	}

	if len(pub.alerts) != 1 {
		t.Errorf("published %d alerts, want 1", len(pub.alerts))
	}
	if notifier.count() != 1 {
		t.Errorf("notified %d alerts, want 1", notifier.count())
	}

	stored, err := svc.GetAlert(ctx, alert.AlertID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if stored.RiskScore != 40 {
		t.Errorf("stored risk score = %d, want 40", stored.RiskScore)
	}
}

func TestCreateAlertSkipsDisabledNotifier(t *testing.T) {
	notifier := &recordingNotifier{enabled: false}
	svc := NewAlertService(newTestStore(t), 40, nil, logger.Nop())
	svc.SetNotifier(notifier)

	if _, err := svc.CreateAlert(context.Background(), analysisWithScore(90), nil); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	if notifier.count() != 0 {
		t.Fatalf("disabled notifier received %d alerts", notifier.count())
	}
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewAlertService(newTestStore(t), 40, nil, logger.Nop())
	svc.SetEventPublisher(pub)

	alert, err := svc.CreateAlert(ctx, analysisWithScore(85), nil)
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, alert.AlertID, models.AlertUpdate{Status: "CLOSED"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("invalid status error = %v, want ErrInvalidStatus", err)
	}

	updated, err := svc.UpdateStatus(ctx, alert.AlertID, models.AlertUpdate{
		Status:       models.AlertStatusFalsePositive,
		AnalystNotes: "known recruiter",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != models.AlertStatusFalsePositive || updated.AnalystNotes != "known recruiter" {
		t.Errorf("updated = %+v", updated)
	}
	if updated.ResolvedAt == nil {
		t.Error("resolved_at not set for false positive")
	}
	if len(pub.updates) != 1 {
		t.Errorf("published %d updates, want 1", len(pub.updates))
	}

	if _, err := svc.UpdateStatus(ctx, "ALT-MISSING0", models.AlertUpdate{Status: models.AlertStatusResolved}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing alert error = %v, want ErrNotFound", err)
	}
}

func TestClampAlertHours(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 24},
		{-5, 24},
		{48, 48},
		{MaxAlertHours, MaxAlertHours},
		{MaxAlertHours + 1, MaxAlertHours},
		{math.MaxInt, MaxAlertHours},
	}
	for _, tt := range tests {
		if got := ClampAlertHours(tt.in); got != tt.want {
			t.Errorf("ClampAlertHours(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRecentAlertsHugeWindow(t *testing.T) {
	ctx := context.Background()
	svc := NewAlertService(newTestStore(t), 40, nil, logger.Nop())
	if _, err := svc.CreateAlert(ctx, analysisWithScore(80), nil); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	got, err := svc.RecentAlerts(ctx, math.MaxInt, "", 10)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d alerts, want 1", len(got))
	}

	// Two years on, the clamped window no longer reaches the alert.
	svc.now = func() time.Time { return time.Now().AddDate(2, 0, 0) }
	got, err = svc.RecentAlerts(ctx, math.MaxInt, "", 10)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d alerts from a year-capped window, want 0", len(got))
	}
}

func TestRecentAlertsAndStats(t *testing.T) {
	ctx := context.Background()
	svc := NewAlertService(newTestStore(t), 40, nil, logger.Nop())

	for _, score := range []int{45, 65, 95} {
		if _, err := svc.CreateAlert(ctx, analysisWithScore(score), nil); err != nil {
			t.Fatalf("CreateAlert(%d): %v", score, err)
		}
	}

	all, err := svc.RecentAlerts(ctx, 0, "", 10)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d alerts, want 3", len(all))
	}

	critical, err := svc.RecentAlerts(ctx, 24, models.SeverityCritical, 10)
	if err != nil {
		t.Fatalf("RecentAlerts(critical): %v", err)
	}
	if len(critical) != 1 || critical[0].RiskScore != 95 {
		t.Fatalf("critical alerts = %+v", critical)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.Open != 3 {
		t.Errorf("stats = %+v, want 3 total and open", stats)
	}
}

package services

import (
	"math"
	"reflect"
	"testing"

	"honeyshield/internal/domain/models"
)

func newTestRuleEngine() *RuleEngine {
	return NewRuleEngine(NewStaticLexiconStore(DefaultLexicon()), DefaultRuleWeights(), 40, 70)
}

func TestRuleEngineAnalyze(t *testing.T) {
	engine := newTestRuleEngine()

	tests := []struct {
		name        string
		text        string
		wantScore   int
		wantLevel   models.RiskLevel
		wantNotes   []string
		wantKeyword string
	}{
		{
			name:      "benign",
			text:      "Thanks for connecting, looking forward to the meeting",
			wantScore: 0,
			wantLevel: models.RiskLevelLow,
			wantNotes: []string{},
		},
		{
			name:        "flattery with strong sentiment",
			text:        "You are so beautiful",
			wantScore:   25,
			wantLevel:   models.RiskLevelLow,
			wantNotes:   []string{},
			wantKeyword: "beautiful",
		},
		{
			name:        "platform migration with urgency",
			text:        "Hi dear, please switch to whatsapp and send me your phone number immediately",
			wantScore:   100,
			wantLevel:   models.RiskLevelHigh,
			wantNotes:   []string{models.NoteRelationshipEscalation, models.NotePrivateInfoRequest},
			wantKeyword: "switch to whatsapp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Analyze(tt.text)
			if got.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", got.Score, tt.wantScore)
			}
			if level := engine.LevelFor(got.Score); level != tt.wantLevel {
				t.Errorf("level = %s, want %s", level, tt.wantLevel)
			}
			if !reflect.DeepEqual(got.Notes, tt.wantNotes) {
				t.Errorf("notes = %v, want %v", got.Notes, tt.wantNotes)
			}
			if tt.wantKeyword != "" && !containsString(got.Keywords, tt.wantKeyword) {
				t.Errorf("keywords %v missing %q", got.Keywords, tt.wantKeyword)
			}
		})
	}
}

func TestRuleEngineKeywordOrder(t *testing.T) {
	got := newTestRuleEngine().Analyze("Hi dear, please switch to whatsapp and send me your phone number immediately")
	want := []string{"dear", "whatsapp", "send me your", "switch to whatsapp", "your phone number"}
	if !reflect.DeepEqual(got.Keywords, want) {
		t.Fatalf("keywords = %v, want %v", got.Keywords, want)
	}
	if !got.Escalation || !got.PrivateInfoRequest {
		t.Fatalf("escalation=%v private=%v, want both", got.Escalation, got.PrivateInfoRequest)
	}
}

func TestRiskLevelFor(t *testing.T) {
	tests := []struct {
		score int
		want  models.RiskLevel
	}{
		{0, models.RiskLevelLow},
		{39, models.RiskLevelLow},
		{40, models.RiskLevelMedium},
		{69, models.RiskLevelMedium},
		{70, models.RiskLevelHigh},
		{100, models.RiskLevelHigh},
	}
	for _, tt := range tests {
		if got := RiskLevelFor(tt.score, 40, 70); got != tt.want {
			t.Errorf("RiskLevelFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestSentimentPolarity(t *testing.T) {
	scorer := NewSentimentScorer(NewStaticLexiconStore(DefaultLexicon()))

	tests := []struct {
		text string
		want float64
	}{
		{"the quarterly report is attached", 0},
		{"You are so beautiful", 1.0},
		{"not good", -0.35},
		{"good", 0.7},
	}
	for _, tt := range tests {
		got := scorer.Polarity(tt.text)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Polarity(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestLexiconMergeAddsTerms(t *testing.T) {
	extra, err := ParseLexicon([]byte("analysis:\n  suspicious_keywords:\n    - Honeypot\n"))
	if err != nil {
		t.Fatalf("ParseLexicon: %v", err)
	}
	merged := DefaultLexicon().Merge(extra)
	engine := NewRuleEngine(NewStaticLexiconStore(merged), DefaultRuleWeights(), 40, 70)

	got := engine.Analyze("this looks like a honeypot")
	if !containsString(got.Keywords, "honeypot") {
		t.Fatalf("keywords = %v, want honeypot", got.Keywords)
	}
	if got.Score != 10 {
		t.Fatalf("score = %d, want 10", got.Score)
	}
}

func containsString(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}

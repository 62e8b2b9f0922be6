package services

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

func smallForestConfig() RandomForestConfig {
	cfg := DefaultRandomForestConfig()
	cfg.NumTrees = 15
	cfg.MaxDepth = 8
	return cfg
}

func trainedClassifier(t *testing.T) *PhishingClassifier {
	t.Helper()
	c := NewPhishingClassifier(smallForestConfig(), logger.Nop())
	acc, err := c.TrainGenerated(400)
	if err != nil {
		t.Fatalf("TrainGenerated: %v", err)
	}
	if acc < 0.8 {
		t.Fatalf("holdout accuracy = %.2f, want >= 0.8", acc)
	}
	return c
}

func TestPhishingClassifierSeparatesClasses(t *testing.T) {
	c := trainedClassifier(t)

	phish, err := c.Predict("URGENT: verify your account immediately or it will be suspended. Click http://secure-login.example.com and send me your password")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	legit, err := c.Predict("Thanks for the great talk at the conference last week. Would you be open to a call about the platform team?")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if phish.Probability <= legit.Probability {
		t.Fatalf("phishing p=%.2f not above legitimate p=%.2f", phish.Probability, legit.Probability)
	}
	if phish.RiskScore != int(phish.Probability*100) {
		t.Errorf("risk score = %d, want %d", phish.RiskScore, int(phish.Probability*100))
	}
	if phish.Confidence > 0.95 {
		t.Errorf("confidence = %v, want <= 0.95", phish.Confidence)
	}
}

func TestPhishingClassifierUntrained(t *testing.T) {
	c := NewPhishingClassifier(smallForestConfig(), logger.Nop())
	if c.IsTrained() {
		t.Fatal("new classifier reports trained")
	}
	if _, err := c.Predict("hello"); err != ErrModelNotTrained {
		t.Fatalf("Predict error = %v, want ErrModelNotTrained", err)
	}
}

func TestPhishingClassifierSaveLoad(t *testing.T) {
	c := trainedClassifier(t)
	path := filepath.Join(t.TempDir(), "model.json")
	if err := c.SaveModel(path); err != nil {
		t.Fatalf("SaveModel: %v", err)
	}

	loaded := NewPhishingClassifier(smallForestConfig(), logger.Nop())
	if err := loaded.LoadModel(path); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	text := "Let's continue on telegram, I have an exclusive crypto opportunity"
	want, _ := c.Predict(text)
	got, err := loaded.Predict(text)
	if err != nil {
		t.Fatalf("Predict after load: %v", err)
	}
	if got.Probability != want.Probability {
		t.Fatalf("loaded probability = %v, want %v", got.Probability, want.Probability)
	}
	if info := loaded.ModelInfo(); info.HoldoutAccuracy != c.ModelInfo().HoldoutAccuracy {
		t.Errorf("holdout accuracy not persisted: %v", info.HoldoutAccuracy)
	}
}

func TestEnsureModelTrainsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "model.json")
	c := NewPhishingClassifier(smallForestConfig(), logger.Nop())
	if err := c.EnsureModel(path, 200); err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
	if !c.IsTrained() {
		t.Fatal("classifier not trained")
	}

	again := NewPhishingClassifier(smallForestConfig(), logger.Nop())
	if err := again.EnsureModel(path, 200); err != nil {
		t.Fatalf("EnsureModel reload: %v", err)
	}
	if !again.IsTrained() {
		t.Fatal("saved model not loaded")
	}
}

func TestCorpusGeneratorDeterministic(t *testing.T) {
	a := NewCorpusGenerator(7).Generate(50)
	b := NewCorpusGenerator(7).Generate(50)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different corpora")
	}

	var phishing int
	for _, s := range a {
		if s.Label == 1 {
			phishing++
		}
	}
	if phishing == 0 || phishing == len(a) {
		t.Fatalf("corpus not balanced: %d of %d phishing", phishing, len(a))
	}
}

func TestSeverityForProbability(t *testing.T) {
	tests := []struct {
		p    float64
		want models.Severity
	}{
		{0.1, models.SeverityLow},
		{0.4, models.SeverityLow},
		{0.41, models.SeverityMedium},
		{0.6, models.SeverityMedium},
		{0.61, models.SeverityHigh},
		{0.8, models.SeverityHigh},
		{0.81, models.SeverityCritical},
	}
	for _, tt := range tests {
		if got := SeverityForProbability(tt.p); got != tt.want {
			t.Errorf("SeverityForProbability(%v) = %s, want %s", tt.p, got, tt.want)
		}
	}
	if got := SeverityForScore(75); got != models.SeverityHigh {
		t.Errorf("SeverityForScore(75) = %s, want HIGH", got)
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(nil); !reflect.DeepEqual(got.PrimaryTypes, []string{ThreatTypeUnclassified}) {
		t.Fatalf("Classify(nil) primary = %v", got.PrimaryTypes)
	}

	got := Classify(&models.ClassifierResult{
		KeyIndicators: []string{
			"High urgency language (3 instances)",
			"Personal information requests (2 instances)",
			"Platform migration attempt (1 instances)",
		},
		BehavioralPatterns: []string{"Scarcity tactics"},
	})
	wantPrimary := []string{ThreatTypeUrgency, ThreatTypePlatformMigration}
	if !reflect.DeepEqual(got.PrimaryTypes, wantPrimary) {
		t.Errorf("primary = %v, want %v", got.PrimaryTypes, wantPrimary)
	}
	if !reflect.DeepEqual(got.SecondaryTypes, []string{ThreatTypeInfoHarvesting}) {
		t.Errorf("secondary = %v", got.SecondaryTypes)
	}
	if got.Confidence < 0.69 || got.Confidence > 0.71 {
		t.Errorf("confidence = %v, want 0.7", got.Confidence)
	}
	if !reflect.DeepEqual(got.TechniquesDetected, []string{"Scarcity tactics"}) {
		t.Errorf("techniques detected = %v", got.TechniquesDetected)
	}
}

func TestTemporalContextAt(t *testing.T) {
	monday := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	got := TemporalContextAt(monday)
	if got.DayOfWeek != 0 || got.TimeContext != models.TimeContextBusinessHours {
		t.Errorf("monday 10:00 = %+v", got)
	}

	saturday := time.Date(2024, 3, 9, 11, 0, 0, 0, time.UTC)
	got = TemporalContextAt(saturday)
	if got.DayOfWeek != 5 || got.TimeContext != models.TimeContextOffHours {
		t.Errorf("saturday 11:00 = %+v", got)
	}

	late := time.Date(2024, 3, 5, 22, 30, 0, 0, time.UTC)
	if got := TemporalContextAt(late); got.TimeContext != models.TimeContextOffHours || got.HourOfDay != 22 {
		t.Errorf("tuesday 22:30 = %+v", got)
	}
}

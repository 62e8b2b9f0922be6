package services

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

// Threat types assigned by Classify.
const (
	ThreatTypeUrgency           = "Urgency-Based Phishing"
	ThreatTypeAuthority         = "Authority Impersonation"
	ThreatTypeFinancial         = "Financial Scam"
	ThreatTypePlatformMigration = "Platform Migration Attack"
	ThreatTypeInfoHarvesting    = "Information Harvesting"
	ThreatTypeUnclassified      = "Unclassified Social Engineering"
)

// HoldoutFraction is the share of the corpus kept out of training for accuracy.
const HoldoutFraction = 0.2

const classifierModelName = "honeyshield-phishing-forest"

// PhishingClassifier predicts the probability that a message is a
// social-engineering attempt from its linguistic features.
type PhishingClassifier struct {
	extractor *FeatureExtractor
	forest    *RandomForest
	seed      int64
	logger    *logger.Logger
}

func NewPhishingClassifier(cfg RandomForestConfig, log *logger.Logger) *PhishingClassifier {
	return &PhishingClassifier{
		extractor: NewFeatureExtractor(),
		forest:    NewRandomForest(cfg, FeatureNames, log),
		seed:      cfg.Seed,
		logger:    log.WithComponent("phishing-classifier"),
	}
}

// ExtractFeatures exposes the feature analysis used for predictions.
func (c *PhishingClassifier) ExtractFeatures(text string) models.LinguisticFeatures {
	return c.extractor.Extract(text)
}

// Train fits the forest on samples after holding out HoldoutFraction of each
// class, and returns the holdout accuracy.
func (c *PhishingClassifier) Train(samples []models.TrainingSample) (float64, error) {
	train, holdout := SplitHoldout(samples, HoldoutFraction, c.seed)
	if len(train) == 0 {
		return 0, errors.New("empty training set")
	}

	data, labels := c.vectorize(train)
	if err := c.forest.Train(data, labels); err != nil {
		return 0, err
	}

	hData, hLabels := c.vectorize(holdout)
	acc, err := c.forest.Accuracy(hData, hLabels)
	if err != nil {
		return 0, err
	}
	c.forest.SetHoldoutAccuracy(acc)

	c.logger.Info().
		Int("train", len(train)).
		Int("holdout", len(holdout)).
		Float64("accuracy", acc).
		Msg("phishing classifier trained")
	return acc, nil
}

// TrainGenerated trains on a freshly generated corpus of size samples.
func (c *PhishingClassifier) TrainGenerated(size int) (float64, error) {
	return c.Train(NewCorpusGenerator(c.seed).Generate(size))
}

func (c *PhishingClassifier) vectorize(samples []models.TrainingSample) ([][]float64, []int) {
	data := make([][]float64, len(samples))
	labels := make([]int, len(samples))
	for i, s := range samples {
		data[i] = c.extractor.Vector(c.extractor.Extract(s.Text))
		labels[i] = s.Label
	}
	return data, labels
}

// SaveModel writes the model as JSON, creating parent directories.
func (c *PhishingClassifier) SaveModel(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := c.forest.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("save model: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadModel reads a model written by SaveModel.
func (c *PhishingClassifier) LoadModel(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := c.forest.Load(f); err != nil {
		return fmt.Errorf("load model %s: %w", path, err)
	}
	c.logger.Info().Str("path", path).Msg("phishing model loaded")
	return nil
}

// EnsureModel loads the model at path, or trains one on a generated corpus
// and saves it there when the file is missing or unreadable.
func (c *PhishingClassifier) EnsureModel(path string, size int) error {
	if path != "" {
		err := c.LoadModel(path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn().Err(err).Str("path", path).Msg("model unreadable, retraining")
		}
	}

	if _, err := c.TrainGenerated(size); err != nil {
		return fmt.Errorf("train classifier: %w", err)
	}
	if path == "" {
		return nil
	}
	if err := c.SaveModel(path); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("failed to save trained model")
	}
	return nil
}

// IsTrained reports whether predictions are available.
func (c *PhishingClassifier) IsTrained() bool {
	return c.forest.IsTrained()
}

// Predict scores text. It returns ErrModelNotTrained before Train or Load.
func (c *PhishingClassifier) Predict(text string) (*models.ClassifierResult, error) {
	features := c.extractor.Extract(text)
	p, err := c.forest.PredictProba(c.extractor.Vector(features))
	if err != nil {
		return nil, err
	}

	indicators := keyIndicators(features)
	patterns := behavioralPatterns(features)
	return &models.ClassifierResult{
		Probability:        p,
		Severity:           SeverityForProbability(p),
		RiskScore:          int(p * 100),
		Confidence:         math.Min(p+0.1, 0.95),
		KeyIndicators:      indicators,
		BehavioralPatterns: patterns,
		Features:           features,
		Summary:            explanationSummary(indicators, patterns),
	}, nil
}

// ModelInfo describes the current model.
func (c *PhishingClassifier) ModelInfo() models.ModelInfo {
	cfg := c.forest.Config()
	trainedAt, size := c.forest.TrainingMeta()
	return models.ModelInfo{
		Name:              classifierModelName,
		Trained:           c.forest.IsTrained(),
		TrainedAt:         trainedAt,
		TrainingSize:      size,
		HoldoutAccuracy:   c.forest.HoldoutAccuracy(),
		NumTrees:          cfg.NumTrees,
		MaxDepth:          cfg.MaxDepth,
		FeatureNames:      FeatureNames,
		FeatureImportance: c.forest.FeatureImportance(),
	}
}

// SeverityForProbability buckets a phishing probability.
func SeverityForProbability(p float64) models.Severity {
	switch {
	case p > 0.8:
		return models.SeverityCritical
	case p > 0.6:
		return models.SeverityHigh
	case p > 0.4:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// SeverityForScore buckets a 0-100 risk score the same way.
func SeverityForScore(score int) models.Severity {
	return SeverityForProbability(float64(score) / 100)
}

func keyIndicators(f models.LinguisticFeatures) []string {
	out := []string{}
	if n := f["urgency_score"]; n >= 2 {
		out = append(out, fmt.Sprintf("High urgency language (%d instances)", int(n)))
	}
	if n := f["authority_score"]; n >= 2 {
		out = append(out, fmt.Sprintf("Authority impersonation (%d instances)", int(n)))
	}
	if n := f["info_request_score"]; n >= 2 {
		out = append(out, fmt.Sprintf("Personal information requests (%d instances)", int(n)))
	}
	if n := f["platform_migration_score"]; n >= 1 {
		out = append(out, fmt.Sprintf("Platform migration attempt (%d instances)", int(n)))
	}
	if n := f["financial_score"]; n >= 2 {
		out = append(out, fmt.Sprintf("Financial terminology (%d instances)", int(n)))
	}
	if f["link_count"] >= 1 {
		out = append(out, "Contains suspicious links")
	}
	if f["capital_ratio"] > 0.3 {
		out = append(out, "Excessive capitalization")
	}
	return out
}

func behavioralPatterns(f models.LinguisticFeatures) []string {
	out := []string{}
	if f["scarcity_score"] > 0 {
		out = append(out, "Scarcity tactics")
	}
	if f["social_proof_score"] > 0 {
		out = append(out, "Social proof manipulation")
	}
	if f["negative_emotion_score"] > f["positive_emotion_score"] {
		out = append(out, "Fear/negative emotion dominance")
	}
	return out
}

func explanationSummary(indicators, patterns []string) string {
	elements := append(append([]string{}, indicators...), patterns...)
	if len(elements) == 0 {
		return "No strong phishing indicators detected"
	}
	top := elements
	if len(top) > 3 {
		top = top[:3]
	}
	summary := "Phishing detection based on: " + strings.Join(top, ", ")
	if len(elements) > 3 {
		summary += fmt.Sprintf(" and %d more indicators", len(elements)-3)
	}
	return summary
}

var threatRules = []struct {
	marker string
	threat string
	weight float64
}{
	{"urgency", ThreatTypeUrgency, 0.3},
	{"authority", ThreatTypeAuthority, 0.3},
	{"financial", ThreatTypeFinancial, 0.2},
	{"platform migration", ThreatTypePlatformMigration, 0.2},
	{"personal information", ThreatTypeInfoHarvesting, 0.2},
}

// Classify names the kinds of social engineering behind a prediction.
func Classify(r *models.ClassifierResult) models.ThreatClassification {
	var (
		types      []string
		confidence float64
	)
	if r != nil {
		for _, rule := range threatRules {
			for _, ind := range r.KeyIndicators {
				if strings.Contains(strings.ToLower(ind), rule.marker) {
					types = append(types, rule.threat)
					confidence += rule.weight
					break
				}
			}
		}
	}

	out := models.ThreatClassification{
		PrimaryTypes:       []string{ThreatTypeUnclassified},
		SecondaryTypes:     []string{},
		Confidence:         math.Min(confidence, 1.0),
		TechniquesDetected: []string{},
	}
	if len(types) > 0 {
		n := min(2, len(types))
		out.PrimaryTypes = types[:n]
		out.SecondaryTypes = append(out.SecondaryTypes, types[n:]...)
	}
	if r != nil {
		out.TechniquesDetected = append(out.TechniquesDetected, r.BehavioralPatterns...)
	}
	return out
}

// RecommendedAction is the analyst guidance for a severity.
func RecommendedAction(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical:
		return "IMMEDIATE ACTION REQUIRED: Block sender, report to security team, and investigate potential breach"
	case models.SeverityHigh:
		return "HIGH PRIORITY: Isolate conversation, monitor for patterns, and prepare incident response"
	case models.SeverityMedium:
		return "MEDIUM PRIORITY: Flag for review, monitor engagement, and gather additional context"
	case models.SeverityLow:
		return "LOW PRIORITY: Continue normal monitoring with standard precautions"
	}
	return "Monitor with standard security protocols"
}

// TemporalContextAt places t relative to business hours, 9:00 to 17:59 on
// weekdays in t's location.
func TemporalContextAt(t time.Time) models.TemporalContext {
	hour := t.Hour()
	day := (int(t.Weekday()) + 6) % 7 // Monday = 0
	ctx := models.TimeContextOffHours
	if hour >= 9 && hour <= 17 && day < 5 {
		ctx = models.TimeContextBusinessHours
	}
	return models.TemporalContext{
		HourOfDay:   hour,
		DayOfWeek:   day,
		TimeContext: ctx,
		Timestamp:   t,
	}
}

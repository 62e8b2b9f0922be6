package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"honeyshield/internal/detection/sigma"
	"honeyshield/internal/domain/models"
	"honeyshield/internal/metrics"
	"honeyshield/pkg/logger"
)

// MaxBatchSize bounds AnalyzeBatch.
const MaxBatchSize = 100

var (
	ErrEmptyMessage  = errors.New("message content is empty")
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d messages", MaxBatchSize)
)

// MessageAnalyzer combines the rule engine, the phishing classifier and
// Sigma rules into one verdict per message.
type MessageAnalyzer struct {
	rules      *RuleEngine
	classifier *PhishingClassifier // optional
	sigma      *sigma.Engine       // optional
	mitre      *MITREService
	metrics    *metrics.Metrics
	logger     *logger.Logger
	now        func() time.Time
}

func NewMessageAnalyzer(
	rules *RuleEngine,
	classifier *PhishingClassifier,
	sigmaEngine *sigma.Engine,
	mitre *MITREService,
	m *metrics.Metrics,
	log *logger.Logger,
) *MessageAnalyzer {
	return &MessageAnalyzer{
		rules:      rules,
		classifier: classifier,
		sigma:      sigmaEngine,
		mitre:      mitre,
		metrics:    m,
		logger:     log.WithComponent("analyzer"),
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (a *MessageAnalyzer) SetClock(now func() time.Time) {
	a.now = now
}

// Analyze scores one message.
func (a *MessageAnalyzer) Analyze(ctx context.Context, msg *models.InboundMessage) (*models.MessageAnalysis, error) {
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, ErrEmptyMessage
	}
	start := time.Now()
	now := a.now()

	result := &models.MessageAnalysis{
		Message:    msg,
		Rule:       a.rules.Analyze(msg.Content),
		AnalyzedAt: now,
	}

	received := msg.ReceivedAt
	if received.IsZero() {
		received = now
	}
	result.Temporal = TemporalContextAt(received)

	score := result.Rule.Score
	linkCount := 0
	if a.classifier != nil && a.classifier.IsTrained() {
		pred, err := a.classifier.Predict(msg.Content)
		if err != nil {
			a.logger.Warn().Err(err).Msg("classifier prediction failed")
		} else {
			result.Classifier = pred
			score = max(score, pred.RiskScore)
			linkCount = int(pred.Features["link_count"])
		}
	}
	classification := Classify(result.Classifier)
	result.Classification = &classification

	var ruleTechniques []string
	if a.sigma != nil {
		result.RuleMatches = a.sigma.Match(ctx, msg)
		score += sigma.Bonus(result.RuleMatches)
		for _, m := range result.RuleMatches {
			ruleTechniques = append(ruleTechniques, m.Techniques...)
			a.metrics.RuleMatched(m.RuleID)
		}
	}
	score = min(score, MaxRiskScore)

	result.FinalScore = score
	result.RiskLevel = a.rules.LevelFor(score)
	result.Severity = SeverityForScore(score)
	if result.Classifier != nil && result.Classifier.Severity.Rank() > result.Severity.Rank() {
		result.Severity = result.Classifier.Severity
	}

	result.Techniques = a.mitre.MapAnalysis(MappingInput{
		Score:          score,
		Notes:          result.Rule.Notes,
		ThreatTypes:    classification.PrimaryTypes,
		LinkCount:      linkCount,
		RuleTechniques: ruleTechniques,
	})
	result.TechniquesText = FormatTechniques(result.Techniques)
	result.RecommendedAction = RecommendedAction(result.Severity)

	a.metrics.ObserveAnalysis(string(result.RiskLevel), score, time.Since(start).Seconds())
	a.logger.Debug().
		Str("sender", msg.SenderName).
		Int("rule_score", result.Rule.Score).
		Int("final_score", score).
		Str("severity", string(result.Severity)).
		Int("rule_matches", len(result.RuleMatches)).
		Msg("message analyzed")
	return result, nil
}

// AnalyzeBatch analyzes up to MaxBatchSize messages. Messages that fail
// analysis are left out of the results.
func (a *MessageAnalyzer) AnalyzeBatch(ctx context.Context, msgs []*models.InboundMessage) (*models.BatchAnalyzeResult, error) {
	if len(msgs) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	start := time.Now()
	out := &models.BatchAnalyzeResult{Results: make([]*models.MessageAnalysis, 0, len(msgs))}

	total := 0
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := a.Analyze(ctx, m)
		if err != nil {
			a.logger.Debug().Err(err).Msg("skipping message in batch")
			continue
		}
		out.Results = append(out.Results, res)
		total += res.FinalScore
		switch res.RiskLevel {
		case models.RiskLevelHigh:
			out.HighRisk++
		case models.RiskLevelMedium:
			out.Medium++
		}
	}

	out.Total = len(out.Results)
	if out.Total > 0 {
		out.AvgScore = float64(total) / float64(out.Total)
	}
	out.ElapsedMS = time.Since(start).Milliseconds()
	return out, nil
}

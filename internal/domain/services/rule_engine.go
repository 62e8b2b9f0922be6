package services

import (
	"math"
	"regexp"
	"strings"

	"honeyshield/internal/domain/models"
)

// MaxRiskScore caps every score.
const MaxRiskScore = 100

// SentimentThreshold is the |polarity| above which sentiment adds weight.
const SentimentThreshold = 0.5

var (
	escalationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`immediately`),
		regexp.MustCompile(`as soon as possible`),
		regexp.MustCompile(`urgent`),
		regexp.MustCompile(`right away`),
		regexp.MustCompile(`let.me.(call|meet).you`),
		regexp.MustCompile(`we.need.to.talk`),
	}

	privateInfoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`phone.number`),
		regexp.MustCompile(`whatsapp`),
		regexp.MustCompile(`telegram`),
		regexp.MustCompile(`personal.email`),
		regexp.MustCompile(`home.address`),
		regexp.MustCompile(`send.me.your`),
		regexp.MustCompile(`give.me.your`),
	}
)

// RuleWeights are the points each heuristic contributes.
type RuleWeights struct {
	Keyword     int
	Sentiment   int
	Escalation  int
	PrivateInfo int
}

// DefaultRuleWeights mirrors the shipped configuration.
func DefaultRuleWeights() RuleWeights {
	return RuleWeights{Keyword: 10, Sentiment: 15, Escalation: 20, PrivateInfo: 25}
}

// RuleEngine scores message text with keyword and sentiment heuristics.
type RuleEngine struct {
	lexicon         *LexiconStore
	sentiment       *SentimentScorer
	weights         RuleWeights
	mediumThreshold int
	highThreshold   int
}

func NewRuleEngine(lexicon *LexiconStore, weights RuleWeights, mediumThreshold, highThreshold int) *RuleEngine {
	return &RuleEngine{
		lexicon:         lexicon,
		sentiment:       NewSentimentScorer(lexicon),
		weights:         weights,
		mediumThreshold: mediumThreshold,
		highThreshold:   highThreshold,
	}
}

// Analyze scores text. The score is capped at MaxRiskScore.
func (e *RuleEngine) Analyze(text string) models.RuleAnalysis {
	lower := strings.ToLower(text)
	result := models.RuleAnalysis{
		Keywords: []string{},
		Notes:    []string{},
	}

	score, keywords := e.analyzeKeywords(lower)
	result.Keywords = append(result.Keywords, keywords...)

	result.SentimentPolarity = e.sentiment.Polarity(text)
	if math.Abs(result.SentimentPolarity) > SentimentThreshold {
		score += e.weights.Sentiment
	}

	if matchesAny(escalationPatterns, lower) {
		score += e.weights.Escalation
		result.Escalation = true
		result.Notes = append(result.Notes, models.NoteRelationshipEscalation)
	}

	if matchesAny(privateInfoPatterns, lower) {
		score += e.weights.PrivateInfo
		result.PrivateInfoRequest = true
		result.Notes = append(result.Notes, models.NotePrivateInfoRequest)
	}

	if score > MaxRiskScore {
		score = MaxRiskScore
	}
	result.Score = score
	return result
}

func (e *RuleEngine) analyzeKeywords(lower string) (int, []string) {
	lex := e.lexicon.Get()
	score := 0
	var detected []string

	for _, kw := range lex.SuspiciousKeywords {
		if strings.Contains(lower, kw) {
			score += e.weights.Keyword
			detected = append(detected, kw)
		}
	}
	for _, phrase := range lex.HighRiskPhrases {
		if strings.Contains(lower, phrase) {
			score += e.weights.Keyword * 2
			detected = append(detected, phrase)
		}
	}
	return score, detected
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// LevelFor maps a score to its stored risk level.
func (e *RuleEngine) LevelFor(score int) models.RiskLevel {
	return RiskLevelFor(score, e.mediumThreshold, e.highThreshold)
}

// RiskLevelFor maps a score to a risk level with explicit thresholds.
func RiskLevelFor(score, medium, high int) models.RiskLevel {
	switch {
	case score >= high:
		return models.RiskLevelHigh
	case score >= medium:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"honeyshield/pkg/logger"
)

//go:embed lexicon_default.yaml
var defaultLexiconYAML []byte

// Lexicon is the vocabulary the rule engine scores against.
type Lexicon struct {
	SuspiciousKeywords []string
	HighRiskPhrases    []string
	Positive           map[string]float64
	Negative           map[string]float64
}

type lexiconFile struct {
	Analysis struct {
		SuspiciousKeywords []string `yaml:"suspicious_keywords"`
		HighRiskPhrases    []string `yaml:"high_risk_phrases"`
	} `yaml:"analysis"`
	Sentiment struct {
		Positive map[string]float64 `yaml:"positive"`
		Negative map[string]float64 `yaml:"negative"`
	} `yaml:"sentiment"`
}

// ParseLexicon decodes a lexicon document. Keywords are lowercased and
// de-duplicated; sentiment weights are clamped to [-1, 1].
func ParseLexicon(data []byte) (*Lexicon, error) {
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}

	lex := &Lexicon{
		SuspiciousKeywords: normalizeTerms(f.Analysis.SuspiciousKeywords),
		HighRiskPhrases:    normalizeTerms(f.Analysis.HighRiskPhrases),
		Positive:           make(map[string]float64, len(f.Sentiment.Positive)),
		Negative:           make(map[string]float64, len(f.Sentiment.Negative)),
	}
	for w, v := range f.Sentiment.Positive {
		lex.Positive[strings.ToLower(w)] = clamp(v, 0, 1)
	}
	for w, v := range f.Sentiment.Negative {
		if v > 0 {
			v = -v
		}
		lex.Negative[strings.ToLower(w)] = clamp(v, -1, 0)
	}
	return lex, nil
}

// DefaultLexicon returns the built-in lexicon.
func DefaultLexicon() *Lexicon {
	lex, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(err)
	}
	return lex
}

// Merge returns a lexicon with other's terms appended to l's. Sentiment
// weights in other win.
func (l *Lexicon) Merge(other *Lexicon) *Lexicon {
	out := &Lexicon{
		SuspiciousKeywords: normalizeTerms(append(append([]string{}, l.SuspiciousKeywords...), other.SuspiciousKeywords...)),
		HighRiskPhrases:    normalizeTerms(append(append([]string{}, l.HighRiskPhrases...), other.HighRiskPhrases...)),
		Positive:           make(map[string]float64, len(l.Positive)+len(other.Positive)),
		Negative:           make(map[string]float64, len(l.Negative)+len(other.Negative)),
	}
	for _, src := range []*Lexicon{l, other} {
		for k, v := range src.Positive {
			out.Positive[k] = v
		}
		for k, v := range src.Negative {
			out.Negative[k] = v
		}
	}
	return out
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LexiconStore holds the active lexicon and swaps it on reload.
type LexiconStore struct {
	path   string
	extra  *Lexicon
	logger *logger.Logger

	mu      sync.RWMutex
	current *Lexicon
}

// NewLexiconStore loads path (if set) on top of the extra terms. A missing
// file falls back to the built-in lexicon.
func NewLexiconStore(path string, extraKeywords, extraPhrases []string, log *logger.Logger) (*LexiconStore, error) {
	s := &LexiconStore{
		path: path,
		extra: &Lexicon{
			SuspiciousKeywords: extraKeywords,
			HighRiskPhrases:    extraPhrases,
		},
		logger: log.WithComponent("lexicon"),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticLexiconStore wraps a fixed lexicon.
func NewStaticLexiconStore(lex *Lexicon) *LexiconStore {
	return &LexiconStore{current: lex, logger: logger.Nop()}
}

// Reload re-reads the lexicon file. On error the previous lexicon stays.
func (s *LexiconStore) Reload() error {
	base := DefaultLexicon()
	if s.path != "" {
		data, err := os.ReadFile(s.path)
		switch {
		case err == nil:
			parsed, perr := ParseLexicon(data)
			if perr != nil {
				return fmt.Errorf("%s: %w", s.path, perr)
			}
			base = parsed
		case os.IsNotExist(err):
			s.logger.Warn().Str("path", s.path).Msg("lexicon file not found, using built-in lexicon")
		default:
			return fmt.Errorf("read lexicon: %w", err)
		}
	}

	lex := base
	if s.extra != nil {
		lex = base.Merge(s.extra)
	}
	if len(lex.Positive) == 0 && len(lex.Negative) == 0 {
		def := DefaultLexicon()
		lex.Positive, lex.Negative = def.Positive, def.Negative
	}

	s.mu.Lock()
	s.current = lex
	s.mu.Unlock()

	s.logger.Info().
		Int("keywords", len(lex.SuspiciousKeywords)).
		Int("phrases", len(lex.HighRiskPhrases)).
		Msg("lexicon loaded")
	return nil
}

// Path is the watched file, empty for static stores.
func (s *LexiconStore) Path() string {
	return s.path
}

// Get returns the active lexicon. Callers must not modify it.
func (s *LexiconStore) Get() *Lexicon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

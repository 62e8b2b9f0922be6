package services

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-z']+`)

var (
	negators = map[string]struct{}{
		"not": {}, "no": {}, "never": {}, "don't": {}, "isn't": {}, "wasn't": {},
		"aren't": {}, "can't": {}, "won't": {}, "nothing": {}, "hardly": {},
	}
	intensifiers = map[string]float64{
		"very": 1.3, "really": 1.3, "so": 1.2, "extremely": 1.5, "incredibly": 1.4,
		"truly": 1.3, "absolutely": 1.4, "most": 1.2, "super": 1.3,
	}
)

// SentimentScorer computes a lexicon based polarity in [-1, 1].
//
// Each sentiment word contributes its weight, scaled by a directly preceding
// intensifier and multiplied by -0.5 when one of the two preceding words is a
// negator. The polarity is the mean over contributing words.
type SentimentScorer struct {
	lexicon *LexiconStore
}

func NewSentimentScorer(lexicon *LexiconStore) *SentimentScorer {
	return &SentimentScorer{lexicon: lexicon}
}

// Polarity returns 0 for text without sentiment words.
func (s *SentimentScorer) Polarity(text string) float64 {
	lex := s.lexicon.Get()
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	var (
		sum   float64
		count int
	)
	for i, w := range words {
		v, ok := lex.Positive[w]
		if !ok {
			v, ok = lex.Negative[w]
		}
		if !ok {
			continue
		}
		if i > 0 {
			if m, ok := intensifiers[words[i-1]]; ok {
				v *= m
			}
		}
		for back := 1; back <= 2 && i-back >= 0; back++ {
			if _, ok := negators[words[i-back]]; ok {
				v *= -0.5
				break
			}
		}
		sum += clamp(v, -1, 1)
		count++
	}
	if count == 0 {
		return 0
	}
	return clamp(sum/float64(count), -1, 1)
}

package services

import (
	"regexp"
	"strings"
	"unicode"

	"honeyshield/internal/domain/models"
)

// Feature names in vector order. The order is part of the saved model format.
var FeatureNames = []string{
	"text_length",
	"word_count",
	"sentence_count",
	"avg_sentence_length",
	"avg_word_length",
	"urgency_score",
	"authority_score",
	"scarcity_score",
	"social_proof_score",
	"info_request_score",
	"financial_score",
	"platform_migration_score",
	"question_marks",
	"exclamation_marks",
	"capital_ratio",
	"link_count",
	"unique_word_ratio",
	"long_word_count",
	"positive_emotion_score",
	"negative_emotion_score",
}

var (
	urgencyRe         = regexp.MustCompile(`\b(urgent|immediately|asap|quick|fast|now|instant|right away|hurry)\b`)
	authorityRe       = regexp.MustCompile(`\b(official|government|legal|compliance|required|mandatory|authorized|security|verify)\b`)
	scarcityRe        = regexp.MustCompile(`\b(limited|only|exclusive|last chance|final|ending soon|never again)\b`)
	socialProofRe     = regexp.MustCompile(`\b(everyone|people|others|join|many|most|popular)\b`)
	infoRequestRe     = regexp.MustCompile(`\b(phone|number|email|address|bank|account|password|verify|confirm|details)\b`)
	financialRe       = regexp.MustCompile(`\b(money|payment|investment|profit|fund|cash|price|fee|cost)\b`)
	platformRe        = regexp.MustCompile(`\b(whatsapp|telegram|signal|wechat|viber|skype|email me|call me|text me)\b`)
	linkRe            = regexp.MustCompile(`https?://[^\s<>"']+`)
	positiveEmotionRe = regexp.MustCompile(`\b(great|amazing|wonderful|impressive|fantastic|excellent|perfect)\b`)
	negativeEmotionRe = regexp.MustCompile(`\b(urgent|suspended|terminated|legal|consequences|problem|issue)\b`)
	sentenceSplitRe   = regexp.MustCompile(`[.!?]+`)
)

// FeatureExtractor turns message text into linguistic features.
type FeatureExtractor struct{}

func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Extract computes every feature in FeatureNames.
func (fe *FeatureExtractor) Extract(text string) models.LinguisticFeatures {
	lower := strings.ToLower(text)
	words := strings.Fields(text)
	f := make(models.LinguisticFeatures, len(FeatureNames))

	runes := []rune(text)
	wordCount := float64(len(words))

	sentences := 0
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}

	f["text_length"] = float64(len(runes))
	f["word_count"] = wordCount
	f["sentence_count"] = float64(sentences)
	f["avg_sentence_length"] = wordCount / float64(sentences)

	totalWordLen, longWords := 0, 0
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		n := len([]rune(w))
		totalWordLen += n
		if n > 6 {
			longWords++
		}
		unique[w] = struct{}{}
	}
	f["avg_word_length"] = float64(totalWordLen) / maxf(wordCount, 1)
	f["unique_word_ratio"] = float64(len(unique)) / maxf(wordCount, 1)
	f["long_word_count"] = float64(longWords)

	f["urgency_score"] = countMatches(urgencyRe, lower)
	f["authority_score"] = countMatches(authorityRe, lower)
	f["scarcity_score"] = countMatches(scarcityRe, lower)
	f["social_proof_score"] = countMatches(socialProofRe, lower)
	f["info_request_score"] = countMatches(infoRequestRe, lower)
	f["financial_score"] = countMatches(financialRe, lower)
	f["platform_migration_score"] = countMatches(platformRe, lower)

	f["question_marks"] = float64(strings.Count(text, "?"))
	f["exclamation_marks"] = float64(strings.Count(text, "!"))

	upper := 0
	for _, r := range runes {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	f["capital_ratio"] = float64(upper) / maxf(float64(len(runes)), 1)
	f["link_count"] = countMatches(linkRe, text)

	f["positive_emotion_score"] = countMatches(positiveEmotionRe, lower)
	f["negative_emotion_score"] = countMatches(negativeEmotionRe, lower)

	return f
}

// Vector orders features as FeatureNames.
func (fe *FeatureExtractor) Vector(f models.LinguisticFeatures) []float64 {
	v := make([]float64, len(FeatureNames))
	for i, name := range FeatureNames {
		v[i] = f[name]
	}
	return v
}

func countMatches(re *regexp.Regexp, s string) float64 {
	return float64(len(re.FindAllStringIndex(s, -1)))
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

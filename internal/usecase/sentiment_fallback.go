package usecase

import (
	"regexp"
	"strings"

	"reddit-insights/internal/domain/model"
)

var (
	positiveWords = []string{
		"great", "love", "excellent", "reliable", "best", "recommend", "awesome",
		"solid", "happy", "impressed", "smooth", "durable", "worth",
	}
	negativeWords = []string{
		"broke", "broken", "terrible", "worst", "hate", "problem", "issue", "failed",
		"expensive", "junk", "leak", "leaking", "awful", "disappointed", "useless", "overpriced",
	}
	// knownBrands are matched as whole words in fallback enrichment.
	knownBrands = []string{
		"Bobcat", "Caterpillar", "CAT", "Deere", "Kubota", "Toro",
		"Ditch Witch", "Takeuchi", "Kioti", "Husqvarna", "Stihl", "Vermeer",
	}
	wordRe = regexp.MustCompile(`[a-z']+`)
)

// FallbackAnalysis derives a coarse enrichment from word lists. It is used when the
// oracle keeps failing; text without any listed word stays neutral.
func FallbackAnalysis(text string) model.Analysis {
	a := model.NeutralAnalysis()
	lower := strings.ToLower(text)

	pos, neg := 0, 0
	for _, w := range wordRe.FindAllString(lower, -1) {
		if contains(positiveWords, w) {
			pos++
		}
		if contains(negativeWords, w) {
			neg++
		}
	}
	if pos+neg > 0 {
		score := float64(pos-neg) / float64(pos+neg)
		a.Sentiment = model.SentimentFor(score)
		a.Score = model.ClampScore(a.Sentiment, score)
	}
	a.Brands = brandsIn(text)
	return a
}

var brandPatterns = compileBrands(knownBrands)

func compileBrands(names []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(names))
	for i, b := range names {
		if b == "CAT" {
			// Case-sensitive: "cat" is too common a word.
			out[i] = regexp.MustCompile(`\bCAT\b`)
			continue
		}
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(b) + `\b`)
	}
	return out
}

func brandsIn(text string) []string {
	out := []string{}
	for i, re := range brandPatterns {
		if re.MatchString(text) && !containsFold(out, knownBrands[i]) {
			out = append(out, knownBrands[i])
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

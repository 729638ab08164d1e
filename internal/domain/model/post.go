package model

import (
	"strings"
	"time"
)

type Sentiment string

const (
	SentimentPositive         Sentiment = "positive"
	SentimentSlightlyPositive Sentiment = "slightly_positive"
	SentimentNeutral          Sentiment = "neutral"
	SentimentSlightlyNegative Sentiment = "slightly_negative"
	SentimentNegative         Sentiment = "negative"
)

// Sentiments lists every class from most positive to most negative.
var Sentiments = []Sentiment{
	SentimentPositive, SentimentSlightlyPositive, SentimentNeutral,
	SentimentSlightlyNegative, SentimentNegative,
}

// ParseSentiment lowercases and joins words with underscores before matching.
func ParseSentiment(s string) (Sentiment, bool) {
	v := Sentiment(strings.Join(strings.Fields(strings.ToLower(s)), "_"))
	for _, known := range Sentiments {
		if v == known {
			return v, true
		}
	}
	return "", false
}

func (s Sentiment) IsPositive() bool {
	return s == SentimentPositive || s == SentimentSlightlyPositive
}

func (s Sentiment) IsNegative() bool {
	return s == SentimentNegative || s == SentimentSlightlyNegative
}

// AnalysisState tracks where a post is in the enrichment lifecycle.
type AnalysisState string

const (
	AnalysisPending  AnalysisState = "pending"
	AnalysisDone     AnalysisState = "analyzed"
	AnalysisDegraded AnalysisState = "degraded"
	AnalysisFailed   AnalysisState = "failed"
)

// Usable reports whether the post carries a sentiment and feeds aggregation.
func (s AnalysisState) Usable() bool { return s == AnalysisDone || s == AnalysisDegraded }

// Analysis is the enrichment written atomically onto a post.
type Analysis struct {
	Sentiment       Sentiment `json:"sentiment"`
	Score           float64   `json:"sentiment_score"`
	PainPoints      []string  `json:"pain_points"`
	FeatureRequests []string  `json:"feature_requests"`
	Brands          []string  `json:"brands_mentioned"`
	UserType        string    `json:"user_type,omitempty"`
	Summary         string    `json:"summary,omitempty"`
}

// NeutralAnalysis is the default enrichment used when nothing better is known.
func NeutralAnalysis() Analysis {
	return Analysis{
		Sentiment:       SentimentNeutral,
		PainPoints:      []string{},
		FeatureRequests: []string{},
		Brands:          []string{},
	}
}

// Post is one deduplicated item owned by a job. Comments carry ParentID.
type Post struct {
	ID             string        `json:"id"`
	JobID          string        `json:"job_id"`
	Seq            int           `json:"seq"`
	SourceID       string        `json:"reddit_id"`
	ParentID       *string       `json:"parent_id,omitempty"`
	Title          string        `json:"title"`
	Body           *string       `json:"body,omitempty"`
	Author         *string       `json:"author,omitempty"`
	Subreddit      string        `json:"subreddit"`
	URL            string        `json:"url"`
	Score          int           `json:"score"`
	NumComments    int           `json:"num_comments"`
	SourceCreated  time.Time     `json:"reddit_created_at"`
	MatchedKeyword string        `json:"matched_keyword"`
	State          AnalysisState `json:"analysis_state"`
	Analysis       *Analysis     `json:"analysis,omitempty"`
	AnalyzedAt     *time.Time    `json:"analyzed_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Text is the content handed to the oracle.
func (p *Post) Text() string {
	if p.Body == nil || *p.Body == "" {
		return p.Title
	}
	return p.Title + " " + *p.Body
}

func (p *Post) SentimentScore() float64 {
	if p.Analysis == nil {
		return 0
	}
	return p.Analysis.Score
}

// Score bands per class. A score outside its class band is pulled to the nearest edge
// so the score stays monotonic with the class.
var sentimentBands = map[Sentiment][2]float64{
	SentimentPositive:         {0.6, 1},
	SentimentSlightlyPositive: {0.2, 0.6},
	SentimentNeutral:          {-0.2, 0.2},
	SentimentSlightlyNegative: {-0.6, -0.2},
	SentimentNegative:         {-1, -0.6},
}

// ClampScore bounds score to the band of s.
func ClampScore(s Sentiment, score float64) float64 {
	b, ok := sentimentBands[s]
	if !ok {
		b = [2]float64{-1, 1}
	}
	return min(max(score, b[0]), b[1])
}

// MidScore is the band center of s, used when the oracle omits a score.
func MidScore(s Sentiment) float64 {
	b := sentimentBands[s]
	return (b[0] + b[1]) / 2
}

// SentimentFor maps a score in [-1,1] to its class.
func SentimentFor(score float64) Sentiment {
	switch {
	case score >= 0.6:
		return SentimentPositive
	case score >= 0.2:
		return SentimentSlightlyPositive
	case score > -0.2:
		return SentimentNeutral
	case score > -0.6:
		return SentimentSlightlyNegative
	default:
		return SentimentNegative
	}
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reddit-insights/internal/config"
	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/adapter"
	"reddit-insights/internal/infra/logging"
	"reddit-insights/internal/infra/metrics"
)

const (
	analysisTemperature = 0.1
	analysisMaxTokens   = 400
	promptBodyChars     = 500
	maxExtracted        = 10
)

// Analyzer enriches one post. It only returns an error when ctx ends; oracle
// trouble is absorbed into the returned state.
type Analyzer interface {
	Analyze(ctx context.Context, post *model.Post) (*model.Analysis, model.AnalysisState, error)
}

var _ Analyzer = (*AnalysisWorker)(nil)

// AnalysisWorker calls the oracle with a fixed prompt and validates its JSON reply.
type AnalysisWorker struct {
	ai          adapter.AIServiceAdapter
	model       string
	industry    string
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	log         *zerolog.Logger
}

func NewAnalysisWorker(ai adapter.AIServiceAdapter, modelName string, cfg config.AnalysisConfig, logger *zerolog.Logger) *AnalysisWorker {
	l := logger.With().Str("component", "AnalysisWorker").Logger()
	return &AnalysisWorker{
		ai:          ai,
		model:       modelName,
		industry:    cfg.Context,
		maxAttempts: max(cfg.MaxAttempts, 1),
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
		sleep:       sleepCtx,
		log:         &l,
	}
}

func (w *AnalysisWorker) Analyze(ctx context.Context, post *model.Post) (*model.Analysis, model.AnalysisState, error) {
	text := promptText(post)
	if text == "" {
		metrics.IncAnalysisAttempt("skipped")
		return nil, model.AnalysisFailed, nil
	}
	msgs := []adapter.Message{
		{Role: "system", Content: "You analyze social media posts and reply with a single JSON object."},
		{Role: "user", Content: w.prompt(text)},
	}
	opts := adapter.ChatOptions{Temperature: analysisTemperature, MaxTokens: analysisMaxTokens, JSON: true}

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		reply, err := w.ai.Chat(ctx, w.model, msgs, opts)
		if ctx.Err() != nil {
			return nil, model.AnalysisPending, ctx.Err()
		}
		if err == nil {
			var a *model.Analysis
			a, err = ParseAnalysis(reply)
			if err == nil {
				metrics.IncAnalysisAttempt("ok")
				return a, model.AnalysisDone, nil
			}
			metrics.IncAnalysisAttempt("malformed")
		} else {
			metrics.IncAnalysisAttempt("error")
		}
		lastErr = err
		w.log.Debug().Err(err).Str("post_id", post.ID).Int("attempt", attempt).Msg("oracle attempt failed")

		if attempt < w.maxAttempts {
			if err := w.sleep(ctx, backoff(attempt, w.backoffBase, w.backoffMax)); err != nil {
				return nil, model.AnalysisPending, err
			}
		}
	}

	metrics.IncAnalysisDegraded()
	w.log.Warn().
		Err(fmt.Errorf("%w: %v", domain.ErrAnalysisDegraded, lastErr)).
		Str("post_id", post.ID).
		Str("title", logging.Truncate(post.Title, 60)).
		Msg("falling back to keyword enrichment")
	a := FallbackAnalysis(text)
	return &a, model.AnalysisDegraded, nil
}

func (w *AnalysisWorker) prompt(text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this %s-related Reddit post.\n\n", w.industry)
	fmt.Fprintf(&b, "Post: %s\n\n", text)
	b.WriteString("Reply with JSON only, using exactly these keys:\n")
	b.WriteString(`{"sentiment": "positive|slightly_positive|neutral|slightly_negative|negative", `)
	b.WriteString(`"score": <number from -1 to 1>, `)
	b.WriteString(`"pain_points": ["short phrase"], `)
	b.WriteString(`"features": ["requested feature"], `)
	b.WriteString(`"brands": ["brand name"], `)
	b.WriteString(`"user_type": "professional|homeowner|hobbyist|unknown", `)
	b.WriteString(`"summary": "one sentence"}`)
	return b.String()
}

// promptText is "{title}. {body}" with the body cut to a fixed length.
func promptText(p *model.Post) string {
	title := strings.TrimSpace(p.Title)
	body := ""
	if p.Body != nil {
		body = strings.TrimSpace(*p.Body)
	}
	if r := []rune(body); len(r) > promptBodyChars {
		body = string(r[:promptBodyChars])
	}
	switch {
	case title == "":
		return body
	case body == "":
		return title
	}
	return title + ". " + body
}

type oracleReply struct {
	Sentiment       string   `json:"sentiment"`
	Score           *float64 `json:"score"`
	SentimentScore  *float64 `json:"sentiment_score"`
	PainPoints      []string `json:"pain_points"`
	Features        []string `json:"features"`
	FeatureRequests []string `json:"feature_requests"`
	Brands          []string `json:"brands"`
	BrandsMentioned []string `json:"brands_mentioned"`
	UserType        *string  `json:"user_type"`
	Summary         string   `json:"summary"`
}

// ParseAnalysis validates an oracle reply. The object may be wrapped in prose or a
// code fence. A class outside the enumeration or a non-numeric score is malformed;
// a missing score takes the center of the class band.
func ParseAnalysis(reply string) (*model.Analysis, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no json object", domain.ErrMalformedOutput)
	}
	var r oracleReply
	if err := json.Unmarshal([]byte(reply[start:end+1]), &r); err != nil {
		return nil, errors.Join(domain.ErrMalformedOutput, err)
	}
	s, ok := model.ParseSentiment(r.Sentiment)
	if !ok {
		return nil, fmt.Errorf("%w: sentiment %q", domain.ErrMalformedOutput, r.Sentiment)
	}
	score := model.MidScore(s)
	if r.Score != nil {
		score = *r.Score
	} else if r.SentimentScore != nil {
		score = *r.SentimentScore
	}

	a := &model.Analysis{
		Sentiment:       s,
		Score:           model.ClampScore(s, score),
		PainPoints:      cleanPhrases(r.PainPoints),
		FeatureRequests: cleanPhrases(firstNonEmpty(r.Features, r.FeatureRequests)),
		Brands:          cleanPhrases(firstNonEmpty(r.Brands, r.BrandsMentioned)),
		Summary:         strings.TrimSpace(r.Summary),
	}
	if r.UserType != nil {
		ut := strings.ToLower(strings.TrimSpace(*r.UserType))
		if ut != "" && ut != "null" && ut != "unknown" && ut != "none" {
			a.UserType = ut
		}
	}
	return a, nil
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

// cleanPhrases trims, drops blanks and case-insensitive repeats, and caps the list.
func cleanPhrases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" || containsFold(out, v) {
			continue
		}
		out = append(out, v)
		if len(out) == maxExtracted {
			break
		}
	}
	return out
}

func backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << (attempt - 1)
	if d <= 0 || (maxDelay > 0 && d > maxDelay) {
		return maxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

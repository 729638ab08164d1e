// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"reddit-insights/internal/config"
	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/adapter"
	"reddit-insights/internal/domain/ports/repository"
	"reddit-insights/internal/infra/logging"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	// BuildContext assembles the grounding text for one question. It makes no oracle calls.
	BuildContext(ctx context.Context, jobID, question string) (string, error)
	// Ask answers a free-text question about a job's results.
	Ask(ctx context.Context, jobID, question string) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Tokenizer counts tokens of a text.
type Tokenizer interface {
	Text(s string) int
}

const (
	chatTemperature = 0.7
	chatMaxTokens   = 800
	postSnippet     = 200
	maxQuestion     = 2000
)

const chatSystemPrompt = "You are a market research assistant. Answer the question using only the " +
	"analysis context below. Cite post titles or action items where useful. " +
	"If the context does not contain the answer, say so.\n\n"

type chatUC struct {
	jobs      repository.JobRepository
	posts     repository.PostRepository
	items     repository.ActionItemRepository
	ai        adapter.AIServiceAdapter
	tokens    Tokenizer
	model     string
	maxTokens int
	topItems  int
	topPosts  int
	log       *zerolog.Logger
}

func NewChatUseCase(
	jobs repository.JobRepository,
	posts repository.PostRepository,
	items repository.ActionItemRepository,
	ai adapter.AIServiceAdapter,
	tokens Tokenizer,
	modelName string,
	cfg config.ChatConfig,
	logger *zerolog.Logger,
) *chatUC {
	l := logger.With().Str("component", "ChatUC").Logger()
	return &chatUC{
		jobs:      jobs,
		posts:     posts,
		items:     items,
		ai:        ai,
		tokens:    tokens,
		model:     modelName,
		maxTokens: cfg.MaxContextTokens,
		topItems:  cfg.TopItems,
		topPosts:  cfg.TopPosts,
		log:       &l,
	}
}

func (c *chatUC) Ask(ctx context.Context, jobID, question string) (string, error) {
	defer logging.TraceDuration(c.log, "ChatUC.Ask")()

	question = strings.TrimSpace(question)
	if question == "" || len(question) > maxQuestion {
		return "", fmt.Errorf("%w: message must be 1..%d characters", domain.ErrInvalidArgument, maxQuestion)
	}
	grounding, err := c.BuildContext(ctx, jobID, question)
	if err != nil {
		return "", err
	}
	msgs := []adapter.Message{
		{Role: "system", Content: chatSystemPrompt + grounding},
		{Role: "user", Content: question},
	}
	reply, err := c.ai.Chat(ctx, c.model, msgs, adapter.ChatOptions{Temperature: chatTemperature, MaxTokens: chatMaxTokens})
	if err != nil {
		c.log.Error().Err(err).Str("job_id", jobID).Msg("chat oracle call failed")
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (c *chatUC) ListModels(ctx context.Context) ([]string, error) {
	return c.ai.ListModels(ctx)
}

func (c *chatUC) BuildContext(ctx context.Context, jobID, question string) (string, error) {
	job, err := c.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return "", err
	}
	usable, err := c.posts.ListUsable(ctx, nil, jobID)
	if err != nil {
		return "", err
	}
	if len(usable) == 0 {
		return "", domain.ErrJobNotReady
	}
	states, err := c.posts.StateCounts(ctx, nil, jobID)
	if err != nil {
		return "", err
	}
	subs, err := c.posts.SubredditCounts(ctx, nil, jobID)
	if err != nil {
		return "", err
	}
	items, err := c.items.List(ctx, nil, model.ActionItemFilter{JobID: jobID})
	if err != nil {
		return "", err
	}

	terms := questionTerms(question)
	b := &budgetWriter{limit: c.maxTokens, tokens: c.tokens}
	writeStats(b, job, BuildStats(usable, states, subs))

	if ranked := rankItems(items, terms); len(ranked) > 0 {
		b.section("\nAction items:")
		for _, it := range ranked[:min(len(ranked), c.topItems)] {
			if !b.line(fmt.Sprintf("- [%s/%s, impact %d] %s: %s", it.Priority, it.Category, it.Impact(), it.Title, it.Description)) {
				break
			}
		}
	}

	ranked := rankPostsForQuestion(usable, terms)
	b.section("\nRelevant posts:")
	for _, p := range ranked[:min(len(ranked), c.topPosts)] {
		if !b.line(postLine(p)) {
			break
		}
	}
	return b.String(), nil
}

func writeStats(b *budgetWriter, job *model.Job, st *model.Stats) {
	b.line(fmt.Sprintf("Job: subreddits %s; keywords %s; status %s.",
		strings.Join(job.Config.Subreddits, ", "), strings.Join(job.Config.Keywords, ", "), job.Status))
	b.line(fmt.Sprintf("Posts: %d total, %d analyzed, %d degraded, %d failed. Average sentiment %.2f (-1..1).",
		st.TotalPosts, st.AnalyzedPosts, st.DegradedPosts, st.FailedPosts, st.AvgSentimentScore))

	parts := make([]string, 0, len(model.Sentiments))
	for _, s := range model.Sentiments {
		parts = append(parts, fmt.Sprintf("%s %d", s, st.SentimentBreakdown[s]))
	}
	b.line("Sentiment: " + strings.Join(parts, ", ") + ".")

	for _, tc := range []struct {
		label string
		terms []model.TermCount
	}{
		{"Top pain points", st.TopPainPoints},
		{"Top feature requests", st.TopFeatureRequests},
		{"Top brands", st.TopBrands},
	} {
		if len(tc.terms) == 0 {
			continue
		}
		parts := make([]string, 0, len(tc.terms))
		for _, t := range tc.terms {
			parts = append(parts, fmt.Sprintf("%s (%d)", t.Text, t.Count))
		}
		b.line(tc.label + ": " + strings.Join(parts, ", ") + ".")
	}
}

func postLine(p *model.Post) string {
	body := ""
	if p.Body != nil {
		body = logging.Truncate(strings.Join(strings.Fields(*p.Body), " "), postSnippet)
	}
	sentiment := model.SentimentNeutral
	if p.Analysis != nil {
		sentiment = p.Analysis.Sentiment
	}
	line := fmt.Sprintf("- [%s, r/%s, score %d] %s", sentiment, p.Subreddit, p.Score, p.Title)
	if body != "" {
		line += ": " + body
	}
	if p.Analysis != nil && len(p.Analysis.PainPoints) > 0 {
		line += " | pain points: " + strings.Join(p.Analysis.PainPoints, "; ")
	}
	return line
}

// questionTerms are the lowercased words of the question longer than two letters.
func questionTerms(q string) []string {
	var out []string
	for _, w := range wordRe.FindAllString(strings.ToLower(q), -1) {
		if len(w) > 2 && !contains(out, w) && !contains(stopWords, w) {
			out = append(out, w)
		}
	}
	return out
}

var stopWords = []string{"the", "and", "for", "are", "what", "why", "how", "who", "which", "with", "about", "does", "this", "that", "they", "their", "most"}

func overlap(terms []string, text string) int {
	if len(terms) == 0 {
		return 0
	}
	text = strings.ToLower(text)
	n := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			n++
		}
	}
	return n
}

// rankItems orders by question overlap, then impact, then title.
func rankItems(items []*model.ActionItem, terms []string) []*model.ActionItem {
	out := append([]*model.ActionItem(nil), items...)
	score := make(map[*model.ActionItem]int, len(out))
	for _, it := range out {
		score[it] = overlap(terms, it.Title+" "+it.Description)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if score[out[i]] != score[out[j]] {
			return score[out[i]] > score[out[j]]
		}
		if out[i].Impact() != out[j].Impact() {
			return out[i].Impact() > out[j].Impact()
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// rankPostsForQuestion orders by question overlap, then sentiment extremity, then discovery.
func rankPostsForQuestion(posts []*model.Post, terms []string) []*model.Post {
	out := append([]*model.Post(nil), posts...)
	score := make(map[*model.Post]int, len(out))
	for _, p := range out {
		text := p.Text()
		if p.Analysis != nil {
			text += " " + strings.Join(p.Analysis.PainPoints, " ") + " " + strings.Join(p.Analysis.FeatureRequests, " ")
		}
		score[p] = overlap(terms, text)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if score[out[i]] != score[out[j]] {
			return score[out[i]] > score[out[j]]
		}
		ei, ej := math.Abs(out[i].SentimentScore()), math.Abs(out[j].SentimentScore())
		if ei != ej {
			return ei > ej
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// budgetWriter appends lines until the token budget is spent.
type budgetWriter struct {
	sb     strings.Builder
	used   int
	limit  int
	tokens Tokenizer
	header string
}

// section defers a heading until a line below it fits.
func (b *budgetWriter) section(h string) { b.header = h }

// line appends s if it fits and reports whether it did.
func (b *budgetWriter) line(s string) bool {
	if b.header != "" {
		s = b.header + "\n" + s
	}
	n := b.tokens.Text(s + "\n")
	if b.limit > 0 && b.used+n > b.limit {
		return false
	}
	b.sb.WriteString(s)
	b.sb.WriteByte('\n')
	b.used += n
	b.header = ""
	return true
}

func (b *budgetWriter) String() string { return strings.TrimRight(b.sb.String(), "\n") }

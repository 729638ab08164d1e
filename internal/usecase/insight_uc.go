package usecase

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/repository"
)

// Compile-time check
var _ InsightUseCase = (*insightUC)(nil)

// InsightUseCase serves the aggregated results of a job.
type InsightUseCase interface {
	Stats(ctx context.Context, jobID string) (*model.Stats, error)
	ActionItems(ctx context.Context, f model.ActionItemFilter) ([]*model.ActionItem, error)
	ActionItem(ctx context.Context, id string) (*model.ActionItem, error)
	// RelatedPosts returns the item's supporting posts, most relevant first.
	RelatedPosts(ctx context.Context, itemID string) ([]*model.Post, error)
	Summary(ctx context.Context, jobID string) (*model.ActionItemSummary, error)
	ExecutiveSummary(ctx context.Context, jobID string) (*model.ExecutiveSummary, error)
}

// StatsCache holds statistics of finished jobs. Get fails on a miss.
type StatsCache interface {
	Store(ctx context.Context, jobID string, stats *model.Stats) error
	Get(ctx context.Context, jobID string) (*model.Stats, error)
	Delete(ctx context.Context, jobID string) error
}

type insightUC struct {
	jobs  repository.JobRepository
	posts repository.PostRepository
	items repository.ActionItemRepository
	cache StatsCache
	log   *zerolog.Logger
}

func NewInsightUseCase(
	jobs repository.JobRepository,
	posts repository.PostRepository,
	items repository.ActionItemRepository,
	cache StatsCache,
	logger *zerolog.Logger,
) *insightUC {
	l := logger.With().Str("component", "InsightUC").Logger()
	return &insightUC{jobs: jobs, posts: posts, items: items, cache: cache, log: &l}
}

func (u *insightUC) Stats(ctx context.Context, jobID string) (*model.Stats, error) {
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	return u.stats(ctx, job)
}

func (u *insightUC) stats(ctx context.Context, job *model.Job) (*model.Stats, error) {
	final := job.Status.IsTerminal()
	if final && u.cache != nil {
		if st, err := u.cache.Get(ctx, job.ID); err == nil {
			return st, nil
		}
	}
	st, err := computeStats(ctx, u.posts, job.ID)
	if err != nil {
		return nil, err
	}
	if final && u.cache != nil {
		if err := u.cache.Store(ctx, job.ID, st); err != nil {
			u.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to cache stats")
		}
	}
	return st, nil
}

func computeStats(ctx context.Context, posts repository.PostRepository, jobID string) (*model.Stats, error) {
	usable, err := posts.ListUsable(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	states, err := posts.StateCounts(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	subs, err := posts.SubredditCounts(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	return BuildStats(usable, states, subs), nil
}

func (u *insightUC) ActionItems(ctx context.Context, f model.ActionItemFilter) ([]*model.ActionItem, error) {
	if _, err := u.jobs.FindByID(ctx, nil, f.JobID); err != nil {
		return nil, err
	}
	return u.items.List(ctx, nil, f)
}

func (u *insightUC) ActionItem(ctx context.Context, id string) (*model.ActionItem, error) {
	return u.items.FindByID(ctx, nil, id)
}

func (u *insightUC) RelatedPosts(ctx context.Context, itemID string) ([]*model.Post, error) {
	item, err := u.items.FindByID(ctx, nil, itemID)
	if err != nil {
		return nil, err
	}
	ids := item.RelatedPostIDs[:min(len(item.RelatedPostIDs), model.MaxRelatedPosts)]
	if len(ids) == 0 {
		return []*model.Post{}, nil
	}
	found, err := u.posts.FindByIDs(ctx, nil, item.JobID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Post, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]*model.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (u *insightUC) Summary(ctx context.Context, jobID string) (*model.ActionItemSummary, error) {
	items, err := u.ActionItems(ctx, model.ActionItemFilter{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return summarizeItems(items), nil
}

func summarizeItems(items []*model.ActionItem) *model.ActionItemSummary {
	s := &model.ActionItemSummary{
		Total:      len(items),
		ByCategory: map[model.Category]int{},
		ByPriority: map[model.Priority]int{},
	}
	var sum, scored int
	for _, it := range items {
		s.ByCategory[it.Category]++
		s.ByPriority[it.Priority]++
		if it.ImpactScore != nil {
			sum += *it.ImpactScore
			scored++
		}
	}
	if scored > 0 {
		s.AvgImpact = math.Round(float64(sum)/float64(scored)*10) / 10
	}
	return s
}

func (u *insightUC) ExecutiveSummary(ctx context.Context, jobID string) (*model.ExecutiveSummary, error) {
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	st, err := u.stats(ctx, job)
	if err != nil {
		return nil, err
	}
	items, err := u.items.List(ctx, nil, model.ActionItemFilter{JobID: jobID})
	if err != nil {
		return nil, err
	}
	sum := summarizeItems(items)

	scored := 0
	pos, neg := 0, 0
	for s, n := range st.SentimentBreakdown {
		scored += n
		if s.IsPositive() {
			pos += n
		}
		if s.IsNegative() {
			neg += n
		}
	}

	out := &model.ExecutiveSummary{
		JobID:              job.ID,
		TotalPosts:         st.TotalPosts,
		SentimentBreakdown: st.SentimentBreakdown,
		PositivePercentage: math.Round(pct(pos, scored)*10) / 10,
		NegativePercentage: math.Round(pct(neg, scored)*10) / 10,
		ItemsByPriority:    sum.ByPriority,
		CriticalItems:      sum.ByPriority[model.PriorityCritical],
		HighPriorityItems:  sum.ByPriority[model.PriorityHigh],
		Subreddits:         job.Config.Subreddits,
		Keywords:           job.Config.Keywords,
	}
	if job.CompletedAt != nil {
		ts := job.CompletedAt.UTC().Format(time.RFC3339)
		out.CompletedAt = &ts
	}
	return out, nil
}

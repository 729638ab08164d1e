package usecase

import (
	"context"
	"fmt"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/repository"
)

// Compile-time check
var _ PostUseCase = (*postUC)(nil)

type PostUseCase interface {
	List(ctx context.Context, f model.PostFilter) ([]*model.Post, int, error)
	Get(ctx context.Context, jobID, id string) (*model.Post, error)
	SubredditCounts(ctx context.Context, jobID string) (map[string]int, error)
}

const (
	defaultPostPage = 50
	maxPostPage     = 200
)

// postSorts maps public sort names to repository columns.
var postSorts = map[string]string{
	"":                "seq",
	"created_at":      "reddit_created_at",
	"score":           "score",
	"sentiment_score": "sentiment_score",
	"num_comments":    "num_comments",
}

type postUC struct {
	jobs  repository.JobRepository
	posts repository.PostRepository
}

func NewPostUseCase(jobs repository.JobRepository, posts repository.PostRepository) *postUC {
	return &postUC{jobs: jobs, posts: posts}
}

func (u *postUC) List(ctx context.Context, f model.PostFilter) ([]*model.Post, int, error) {
	if _, err := u.jobs.FindByID(ctx, nil, f.JobID); err != nil {
		return nil, 0, err
	}
	col, ok := postSorts[f.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown sort_by %q", domain.ErrInvalidArgument, f.SortBy)
	}
	for _, s := range f.Sentiments {
		if _, ok := model.ParseSentiment(string(s)); !ok {
			return nil, 0, fmt.Errorf("%w: unknown sentiment %q", domain.ErrInvalidArgument, s)
		}
	}
	f.SortBy = col
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPostPage
	case f.Limit > maxPostPage:
		f.Limit = maxPostPage
	}
	f.Offset = max(f.Offset, 0)
	return u.posts.List(ctx, nil, f)
}

func (u *postUC) Get(ctx context.Context, jobID, id string) (*model.Post, error) {
	return u.posts.FindByID(ctx, nil, jobID, id)
}

func (u *postUC) SubredditCounts(ctx context.Context, jobID string) (map[string]int, error) {
	if _, err := u.jobs.FindByID(ctx, nil, jobID); err != nil {
		return nil, err
	}
	return u.posts.SubredditCounts(ctx, nil, jobID)
}

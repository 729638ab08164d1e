package adapter

import (
	"context"
	"iter"
	"time"

	"reddit-insights/internal/domain/model"
)

// SearchQuery is one paginated search against the data source.
type SearchQuery struct {
	Subreddit  string
	Keyword    string
	TimeFilter model.TimeFilter
	Sort       model.SortOrder
	Limit      int
}

// RawPost is a source record before deduplication.
type RawPost struct {
	SourceID    string
	Title       string
	Body        string
	Author      string
	Subreddit   string
	Permalink   string
	Score       int
	NumComments int
	CreatedAt   time.Time
}

// PostSource is the rate-limited data-source collaborator.
type PostSource interface {
	// Search yields at most q.Limit items. The sequence is lazy and can be ranged once;
	// a non-nil error ends it.
	Search(ctx context.Context, q SearchQuery) iter.Seq2[RawPost, error]

	// SubredditExists is a cheap idempotent existence probe.
	SubredditExists(ctx context.Context, name string) (bool, error)

	// Comments returns top-level comments of a post.
	Comments(ctx context.Context, subreddit, postID string, limit int) ([]RawPost, error)
}

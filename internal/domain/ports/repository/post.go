package repository

import (
	"context"

	"reddit-insights/internal/domain/model"
)

type PostRepository interface {
	// InsertIfAbsent stores the post unless (job_id, source id) already exists.
	// It reports whether a row was inserted; the first insert wins. On insert the
	// per-job discovery sequence is assigned to post.Seq.
	InsertIfAbsent(ctx context.Context, tx Tx, post *model.Post) (bool, error)
	// SaveAnalysis writes the enrichment and state in a single statement.
	SaveAnalysis(ctx context.Context, tx Tx, post *model.Post) error
	FindByID(ctx context.Context, tx Tx, jobID, id string) (*model.Post, error)
	FindByIDs(ctx context.Context, tx Tx, jobID string, ids []string) ([]*model.Post, error)
	// ListPending returns up to limit unanalyzed posts of the job in discovery order.
	ListPending(ctx context.Context, tx Tx, jobID string, limit int) ([]*model.Post, error)
	// ListUsable returns every analyzed or degraded post of the job in discovery order.
	ListUsable(ctx context.Context, tx Tx, jobID string) ([]*model.Post, error)
	// ListTopLevel returns posts without a parent in discovery order.
	ListTopLevel(ctx context.Context, tx Tx, jobID string) ([]*model.Post, error)
	List(ctx context.Context, tx Tx, f model.PostFilter) ([]*model.Post, int, error)
	SubredditCounts(ctx context.Context, tx Tx, jobID string) (map[string]int, error)
	StateCounts(ctx context.Context, tx Tx, jobID string) (map[model.AnalysisState]int, error)
}

package repository

import (
	"context"

	"reddit-insights/internal/domain/model"
)

type ActionItemRepository interface {
	// ReplaceForJob swaps the job's items for a fresh set.
	ReplaceForJob(ctx context.Context, tx Tx, jobID string, items []*model.ActionItem) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ActionItem, error)
	List(ctx context.Context, tx Tx, f model.ActionItemFilter) ([]*model.ActionItem, error)
}

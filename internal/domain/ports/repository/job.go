package repository

import (
	"context"
	"time"

	"reddit-insights/internal/domain/model"
)

type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// FindByIDForUpdate locks the row; tx must be a transaction.
	FindByIDForUpdate(ctx context.Context, tx Tx, id string) (*model.Job, error)
	List(ctx context.Context, tx Tx, offset, limit int) ([]*model.Job, error)
	Count(ctx context.Context, tx Tx) (int, error)

	// Save persists status, progress, cursor, error and timestamps as given.
	Save(ctx context.Context, tx Tx, job *model.Job) error

	// UpdateProgress writes progress, cursor and heartbeat only while the job is still
	// running. It reports false when the row is gone or no longer running.
	UpdateProgress(ctx context.Context, tx Tx, job *model.Job) (bool, error)

	// ClaimNext atomically picks the oldest pending job, or a resumed running job
	// without a heartbeat, and marks it running. Returns domain.ErrNotFound when idle.
	ClaimNext(ctx context.Context) (*model.Job, error)

	// ListStale returns running jobs whose heartbeat is older than the cutoff.
	ListStale(ctx context.Context, tx Tx, cutoff time.Time) ([]*model.Job, error)

	// Delete removes the job and cascades to its posts and action items.
	Delete(ctx context.Context, tx Tx, id string) error
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, config, status, progress_current, progress_total, progress_step, posts_found,
fetch_cursor, failed_searches, error_message, created_at, started_at, completed_at, heartbeat_at, updated_at`

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("encode job config: %w", err)
	}
	const q = `
INSERT INTO jobs (id, config, status, progress_current, progress_total, progress_step, posts_found,
                  fetch_cursor, failed_searches, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, cfg, string(job.Status), job.Progress.Current, job.Progress.Total, job.Progress.Step,
		job.Progress.PostsFound, job.FetchCursor, job.FailedSearches, nullString(job.ErrorMessage), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	if _, ok := tx.(pgx.Tx); !ok {
		return nil, domain.ErrInvalidExecContext
	}
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id OFFSET $1 LIMIT $2;`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *jobRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM jobs;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, scanErr(err)
	}
	return n, nil
}

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	const q = `
UPDATE jobs SET
  status = $2,
  progress_current = $3,
  progress_total = $4,
  progress_step = $5,
  posts_found = $6,
  fetch_cursor = $7,
  failed_searches = $8,
  error_message = $9,
  started_at = $10,
  completed_at = $11,
  heartbeat_at = $12,
  updated_at = $13
WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		job.ID, string(job.Status), job.Progress.Current, job.Progress.Total, job.Progress.Step, job.Progress.PostsFound,
		job.FetchCursor, job.FailedSearches, nullString(job.ErrorMessage), job.StartedAt, job.CompletedAt, job.HeartbeatAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) UpdateProgress(ctx context.Context, tx repository.Tx, job *model.Job) (bool, error) {
	const q = `
UPDATE jobs SET
  progress_current = $2,
  progress_total = $3,
  progress_step = $4,
  posts_found = $5,
  fetch_cursor = $6,
  failed_searches = $7,
  heartbeat_at = $8,
  updated_at = $8
WHERE id = $1 AND status = 'running';`
	now := time.Now().UTC()
	tag, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.Progress.Current, job.Progress.Total, job.Progress.Step, job.Progress.PostsFound, job.FetchCursor, job.FailedSearches, now)
	if err != nil {
		return false, fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	job.Touch(now)
	return true, nil
}

func (r *jobRepo) ClaimNext(ctx context.Context) (*model.Job, error) {
	var job *model.Job

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'pending' OR (status = 'running' AND heartbeat_at IS NULL)
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if fetched.Status == model.JobStatusPending {
			if err := fetched.TransitionTo(model.JobStatusRunning, now); err != nil {
				return err
			}
		}
		fetched.Touch(now)
		if err := r.Save(ctx, tx, fetched); err != nil {
			return err
		}
		job = fetched
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) ListStale(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Job, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = 'running' AND heartbeat_at < $1 ORDER BY heartbeat_at;`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *jobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j      model.Job
		cfg    []byte
		status string
		errMsg *string
	)
	err := row.Scan(&j.ID, &cfg, &status, &j.Progress.Current, &j.Progress.Total, &j.Progress.Step,
		&j.Progress.PostsFound, &j.FetchCursor, &j.FailedSearches, &errMsg, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
		&j.HeartbeatAt, &j.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	if err := json.Unmarshal(cfg, &j.Config); err != nil {
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	j.Status = model.JobStatus(status)
	if errMsg != nil {
		j.ErrorMessage = *errMsg
	}
	return &j, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

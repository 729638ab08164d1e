package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/repository"
)

var _ repository.ActionItemRepository = (*actionItemRepo)(nil)

type actionItemRepo struct {
	pool *pgxpool.Pool
}

func NewActionItemRepo(pool *pgxpool.Pool) *actionItemRepo {
	return &actionItemRepo{pool: pool}
}

const actionItemColumns = `id, job_id, title, description, category, priority, impact_score, effort_level,
timeline, recommendations, related_post_ids, metrics, created_at`

var actionItemOrder = map[string]string{
	"":           "impact_score DESC NULLS LAST, title",
	"impact":     "impact_score DESC NULLS LAST, title",
	"priority":   "CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, impact_score DESC NULLS LAST, title",
	"category":   "category, impact_score DESC NULLS LAST, title",
	"title":      "title",
	"created_at": "created_at DESC, impact_score DESC NULLS LAST, title",
}

// ReplaceForJob deletes the old set and inserts the new one; callers pass a transaction.
func (r *actionItemRepo) ReplaceForJob(ctx context.Context, tx repository.Tx, jobID string, items []*model.ActionItem) error {
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM action_items WHERE job_id = $1;`, jobID); err != nil {
		return fmt.Errorf("clear action items: %w", err)
	}

	const q = `
INSERT INTO action_items (id, job_id, title, description, category, priority, impact_score, effort_level,
                          timeline, recommendations, related_post_ids, metrics, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`
	now := time.Now().UTC()
	for _, it := range items {
		if it.ID == "" {
			it.ID = ulid.Make().String()
		}
		it.JobID = jobID
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		m := it.Metrics
		if m == nil {
			m = map[string]float64{}
		}
		metrics, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
		var effort *string
		if it.Effort != nil {
			e := string(*it.Effort)
			effort = &e
		}
		_, err = execSQL(ctx, r.pool, tx, q,
			it.ID, jobID, it.Title, it.Description, string(it.Category), string(it.Priority), it.ImpactScore,
			effort, it.Timeline, nonNil(it.Recommendations), nonNil(it.RelatedPostIDs), metrics, it.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert action item: %w", err)
		}
	}
	return nil
}

func (r *actionItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ActionItem, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+actionItemColumns+` FROM action_items WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanActionItem(row)
}

func (r *actionItemRepo) List(ctx context.Context, tx repository.Tx, f model.ActionItemFilter) ([]*model.ActionItem, error) {
	order, ok := actionItemOrder[f.SortBy]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sort %q", domain.ErrInvalidArgument, f.SortBy)
	}
	q := `SELECT ` + actionItemColumns + ` FROM action_items
WHERE job_id = $1 AND ($2 = '' OR category = $2) AND ($3 = '' OR priority = $3)
ORDER BY ` + order + `;`

	rows, err := queryRows(ctx, r.pool, tx, q, f.JobID, string(f.Category), string(f.Priority))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ActionItem
	for rows.Next() {
		it, err := scanActionItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanActionItem(row pgx.Row) (*model.ActionItem, error) {
	var (
		it       model.ActionItem
		category string
		priority string
		effort   *string
		metrics  []byte
	)
	err := row.Scan(&it.ID, &it.JobID, &it.Title, &it.Description, &category, &priority, &it.ImpactScore,
		&effort, &it.Timeline, &it.Recommendations, &it.RelatedPostIDs, &metrics, &it.CreatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	it.Category = model.Category(category)
	it.Priority = model.Priority(priority)
	if effort != nil {
		e := model.Effort(*effort)
		it.Effort = &e
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &it.Metrics); err != nil {
			return nil, errors.Join(domain.ErrReadDatabaseRow, err)
		}
	}
	return &it, nil
}

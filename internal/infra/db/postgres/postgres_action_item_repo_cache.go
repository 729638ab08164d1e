package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/repository"
	"reddit-insights/internal/infra/metrics"
	red "reddit-insights/internal/infra/redis"
)

var _ repository.ActionItemRepository = (*actionItemRepoCacheDecorator)(nil)

// actionItemRepoCacheDecorator caches per-job listings. Items are immutable once a run
// completes, so the only invalidation point is ReplaceForJob.
type actionItemRepoCacheDecorator struct {
	inner repository.ActionItemRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewActionItemRepoCacheDecorator(inner repository.ActionItemRepository, cache red.RedisClient, ttl time.Duration) repository.ActionItemRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &actionItemRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func actionItemListKey(f model.ActionItemFilter) string {
	return fmt.Sprintf("action_items:%s:%s:%s:%s", f.JobID, f.Category, f.Priority, f.SortBy)
}

func actionItemJobKey(jobID string) string {
	return "action_items:" + jobID + ":keys"
}

func (d *actionItemRepoCacheDecorator) List(ctx context.Context, tx repository.Tx, f model.ActionItemFilter) ([]*model.ActionItem, error) {
	key := actionItemListKey(f)
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		var items []*model.ActionItem
		if json.Unmarshal([]byte(val), &items) == nil {
			metrics.IncCacheRequest("action_items", "hit")
			return items, nil
		}
		metrics.IncCacheRequest("action_items", "miss")
	case errors.Is(err, redis.Nil):
		metrics.IncCacheRequest("action_items", "miss")
	default:
		metrics.IncCacheRequest("action_items", "error")
	}

	items, err := d.inner.List(ctx, tx, f)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if b, err := json.Marshal(items); err == nil {
			_ = d.cache.Set(ctx, key, b, d.ttl)
			d.remember(ctx, f.JobID, key)
		}
	}
	return items, nil
}

func (d *actionItemRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ActionItem, error) {
	return d.inner.FindByID(ctx, tx, id)
}

func (d *actionItemRepoCacheDecorator) ReplaceForJob(ctx context.Context, tx repository.Tx, jobID string, items []*model.ActionItem) error {
	if err := d.inner.ReplaceForJob(ctx, tx, jobID, items); err != nil {
		return err
	}
	d.Invalidate(ctx, jobID)
	return nil
}

// Invalidate drops every cached listing of the job.
func (d *actionItemRepoCacheDecorator) Invalidate(ctx context.Context, jobID string) {
	metrics.IncCacheInvalidation("action_items")
	idx := actionItemJobKey(jobID)
	val, err := d.cache.Get(ctx, idx)
	if err != nil {
		_ = d.cache.Del(ctx, idx)
		return
	}
	var keys []string
	_ = json.Unmarshal([]byte(val), &keys)
	_ = d.cache.Del(ctx, append(keys, idx)...)
}

// remember tracks which filter keys exist for a job so Invalidate can find them.
func (d *actionItemRepoCacheDecorator) remember(ctx context.Context, jobID, key string) {
	idx := actionItemJobKey(jobID)
	var keys []string
	if val, err := d.cache.Get(ctx, idx); err == nil {
		_ = json.Unmarshal([]byte(val), &keys)
	}
	for _, k := range keys {
		if k == key {
			return
		}
	}
	b, _ := json.Marshal(append(keys, key))
	_ = d.cache.Set(ctx, idx, b, d.ttl)
}

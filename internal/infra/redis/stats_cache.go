package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/infra/metrics"
)

// StatsCache keeps computed job statistics. Only finished jobs are cached since their
// posts no longer change.
type StatsCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewStatsCache(client RedisClient, ttl time.Duration) *StatsCache {
	return &StatsCache{
		client: client,
		ttl:    ttl,
	}
}

func statsKey(jobID string) string { return "job_stats:" + jobID }

func (c *StatsCache) Store(ctx context.Context, jobID string, stats *model.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKey(jobID), data, c.ttl)
}

// Get returns Nil on a miss.
func (c *StatsCache) Get(ctx context.Context, jobID string) (*model.Stats, error) {
	data, err := c.client.Get(ctx, statsKey(jobID))
	switch {
	case errors.Is(err, Nil):
		metrics.IncCacheRequest("job_stats", "miss")
		return nil, err
	case err != nil:
		metrics.IncCacheRequest("job_stats", "error")
		return nil, err
	}
	metrics.IncCacheRequest("job_stats", "hit")
	var stats model.Stats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *StatsCache) Delete(ctx context.Context, jobID string) error {
	metrics.IncCacheInvalidation("job_stats")
	return c.client.Del(ctx, statsKey(jobID))
}

//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/repository"
)

func TestActionItemRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	impact := 72
	items := []*model.ActionItem{{ID: "a1", JobID: "job-1", Title: "Fix hydraulics", ImpactScore: &impact}}
	filter := model.ActionItemFilter{JobID: "job-1"}

	t.Run("List should return from cache on hit", func(t *testing.T) {
		payload, _ := json.Marshal(items)
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return string(payload), nil
			},
		}
		innerCalled := false
		inner := &mockInnerActionItemRepo{
			ListFunc: func(ctx context.Context, tx repository.Tx, f model.ActionItemFilter) ([]*model.ActionItem, error) {
				innerCalled = true
				return nil, nil
			},
		}

		got, err := NewActionItemRepoCacheDecorator(inner, mockRedis, 0).List(ctx, nil, filter)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if len(got) != 1 || got[0].Impact() != 72 {
			t.Errorf("unexpected items from cache: %+v", got)
		}
	})

	t.Run("List should fill the cache on miss", func(t *testing.T) {
		mockRedis, store := memRedis()
		calls := 0
		inner := &mockInnerActionItemRepo{
			ListFunc: func(ctx context.Context, tx repository.Tx, f model.ActionItemFilter) ([]*model.ActionItem, error) {
				calls++
				return items, nil
			},
		}
		d := NewActionItemRepoCacheDecorator(inner, mockRedis, 0)

		for i := 0; i < 2; i++ {
			if _, err := d.List(ctx, nil, filter); err != nil {
				t.Fatalf("list: %v", err)
			}
		}
		if calls != 1 {
			t.Errorf("expected one inner call, got %d", calls)
		}
		if _, ok := store[actionItemJobKey("job-1")]; !ok {
			t.Error("expected the per-job key index to be stored")
		}
	})

	t.Run("ReplaceForJob should invalidate every cached listing", func(t *testing.T) {
		mockRedis, store := memRedis()
		inner := &mockInnerActionItemRepo{
			ListFunc: func(ctx context.Context, tx repository.Tx, f model.ActionItemFilter) ([]*model.ActionItem, error) {
				return items, nil
			},
			ReplaceForJobFunc: func(ctx context.Context, tx repository.Tx, jobID string, items []*model.ActionItem) error {
				return nil
			},
		}
		d := NewActionItemRepoCacheDecorator(inner, mockRedis, 0)
		_, _ = d.List(ctx, nil, filter)
		_, _ = d.List(ctx, nil, model.ActionItemFilter{JobID: "job-1", Category: model.CategoryProduct})
		if len(store) != 3 {
			t.Fatalf("expected two listings and one index, got %d keys", len(store))
		}

		if err := d.ReplaceForJob(ctx, nil, "job-1", items); err != nil {
			t.Fatalf("replace: %v", err)
		}
		if len(store) != 0 {
			t.Errorf("expected cache to be empty, got %v", store)
		}
	})

	t.Run("ReplaceForJob should not invalidate when the write fails", func(t *testing.T) {
		deleted := false
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deleted = true
				return nil
			},
		}
		boom := errors.New("boom")
		inner := &mockInnerActionItemRepo{
			ReplaceForJobFunc: func(ctx context.Context, tx repository.Tx, jobID string, items []*model.ActionItem) error {
				return boom
			},
		}
		err := NewActionItemRepoCacheDecorator(inner, mockRedis, 0).ReplaceForJob(ctx, nil, "job-1", nil)
		if !errors.Is(err, boom) {
			t.Fatalf("expected inner error, got %v", err)
		}
		if deleted {
			t.Error("cache should be left alone on failure")
		}
	})
}

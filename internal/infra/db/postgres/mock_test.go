//go:build !integration

package postgres

import (
	"context"
	"time"

	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/repository"
	red "reddit-insights/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerActionItemRepo mocks the database repository that the decorator wraps.
type mockInnerActionItemRepo struct {
	ReplaceForJobFunc func(ctx context.Context, tx repository.Tx, jobID string, items []*model.ActionItem) error
	FindByIDFunc      func(ctx context.Context, tx repository.Tx, id string) (*model.ActionItem, error)
	ListFunc          func(ctx context.Context, tx repository.Tx, f model.ActionItemFilter) ([]*model.ActionItem, error)
}

func (m *mockInnerActionItemRepo) ReplaceForJob(ctx context.Context, tx repository.Tx, jobID string, items []*model.ActionItem) error {
	return m.ReplaceForJobFunc(ctx, tx, jobID, items)
}
func (m *mockInnerActionItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ActionItem, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerActionItemRepo) List(ctx context.Context, tx repository.Tx, f model.ActionItemFilter) ([]*model.ActionItem, error) {
	return m.ListFunc(ctx, tx, f)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc   func(ctx context.Context, keys ...string) error
	PingFunc  func(ctx context.Context) error
	IncrFunc  func(ctx context.Context, key string, window time.Duration) (int64, error)
	CloseFunc func() error

	SetUnlessFunc func(ctx context.Context, key, value, keep string, expiration time.Duration) (bool, error)
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	return m.IncrFunc(ctx, key, window)
}
func (m *mockRedisClient) SetUnless(ctx context.Context, key, value, keep string, expiration time.Duration) (bool, error) {
	return m.SetUnlessFunc(ctx, key, value, keep, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }

// memRedis is a map-backed mockRedisClient for flows that read back what they wrote.
func memRedis() (*mockRedisClient, map[string]string) {
	store := map[string]string{}
	return &mockRedisClient{
		GetFunc: func(ctx context.Context, key string) (string, error) {
			v, ok := store[key]
			if !ok {
				return "", red.Nil
			}
			return v, nil
		},
		SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
			switch v := value.(type) {
			case []byte:
				store[key] = string(v)
			case string:
				store[key] = v
			}
			return nil
		},
		DelFunc: func(ctx context.Context, keys ...string) error {
			for _, k := range keys {
				delete(store, k)
			}
			return nil
		},
	}, store
}

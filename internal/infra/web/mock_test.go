//go:build !integration

package web

import (
	"context"
	"io"
	"sync"
	"time"

	"reddit-insights/internal/config"
	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type mockJobUC struct {
	SubmitFunc   func(ctx context.Context, cfg model.JobConfig) (*model.Job, int, error)
	GetFunc      func(ctx context.Context, id string) (*model.Job, error)
	ListFunc     func(ctx context.Context, offset, limit int) ([]*model.Job, int, error)
	PauseFunc    func(ctx context.Context, id string) (*model.Job, error)
	ResumeFunc   func(ctx context.Context, id string) (*model.Job, error)
	CancelFunc   func(ctx context.Context, id string) (*model.Job, error)
	DeleteFunc   func(ctx context.Context, id string) error
	ValidateFunc func(ctx context.Context, names []string) (map[string]bool, error)
}

func (m *mockJobUC) Submit(ctx context.Context, cfg model.JobConfig) (*model.Job, int, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, cfg)
	}
	return model.NewJob(cfg), 30, nil
}

func (m *mockJobUC) Get(ctx context.Context, id string) (*model.Job, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockJobUC) List(ctx context.Context, offset, limit int) ([]*model.Job, int, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, offset, limit)
	}
	return []*model.Job{}, 0, nil
}

func (m *mockJobUC) Pause(ctx context.Context, id string) (*model.Job, error) {
	if m.PauseFunc != nil {
		return m.PauseFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockJobUC) Resume(ctx context.Context, id string) (*model.Job, error) {
	if m.ResumeFunc != nil {
		return m.ResumeFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockJobUC) Cancel(ctx context.Context, id string) (*model.Job, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockJobUC) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *mockJobUC) ValidateSubreddits(ctx context.Context, names []string) (map[string]bool, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, names)
	}
	return map[string]bool{}, nil
}

type mockPostUC struct {
	ListFunc func(ctx context.Context, f model.PostFilter) ([]*model.Post, int, error)
	GetFunc  func(ctx context.Context, jobID, id string) (*model.Post, error)
	counts   map[string]int
}

func (m *mockPostUC) List(ctx context.Context, f model.PostFilter) ([]*model.Post, int, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	return []*model.Post{}, 0, nil
}

func (m *mockPostUC) Get(ctx context.Context, jobID, id string) (*model.Post, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, jobID, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockPostUC) SubredditCounts(ctx context.Context, jobID string) (map[string]int, error) {
	if m.counts == nil {
		return nil, domain.ErrNotFound
	}
	return m.counts, nil
}

type mockInsightUC struct {
	ActionItemsFunc func(ctx context.Context, f model.ActionItemFilter) ([]*model.ActionItem, error)
	items           map[string]*model.ActionItem
	related         []*model.Post
	stats           *model.Stats
}

func (m *mockInsightUC) Stats(ctx context.Context, jobID string) (*model.Stats, error) {
	if m.stats == nil {
		return nil, domain.ErrNotFound
	}
	return m.stats, nil
}

func (m *mockInsightUC) ActionItems(ctx context.Context, f model.ActionItemFilter) ([]*model.ActionItem, error) {
	if m.ActionItemsFunc != nil {
		return m.ActionItemsFunc(ctx, f)
	}
	return []*model.ActionItem{}, nil
}

func (m *mockInsightUC) ActionItem(ctx context.Context, id string) (*model.ActionItem, error) {
	if it, ok := m.items[id]; ok {
		return it, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockInsightUC) RelatedPosts(ctx context.Context, itemID string) ([]*model.Post, error) {
	if _, ok := m.items[itemID]; !ok {
		return nil, domain.ErrNotFound
	}
	return m.related, nil
}

func (m *mockInsightUC) Summary(ctx context.Context, jobID string) (*model.ActionItemSummary, error) {
	return &model.ActionItemSummary{
		Total:      1,
		ByCategory: map[model.Category]int{model.CategoryProduct: 1},
		ByPriority: map[model.Priority]int{model.PriorityHigh: 1},
		AvgImpact:  72,
	}, nil
}

func (m *mockInsightUC) ExecutiveSummary(ctx context.Context, jobID string) (*model.ExecutiveSummary, error) {
	return &model.ExecutiveSummary{JobID: jobID, TotalPosts: 4, NegativePercentage: 75}, nil
}

type mockChatUC struct {
	AskFunc func(ctx context.Context, jobID, question string) (string, error)
	models  []string
}

func (m *mockChatUC) BuildContext(ctx context.Context, jobID, question string) (string, error) {
	return "", nil
}

func (m *mockChatUC) Ask(ctx context.Context, jobID, question string) (string, error) {
	if m.AskFunc != nil {
		return m.AskFunc(ctx, jobID, question)
	}
	return "ok", nil
}

func (m *mockChatUC) ListModels(ctx context.Context) ([]string, error) {
	return m.models, nil
}

// countingLimiter admits the first limit calls per key.
type countingLimiter struct {
	mu   sync.Mutex
	hits map[string]int
	err  error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hits == nil {
		l.hits = map[string]int{}
	}
	l.hits[key]++
	return l.hits[key] <= limit, nil
}

type testServer struct {
	jobs     *mockJobUC
	posts    *mockPostUC
	insights *mockInsightUC
	chat     *mockChatUC
	limiter  *countingLimiter
	checks   map[string]Check
}

func newTestServer() *testServer {
	return &testServer{
		jobs:     &mockJobUC{},
		posts:    &mockPostUC{},
		insights: &mockInsightUC{items: map[string]*model.ActionItem{}},
		chat:     &mockChatUC{models: []string{"llama3.2"}},
		limiter:  &countingLimiter{},
		checks:   map[string]Check{},
	}
}

func (ts *testServer) server() *Server {
	deps := Deps{
		Jobs:     ts.jobs,
		Posts:    ts.posts,
		Insights: ts.insights,
		Chat:     ts.chat,
		Limiter:  ts.limiter,
		Checks:   ts.checks,
	}
	cfg := config.HTTPConfig{RequestTimeout: 5 * time.Second, ChatRateLimit: 2, ChatRateWindow: time.Minute}
	return NewServer(deps, cfg, newTestLogger())
}

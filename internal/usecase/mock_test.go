package usecase

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/adapter"
	"reddit-insights/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- In-memory store shared by the repositories ----

type memStore struct {
	mu    sync.Mutex
	jobs  map[string]*model.Job
	posts map[string][]*model.Post // by job, in discovery order
	items map[string][]*model.ActionItem
	seq   int

	// progress records every accepted progress write, in order.
	progress []model.Progress
	// saves counts SaveAnalysis calls per post id.
	saves map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:  map[string]*model.Job{},
		posts: map[string][]*model.Post{},
		items: map[string][]*model.ActionItem{},
		saves: map[string]int{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func copyJob(j *model.Job) *model.Job {
	cp := *j
	return &cp
}

func copyPost(p *model.Post) *model.Post {
	cp := *p
	if p.Analysis != nil {
		a := *p.Analysis
		cp.Analysis = &a
	}
	return &cp
}

// ---- Jobs ----

type memJobRepo struct {
	s *memStore

	ClaimNextFunc func(ctx context.Context) (*model.Job, error)
}

var _ repository.JobRepository = (*memJobRepo)(nil)

func (r *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(j), nil
}

func (r *memJobRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return r.FindByID(ctx, tx, id)
}

func (r *memJobRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]*model.Job, 0, len(r.s.jobs))
	for _, j := range r.s.jobs {
		all = append(all, copyJob(j))
	}
	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })
	if offset >= len(all) {
		return []*model.Job{}, nil
	}
	return all[offset:min(len(all), offset+limit)], nil
}

func (r *memJobRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.jobs), nil
}

func (r *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *memJobRepo) UpdateProgress(ctx context.Context, tx repository.Tx, job *model.Job) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.jobs[job.ID]
	if !ok || cur.Status != model.JobStatusRunning {
		return false, nil
	}
	now := time.Now().UTC()
	cur.Progress = job.Progress
	cur.FetchCursor = job.FetchCursor
	cur.FailedSearches = job.FailedSearches
	cur.Touch(now)
	job.Touch(now)
	r.s.progress = append(r.s.progress, job.Progress)
	return true, nil
}

func (r *memJobRepo) ClaimNext(ctx context.Context) (*model.Job, error) {
	if r.ClaimNextFunc != nil {
		return r.ClaimNextFunc(ctx)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var pick *model.Job
	for _, j := range r.s.jobs {
		claimable := j.Status == model.JobStatusPending || (j.Status == model.JobStatusRunning && j.HeartbeatAt == nil)
		if claimable && (pick == nil || j.CreatedAt.Before(pick.CreatedAt)) {
			pick = j
		}
	}
	if pick == nil {
		return nil, domain.ErrNotFound
	}
	now := time.Now().UTC()
	if pick.Status == model.JobStatusPending {
		if err := pick.TransitionTo(model.JobStatusRunning, now); err != nil {
			return nil, err
		}
	}
	pick.Touch(now)
	return copyJob(pick), nil
}

func (r *memJobRepo) ListStale(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Job
	for _, j := range r.s.jobs {
		if j.Status == model.JobStatusRunning && j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			out = append(out, copyJob(j))
		}
	}
	return out, nil
}

func (r *memJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.jobs, id)
	delete(r.s.posts, id)
	delete(r.s.items, id)
	return nil
}

// ---- Posts ----

type memPostRepo struct {
	s *memStore

	SaveAnalysisErr error
}

var _ repository.PostRepository = (*memPostRepo)(nil)

func (r *memPostRepo) InsertIfAbsent(ctx context.Context, tx repository.Tx, p *model.Post) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[p.JobID]; !ok {
		return false, fmt.Errorf("insert post: job %s does not exist", p.JobID)
	}
	for _, e := range r.s.posts[p.JobID] {
		if e.SourceID == p.SourceID {
			return false, nil
		}
	}
	p.ID = r.s.nextID("post")
	p.Seq = len(r.s.posts[p.JobID]) + 1
	r.s.posts[p.JobID] = append(r.s.posts[p.JobID], copyPost(p))
	return true, nil
}

func (r *memPostRepo) SaveAnalysis(ctx context.Context, tx repository.Tx, p *model.Post) error {
	if r.SaveAnalysisErr != nil {
		return r.SaveAnalysisErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, e := range r.s.posts[p.JobID] {
		if e.ID == p.ID {
			cp := copyPost(e)
			cp.State, cp.AnalyzedAt = p.State, p.AnalyzedAt
			if p.Analysis != nil {
				a := *p.Analysis
				cp.Analysis = &a
			}
			r.s.posts[p.JobID][i] = cp
			r.s.saves[p.ID]++
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memPostRepo) FindByID(ctx context.Context, tx repository.Tx, jobID, id string) (*model.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.posts[jobID] {
		if p.ID == id {
			return copyPost(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPostRepo) FindByIDs(ctx context.Context, tx repository.Tx, jobID string, ids []string) ([]*model.Post, error) {
	return r.filter(jobID, func(p *model.Post) bool { return contains(ids, p.ID) }), nil
}

func (r *memPostRepo) ListPending(ctx context.Context, tx repository.Tx, jobID string, limit int) ([]*model.Post, error) {
	out := r.filter(jobID, func(p *model.Post) bool { return p.State == model.AnalysisPending })
	return out[:min(len(out), limit)], nil
}

func (r *memPostRepo) ListUsable(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Post, error) {
	return r.filter(jobID, func(p *model.Post) bool { return p.State.Usable() }), nil
}

func (r *memPostRepo) ListTopLevel(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Post, error) {
	return r.filter(jobID, func(p *model.Post) bool { return p.ParentID == nil }), nil
}

func (r *memPostRepo) List(ctx context.Context, tx repository.Tx, f model.PostFilter) ([]*model.Post, int, error) {
	all := r.filter(f.JobID, func(p *model.Post) bool {
		if len(f.Sentiments) > 0 && (p.Analysis == nil || !containsSentiment(f.Sentiments, p.Analysis.Sentiment)) {
			return false
		}
		if len(f.Subreddits) > 0 && !containsFold(f.Subreddits, p.Subreddit) {
			return false
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Text()), strings.ToLower(f.Search)) {
			return false
		}
		return true
	})
	if f.Offset >= len(all) {
		return []*model.Post{}, len(all), nil
	}
	return all[f.Offset:min(len(all), f.Offset+f.Limit)], len(all), nil
}

func (r *memPostRepo) SubredditCounts(ctx context.Context, tx repository.Tx, jobID string) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range r.filter(jobID, func(*model.Post) bool { return true }) {
		out[strings.ToLower(p.Subreddit)]++
	}
	return out, nil
}

func (r *memPostRepo) StateCounts(ctx context.Context, tx repository.Tx, jobID string) (map[model.AnalysisState]int, error) {
	out := map[model.AnalysisState]int{}
	for _, p := range r.filter(jobID, func(*model.Post) bool { return true }) {
		out[p.State]++
	}
	return out, nil
}

func (r *memPostRepo) filter(jobID string, keep func(*model.Post) bool) []*model.Post {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Post{}
	for _, p := range r.s.posts[jobID] {
		if keep(p) {
			out = append(out, copyPost(p))
		}
	}
	return out
}

func containsSentiment(list []model.Sentiment, s model.Sentiment) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ---- Action items ----

type memActionItemRepo struct {
	s           *memStore
	invalidated []string
}

var _ repository.ActionItemRepository = (*memActionItemRepo)(nil)

func (r *memActionItemRepo) ReplaceForJob(ctx context.Context, tx repository.Tx, jobID string, items []*model.ActionItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := make([]*model.ActionItem, 0, len(items))
	for _, it := range items {
		it.ID = r.s.nextID("item")
		it.JobID = jobID
		cp := *it
		stored = append(stored, &cp)
	}
	r.s.items[jobID] = stored
	return nil
}

func (r *memActionItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ActionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, items := range r.s.items {
		for _, it := range items {
			if it.ID == id {
				cp := *it
				return &cp, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memActionItemRepo) List(ctx context.Context, tx repository.Tx, f model.ActionItemFilter) ([]*model.ActionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.ActionItem{}
	for _, it := range r.s.items[f.JobID] {
		if (f.Category == "" || it.Category == f.Category) && (f.Priority == "" || it.Priority == f.Priority) {
			cp := *it
			out = append(out, &cp)
		}
	}
	SortActionItems(out)
	return out, nil
}

func (r *memActionItemRepo) Invalidate(ctx context.Context, jobID string) {
	r.invalidated = append(r.invalidated, jobID)
}

// ---- Transactions ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Signals ----

type memSignals struct {
	mu   sync.Mutex
	m    map[string]adapter.Signal
	fail error
}

var _ adapter.JobSignals = (*memSignals)(nil)

func newMemSignals() *memSignals { return &memSignals{m: map[string]adapter.Signal{}} }

func (s *memSignals) Raise(ctx context.Context, jobID string, sig adapter.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig == adapter.SignalPause && s.m[jobID] == adapter.SignalCancel {
		return nil
	}
	s.m[jobID] = sig
	return nil
}

func (s *memSignals) Peek(ctx context.Context, jobID string) (adapter.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return adapter.SignalNone, s.fail
	}
	return s.m[jobID], nil
}

func (s *memSignals) Clear(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, jobID)
	return nil
}

// ---- Data source ----

type fakeSource struct {
	mu       sync.Mutex
	results  map[string][]adapter.RawPost // by "sub|keyword"
	errs     map[string]error
	comments map[string][]adapter.RawPost // by parent source id
	exists   map[string]bool
	searches int

	// afterSearch runs once a search has been served.
	afterSearch func(q adapter.SearchQuery)
}

var _ adapter.PostSource = (*fakeSource)(nil)

func newFakeSource() *fakeSource {
	return &fakeSource{
		results:  map[string][]adapter.RawPost{},
		errs:     map[string]error{},
		comments: map[string][]adapter.RawPost{},
		exists:   map[string]bool{},
	}
}

func sourceKey(sub, kw string) string { return strings.ToLower(sub) + "|" + strings.ToLower(kw) }

func (f *fakeSource) Search(ctx context.Context, q adapter.SearchQuery) iter.Seq2[adapter.RawPost, error] {
	return func(yield func(adapter.RawPost, error) bool) {
		f.mu.Lock()
		f.searches++
		items := f.results[sourceKey(q.Subreddit, q.Keyword)]
		err := f.errs[sourceKey(q.Subreddit, q.Keyword)]
		f.mu.Unlock()
		for i, raw := range items {
			if i == q.Limit {
				return
			}
			if !yield(raw, nil) {
				return
			}
		}
		if err != nil {
			yield(adapter.RawPost{}, err)
		}
		if f.afterSearch != nil {
			f.afterSearch(q)
		}
	}
}

func (f *fakeSource) SubredditExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["about|"+strings.ToLower(name)]; err != nil {
		return false, err
	}
	return f.exists[strings.ToLower(name)], nil
}

func (f *fakeSource) Comments(ctx context.Context, subreddit, postID string, limit int) ([]adapter.RawPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.comments[postID]
	return c[:min(len(c), limit)], nil
}

func (f *fakeSource) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

// rawPosts builds n distinct items with ids "<prefix>1".."<prefix>n".
func rawPosts(prefix, sub string, n int) []adapter.RawPost {
	out := make([]adapter.RawPost, n)
	for i := range out {
		out[i] = adapter.RawPost{
			SourceID:    fmt.Sprintf("%s%d", prefix, i+1),
			Title:       fmt.Sprintf("Post %d about the skid steer", i+1),
			Body:        "The hydraulic system started leaking after a month.",
			Author:      "user" + fmt.Sprint(i+1),
			Subreddit:   sub,
			Permalink:   fmt.Sprintf("https://www.reddit.com/r/%s/comments/%s%d/", sub, prefix, i+1),
			Score:       10 + i,
			NumComments: 0,
			CreatedAt:   time.Now().Add(-time.Duration(i) * 24 * time.Hour).UTC(),
		}
	}
	return out
}

// ---- Oracle ----

type mockAI struct {
	calls atomic.Int32

	ChatFunc func(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, error)
}

var _ adapter.AIServiceAdapter = (*mockAI)(nil)

const validReply = `{"sentiment":"negative","score":-0.8,"pain_points":["hydraulic leak"],` +
	`"features":["longer warranty"],"brands":["Bobcat"],"user_type":"professional","summary":"Leaking hydraulics."}`

func (m *mockAI) ListModels(ctx context.Context) ([]string, error) { return []string{"llama3.2"}, nil }

func (m *mockAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, msg := range messages {
		n += len(strings.Fields(msg.Content))
	}
	return n, nil
}

func (m *mockAI) Chat(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, error) {
	m.calls.Add(1)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, model, messages, opts)
	}
	return validReply, nil
}

func (m *mockAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, adapter.Usage, error) {
	reply, err := m.Chat(ctx, model, messages, opts)
	return reply, adapter.Usage{}, err
}

// wordTokenizer counts whitespace separated words.
type wordTokenizer struct{}

func (wordTokenizer) Text(s string) int { return len(strings.Fields(s)) }

// ---- Stats cache ----

type memStatsCache struct {
	mu     sync.Mutex
	m      map[string]*model.Stats
	stores int
}

func newMemStatsCache() *memStatsCache { return &memStatsCache{m: map[string]*model.Stats{}} }

func (c *memStatsCache) Store(ctx context.Context, jobID string, st *model.Stats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[jobID] = st
	c.stores++
	return nil
}

func (c *memStatsCache) Get(ctx context.Context, jobID string) (*model.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.m[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return st, nil
}

func (c *memStatsCache) Delete(ctx context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, jobID)
	return nil
}

// ---- Harness ----

type harness struct {
	store   *memStore
	jobs    *memJobRepo
	posts   *memPostRepo
	items   *memActionItemRepo
	signals *memSignals
	source  *fakeSource
	ai      *mockAI
	cache   *memStatsCache
	worker  *AnalysisWorker
	runner  *jobRunner
	jobUC   *jobUC
}

func newHarness() *harness {
	s := newMemStore()
	h := &harness{
		store:   s,
		jobs:    &memJobRepo{s: s},
		posts:   &memPostRepo{s: s},
		items:   &memActionItemRepo{s: s},
		signals: newMemSignals(),
		source:  newFakeSource(),
		ai:      &mockAI{},
		cache:   newMemStatsCache(),
	}
	tm := &MockTxManager{}
	h.worker = newTestWorker(h.ai)
	h.runner = NewJobRunner(h.jobs, h.posts, h.items, tm, h.source, h.signals, h.worker, NewAggregator(),
		RunnerOptions{Concurrency: 1, CommentLimit: 5}, newTestLogger())
	h.jobUC = NewJobUseCase(h.jobs, tm, h.signals, h.source, h.cache, newTestLogger(), h.items)
	return h
}

func newTestWorker(ai adapter.AIServiceAdapter) *AnalysisWorker {
	w := &AnalysisWorker{
		ai:          ai,
		model:       "llama3.2",
		industry:    "construction equipment",
		maxAttempts: 3,
		sleep:       func(ctx context.Context, d time.Duration) error { return ctx.Err() },
		log:         newTestLogger(),
	}
	return w
}

func (h *harness) job(id string) *model.Job {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return copyJob(h.store.jobs[id])
}

func (h *harness) allPosts(jobID string) []*model.Post {
	return h.posts.filter(jobID, func(*model.Post) bool { return true })
}

//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/infra/api"
)

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestCreateJob(t *testing.T) {
	t.Run("include_comments defaults to true", func(t *testing.T) {
		ts := newTestServer()
		var got model.JobConfig
		ts.jobs.SubmitFunc = func(_ context.Context, cfg model.JobConfig) (*model.Job, int, error) {
			got = cfg
			return model.NewJob(cfg), 42, nil
		}
		rec := do(t, ts.server().Handler(), http.MethodPost, "/api/v1/jobs",
			`{"subreddits":["landscaping"],"keywords":["bobcat"],"time_filter":"month","sort_by":"top","post_limit":20}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d, body=%s", rec.Code, rec.Body.String())
		}
		if !got.IncludeComments || got.TimeFilter != model.TimeFilterMonth || got.Sort != model.SortTop || got.PostLimit != 20 {
			t.Errorf("config = %+v", got)
		}
		body := decode[map[string]any](t, rec)
		if body["estimated_seconds"] != float64(42) || body["status"] != "pending" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("explicit include_comments false is kept", func(t *testing.T) {
		ts := newTestServer()
		var got model.JobConfig
		ts.jobs.SubmitFunc = func(_ context.Context, cfg model.JobConfig) (*model.Job, int, error) {
			got = cfg
			return model.NewJob(cfg), 1, nil
		}
		do(t, ts.server().Handler(), http.MethodPost, "/api/v1/jobs",
			`{"subreddits":["a"],"keywords":["b"],"include_comments":false}`)
		if got.IncludeComments {
			t.Error("include_comments must be false")
		}
	})

	t.Run("validation error maps to 422 with the field", func(t *testing.T) {
		ts := newTestServer()
		ts.jobs.SubmitFunc = func(context.Context, model.JobConfig) (*model.Job, int, error) {
			return nil, 0, fmt.Errorf("submit: %w", &model.ValidationError{Field: "post_limit", Reason: "must be between 10 and 100"})
		}
		rec := do(t, ts.server().Handler(), http.MethodPost, "/api/v1/jobs", `{"post_limit":500}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("want 422, got %d", rec.Code)
		}
		body := decode[errorResponse](t, rec)
		if body.Field != "post_limit" || body.Error != "must be between 10 and 100" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		ts := newTestServer()
		rec := do(t, ts.server().Handler(), http.MethodPost, "/api/v1/jobs", `{"subreddits":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})
}

func TestListJobs(t *testing.T) {
	ts := newTestServer()
	var gotOffset, gotLimit int
	ts.jobs.ListFunc = func(_ context.Context, offset, limit int) ([]*model.Job, int, error) {
		gotOffset, gotLimit = offset, limit
		return []*model.Job{model.NewJob(model.JobConfig{})}, 7, nil
	}
	h := ts.server().Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/jobs?limit=5&offset=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	body := decode[listResponse[*model.Job]](t, rec)
	if body.Total != 7 || len(body.Items) != 1 || gotOffset != 2 || gotLimit != 5 {
		t.Errorf("body = %+v, offset %d limit %d", body, gotOffset, gotLimit)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/jobs?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: got %d", rec.Code)
	}
}

func TestJobControl(t *testing.T) {
	ts := newTestServer()
	running := model.NewJob(model.JobConfig{})
	running.Status = model.JobStatusRunning
	paused := model.NewJob(model.JobConfig{})
	paused.Status = model.JobStatusPaused

	ts.jobs.PauseFunc = func(_ context.Context, id string) (*model.Job, error) {
		switch id {
		case "run":
			return running, nil
		case "idle":
			return paused, nil
		case "done":
			return nil, fmt.Errorf("%w: completed -> paused", domain.ErrInvalidTransition)
		}
		return nil, domain.ErrNotFound
	}
	ts.jobs.ResumeFunc = func(context.Context, string) (*model.Job, error) { return running, nil }
	h := ts.server().Handler()

	cases := []struct {
		target string
		want   int
	}{
		{"/api/v1/jobs/run/pause", http.StatusAccepted},
		{"/api/v1/jobs/idle/pause", http.StatusOK},
		{"/api/v1/jobs/done/pause", http.StatusConflict},
		{"/api/v1/jobs/nope/pause", http.StatusNotFound},
		{"/api/v1/jobs/idle/resume", http.StatusOK},
	}
	for _, tc := range cases {
		if rec := do(t, h, http.MethodPost, tc.target, ""); rec.Code != tc.want {
			t.Errorf("%s: want %d, got %d", tc.target, tc.want, rec.Code)
		}
	}
}

func TestGetAndDeleteJob(t *testing.T) {
	ts := newTestServer()
	var deleted string
	ts.jobs.DeleteFunc = func(_ context.Context, id string) error {
		deleted = id
		return nil
	}
	h := ts.server().Handler()

	if rec := do(t, h, http.MethodGet, "/api/v1/jobs/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get missing: got %d", rec.Code)
	}
	rec := do(t, h, http.MethodDelete, "/api/v1/jobs/j-1", "")
	if rec.Code != http.StatusNoContent || deleted != "j-1" {
		t.Errorf("delete: got %d for %q", rec.Code, deleted)
	}
}

func TestListPosts_Filters(t *testing.T) {
	ts := newTestServer()
	var got model.PostFilter
	ts.posts.ListFunc = func(_ context.Context, f model.PostFilter) ([]*model.Post, int, error) {
		got = f
		return []*model.Post{{ID: "p1"}}, 1, nil
	}
	h := ts.server().Handler()

	rec := do(t, h, http.MethodGet,
		"/api/v1/jobs/j-1/posts?sentiment=negative,neutral&sentiment=positive&subreddit=r/Landscaping"+
			"&has_pain_points=true&search=+leak+&sort_by=score&limit=20&offset=40", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	if got.JobID != "j-1" || len(got.Sentiments) != 3 || got.Sentiments[2] != model.SentimentPositive {
		t.Errorf("filter = %+v", got)
	}
	if len(got.Subreddits) != 1 || got.Subreddits[0] != "Landscaping" {
		t.Errorf("subreddits = %v", got.Subreddits)
	}
	if got.HasPainPoints == nil || !*got.HasPainPoints || got.HasFeatureRequests != nil {
		t.Error("boolean filters not parsed")
	}
	if got.Search != "leak" || got.SortBy != "score" || !got.SortDesc || got.Limit != 20 || got.Offset != 40 {
		t.Errorf("filter = %+v", got)
	}

	do(t, h, http.MethodGet, "/api/v1/jobs/j-1/posts", "")
	if got.SortDesc {
		t.Error("natural order must be ascending")
	}
	do(t, h, http.MethodGet, "/api/v1/jobs/j-1/posts?sort_by=created_at&sort_order=asc", "")
	if got.SortDesc {
		t.Error("sort_order=asc ignored")
	}

	for _, q := range []string{"sort_order=sideways", "has_pain_points=maybe", "offset=x"} {
		if rec := do(t, h, http.MethodGet, "/api/v1/jobs/j-1/posts?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: want 400, got %d", q, rec.Code)
		}
	}
}

func TestPostStatsAndCounts(t *testing.T) {
	ts := newTestServer()
	ts.insights.stats = &model.Stats{TotalPosts: 9}
	ts.posts.counts = map[string]int{"landscaping": 9}
	h := ts.server().Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/jobs/j-1/stats", "")
	if st := decode[model.Stats](t, rec); rec.Code != http.StatusOK || st.TotalPosts != 9 {
		t.Errorf("stats: %d %+v", rec.Code, st)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/jobs/j-1/subreddits", "")
	if body := decode[subredditCountsResponse](t, rec); body.Subreddits["landscaping"] != 9 {
		t.Errorf("counts = %+v", body)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/jobs/j-1/posts/p-9", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing post: got %d", rec.Code)
	}
}

func TestActionItems(t *testing.T) {
	ts := newTestServer()
	var got model.ActionItemFilter
	ts.insights.ActionItemsFunc = func(_ context.Context, f model.ActionItemFilter) ([]*model.ActionItem, error) {
		got = f
		return []*model.ActionItem{{ID: "a1"}}, nil
	}
	ts.insights.items["a1"] = &model.ActionItem{ID: "a1", Title: "Fix hydraulic leaks"}
	ts.insights.related = []*model.Post{{ID: "p1"}, {ID: "p2"}}
	h := ts.server().Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/jobs/j-1/action-items?category=Product&priority=high&sort_by=impact_score", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if got.Category != model.CategoryProduct || got.Priority != model.PriorityHigh || got.SortBy != "impact" {
		t.Errorf("filter = %+v", got)
	}

	for _, q := range []string{"category=legal", "priority=urgent", "sort_by=title"} {
		if rec := do(t, h, http.MethodGet, "/api/v1/jobs/j-1/action-items?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: want 400, got %d", q, rec.Code)
		}
	}

	rec = do(t, h, http.MethodGet, "/api/v1/action-items/a1", "")
	if it := decode[model.ActionItem](t, rec); it.Title != "Fix hydraulic leaks" {
		t.Errorf("item = %+v", it)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/action-items/a1/related-posts", "")
	if body := decode[listResponse[*model.Post]](t, rec); body.Total != 2 {
		t.Errorf("related = %+v", body)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/action-items/zz/related-posts", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing item: got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs/j-1/action-items/summary", "")
	if sum := decode[model.ActionItemSummary](t, rec); sum.Total != 1 || sum.AvgImpact != 72 {
		t.Errorf("summary = %+v", sum)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/jobs/j-1/executive-summary", "")
	if ex := decode[model.ExecutiveSummary](t, rec); ex.JobID != "j-1" || ex.NegativePercentage != 75 {
		t.Errorf("executive summary = %+v", ex)
	}
}

func TestChat(t *testing.T) {
	t.Run("answers and maps errors", func(t *testing.T) {
		ts := newTestServer()
		ts.chat.AskFunc = func(_ context.Context, jobID, q string) (string, error) {
			switch jobID {
			case "fresh":
				return "", fmt.Errorf("chat: %w", domain.ErrJobNotReady)
			case "down":
				return "", domain.ErrOracleUnavailable
			}
			return "Leaks, mostly. " + q, nil
		}
		srv := ts.server()
		srv.deps.Limiter = nil
		h := srv.Handler()

		rec := do(t, h, http.MethodPost, "/api/v1/insights/chat", `{"job_id":"j-1","message":"why?"}`)
		if body := decode[chatResponse](t, rec); rec.Code != http.StatusOK || body.Response != "Leaks, mostly. why?" {
			t.Errorf("chat: %d %+v", rec.Code, body)
		}
		cases := map[string]int{
			`{"job_id":"fresh","message":"q"}`: http.StatusConflict,
			`{"job_id":"down","message":"q"}`:  http.StatusBadGateway,
			`{"message":"q"}`:                  http.StatusBadRequest,
		}
		for body, want := range cases {
			if rec := do(t, h, http.MethodPost, "/api/v1/insights/chat", body); rec.Code != want {
				t.Errorf("%s: want %d, got %d", body, want, rec.Code)
			}
		}
	})

	t.Run("rate limited per client", func(t *testing.T) {
		ts := newTestServer()
		h := ts.server().Handler()
		for i := 0; i < 2; i++ {
			if rec := do(t, h, http.MethodPost, "/api/v1/insights/chat", `{"job_id":"j","message":"q"}`); rec.Code != http.StatusOK {
				t.Fatalf("request %d: got %d", i, rec.Code)
			}
		}
		rec := do(t, h, http.MethodPost, "/api/v1/insights/chat", `{"job_id":"j","message":"q"}`)
		if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "60" {
			t.Errorf("third request: %d retry-after %q", rec.Code, rec.Header().Get("Retry-After"))
		}
		if _, ok := ts.limiter.hits["rate_limit:192.0.2.1:chat"]; !ok {
			t.Errorf("limiter keys = %v", ts.limiter.hits)
		}
		if rec := do(t, h, http.MethodGet, "/api/v1/insights/models", ""); rec.Code != http.StatusOK {
			t.Errorf("other routes must not be limited, got %d", rec.Code)
		}
	})

	t.Run("limiter outage lets requests through", func(t *testing.T) {
		ts := newTestServer()
		ts.limiter.err = errors.New("redis down")
		h := ts.server().Handler()
		for i := 0; i < 4; i++ {
			if rec := do(t, h, http.MethodPost, "/api/v1/insights/chat", `{"job_id":"j","message":"q"}`); rec.Code != http.StatusOK {
				t.Fatalf("request %d: got %d", i, rec.Code)
			}
		}
	})
}

func TestValidateSubreddits(t *testing.T) {
	ts := newTestServer()
	ts.jobs.ValidateFunc = func(_ context.Context, names []string) (map[string]bool, error) {
		if len(names) == 0 {
			return nil, domain.ErrInvalidArgument
		}
		return map[string]bool{"landscaping": true, "nosuchplace": false}, nil
	}
	h := ts.server().Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/reddit/validate", `{"subreddits":["landscaping","nosuchplace"]}`)
	body := decode[validateResponse](t, rec)
	if rec.Code != http.StatusOK || !body.Results["landscaping"] || body.Results["nosuchplace"] {
		t.Errorf("validate: %d %+v", rec.Code, body)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/reddit/validate", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty: got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer()
	ts.checks["db"] = func(context.Context) error { return nil }
	ts.checks["redis"] = func(context.Context) error { return nil }
	h := ts.server().Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	if body := decode[healthResponse](t, rec); rec.Code != http.StatusOK || body.Status != "ok" || len(body.Checks) != 2 {
		t.Errorf("healthy: %d %+v", rec.Code, body)
	}

	ts.checks["oracle"] = func(context.Context) error { return errors.New("connection refused") }
	h = ts.server().Handler()
	rec = do(t, h, http.MethodGet, "/health", "")
	body := decode[healthResponse](t, rec)
	if rec.Code != http.StatusServiceUnavailable || body.Status != "degraded" || body.Checks["oracle"] != "connection refused" {
		t.Errorf("degraded: %d %+v", rec.Code, body)
	}
}

func TestTraceIDAndRecover(t *testing.T) {
	ts := newTestServer()
	ts.jobs.GetFunc = func(context.Context, string) (*model.Job, error) { panic("boom") }
	h := ts.server().Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/j-1", nil)
	req.Header.Set(api.TraceHeader, "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("panic: want 500, got %d", rec.Code)
	}
	if rec.Header().Get(api.TraceHeader) != "trace-123" {
		t.Errorf("trace header = %q", rec.Header().Get(api.TraceHeader))
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&model.ValidationError{Field: "keywords"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", domain.ErrInvalidArgument), http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrJobNotReady, http.StatusConflict},
		{domain.ErrOracleUnavailable, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestTimeoutReachesHandlers(t *testing.T) {
	ts := newTestServer()
	var deadline bool
	ts.jobs.GetFunc = func(ctx context.Context, id string) (*model.Job, error) {
		_, deadline = ctx.Deadline()
		return model.NewJob(model.JobConfig{}), nil
	}
	srv := ts.server()
	srv.cfg.RequestTimeout = time.Second
	do(t, srv.Handler(), http.MethodGet, "/api/v1/jobs/j-1", "")
	if !deadline {
		t.Error("request context has no deadline")
	}
}

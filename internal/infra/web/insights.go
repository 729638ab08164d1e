package web

import (
	"fmt"
	"net/http"
	"strings"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

// actionItemSorts maps public sort names onto repository orderings.
var actionItemSorts = map[string]string{
	"":             "",
	"impact_score": "impact",
	"priority":     "priority",
	"created_at":   "created_at",
}

// multiValue accepts both repeated parameters and comma separated lists.
func multiValue(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func postFilter(r *http.Request, jobID string) (model.PostFilter, error) {
	q := r.URL.Query()
	f := model.PostFilter{
		JobID:  jobID,
		Search: strings.TrimSpace(q.Get("search")),
		SortBy: q.Get("sort_by"),
	}
	for _, s := range multiValue(r, "sentiment") {
		f.Sentiments = append(f.Sentiments, model.Sentiment(s))
	}
	for _, s := range multiValue(r, "subreddit") {
		f.Subreddits = append(f.Subreddits, model.NormalizeSubreddit(s))
	}

	var err error
	if f.HasPainPoints, err = queryBool(r, "has_pain_points"); err != nil {
		return f, err
	}
	if f.HasFeatureRequests, err = queryBool(r, "has_feature_requests"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit", 0); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		return f, err
	}

	switch strings.ToLower(q.Get("sort_order")) {
	case "":
		// Explicit sorts default to descending; the natural order stays ascending.
		f.SortDesc = f.SortBy != ""
	case "desc":
		f.SortDesc = true
	case "asc":
	default:
		return f, fmt.Errorf("%w: sort_order must be asc or desc", domain.ErrInvalidArgument)
	}
	return f, nil
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	f, err := postFilter(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	posts, total, err := s.deps.Posts.List(r.Context(), f)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*model.Post]{Items: posts, Total: total, Limit: f.Limit, Offset: f.Offset})
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Posts.Get(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "postID"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) jobStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Insights.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type subredditCountsResponse struct {
	Subreddits map[string]int `json:"subreddits"`
}

func (s *Server) subredditCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Posts.SubredditCounts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, subredditCountsResponse{Subreddits: counts})
}

func actionItemFilter(r *http.Request, jobID string) (model.ActionItemFilter, error) {
	q := r.URL.Query()
	f := model.ActionItemFilter{
		JobID:    jobID,
		Category: model.Category(strings.ToLower(q.Get("category"))),
		Priority: model.Priority(strings.ToLower(q.Get("priority"))),
	}
	switch f.Category {
	case "", model.CategoryProduct, model.CategoryService, model.CategoryMarketing:
	default:
		return f, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidArgument, f.Category)
	}
	switch f.Priority {
	case "", model.PriorityCritical, model.PriorityHigh, model.PriorityMedium, model.PriorityLow:
	default:
		return f, fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidArgument, f.Priority)
	}
	sortBy, ok := actionItemSorts[q.Get("sort_by")]
	if !ok {
		return f, fmt.Errorf("%w: unknown sort_by %q", domain.ErrInvalidArgument, q.Get("sort_by"))
	}
	f.SortBy = sortBy
	return f, nil
}

func (s *Server) listActionItems(w http.ResponseWriter, r *http.Request) {
	f, err := actionItemFilter(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	items, err := s.deps.Insights.ActionItems(r.Context(), f)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*model.ActionItem]{Items: items, Total: len(items)})
}

func (s *Server) actionItemSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Insights.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) executiveSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Insights.ExecutiveSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) getActionItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.deps.Insights.ActionItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) relatedPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.deps.Insights.RelatedPosts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*model.Post]{Items: posts, Total: len(posts)})
}

type chatRequest struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if req.JobID == "" {
		writeError(w, r, s.log, fmt.Errorf("%w: job_id is required", domain.ErrInvalidArgument))
		return
	}
	reply, err := s.deps.Chat.Ask(r.Context(), req.JobID, req.Message)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

type modelsResponse struct {
	Models []string `json:"models"`
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.deps.Chat.ListModels(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models})
}

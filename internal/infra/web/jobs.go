package web

import (
	"context"
	"net/http"

	"reddit-insights/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type createJobRequest struct {
	Subreddits []string `json:"subreddits"`
	Keywords   []string `json:"keywords"`
	TimeFilter string   `json:"time_filter"`
	SortBy     string   `json:"sort_by"`
	PostLimit  int      `json:"post_limit"`
	// IncludeComments defaults to true when omitted.
	IncludeComments *bool `json:"include_comments"`
}

func (req createJobRequest) config() model.JobConfig {
	cfg := model.JobConfig{
		Subreddits:      req.Subreddits,
		Keywords:        req.Keywords,
		TimeFilter:      model.TimeFilter(req.TimeFilter),
		Sort:            model.SortOrder(req.SortBy),
		PostLimit:       req.PostLimit,
		IncludeComments: true,
	}
	if req.IncludeComments != nil {
		cfg.IncludeComments = *req.IncludeComments
	}
	return cfg
}

type createJobResponse struct {
	*model.Job
	EstimatedSeconds int `json:"estimated_seconds"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	job, est, err := s.deps.Jobs.Submit(r.Context(), req.config())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, createJobResponse{Job: job, EstimatedSeconds: est})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	jobs, total, err := s.deps.Jobs.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[*model.Job]{Items: jobs, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Jobs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pauseJob(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.deps.Jobs.Pause, true)
}

func (s *Server) resumeJob(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.deps.Jobs.Resume, false)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.deps.Jobs.Cancel, true)
}

// control answers 202 when a stop was signalled to a running job that has yet to reach its checkpoint.
func (s *Server) control(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*model.Job, error), stops bool) {
	job, err := op(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	status := http.StatusOK
	if stops && job.Status == model.JobStatusRunning {
		status = http.StatusAccepted
	}
	writeJSON(w, status, job)
}

type validateRequest struct {
	Subreddits []string `json:"subreddits"`
}

type validateResponse struct {
	Results map[string]bool `json:"results"`
}

func (s *Server) validateSubreddits(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	res, err := s.deps.Jobs.ValidateSubreddits(r.Context(), req.Subreddits)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Results: res})
}

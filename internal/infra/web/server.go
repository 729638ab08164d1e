package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"reddit-insights/internal/config"
	"reddit-insights/internal/infra/api"
	"reddit-insights/internal/infra/metrics"
	"reddit-insights/internal/infra/redis"
	"reddit-insights/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const healthTimeout = 3 * time.Second

// Check probes one dependency for /health.
type Check func(ctx context.Context) error

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Jobs     usecase.JobUseCase
	Posts    usecase.PostUseCase
	Insights usecase.InsightUseCase
	Chat     usecase.ChatUseCase
	// Limiter guards the chat route; nil disables it.
	Limiter api.Limiter
	Checks  map[string]Check
}

type Server struct {
	deps Deps
	cfg  config.HTTPConfig
	log  *zerolog.Logger
}

func NewServer(deps Deps, cfg config.HTTPConfig, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http").Logger()
	return &Server{deps: deps, cfg: cfg, log: &l}
}

// Handler returns the router with the shared middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.createJob)
			r.Get("/", s.listJobs)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Delete("/", s.deleteJob)
				r.Post("/pause", s.pauseJob)
				r.Post("/resume", s.resumeJob)
				r.Post("/cancel", s.cancelJob)

				r.Get("/posts", s.listPosts)
				r.Get("/posts/{postID}", s.getPost)
				r.Get("/stats", s.jobStats)
				r.Get("/subreddits", s.subredditCounts)
				r.Get("/action-items", s.listActionItems)
				r.Get("/action-items/summary", s.actionItemSummary)
				r.Get("/executive-summary", s.executiveSummary)
			})
		})

		r.Route("/action-items/{id}", func(r chi.Router) {
			r.Get("/", s.getActionItem)
			r.Get("/related-posts", s.relatedPosts)
		})

		r.Route("/insights", func(r chi.Router) {
			r.With(api.RateLimit(s.deps.Limiter, redis.ClientRouteKey, "chat",
				s.cfg.ChatRateLimit, s.cfg.ChatRateWindow, s.log)).Post("/chat", s.chat)
			r.Get("/models", s.listModels)
		})

		r.Post("/reddit/validate", s.validateSubreddits)
	})

	return api.Chain(r,
		api.TraceID(),
		api.RequestLog(s.log),
		api.Recover(s.log),
		api.Timeout(s.cfg.RequestTimeout),
	)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// health runs every check concurrently; any failure reports 503.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = healthResponse{Status: "ok", Checks: make(map[string]string, len(s.deps.Checks))}
	)
	for name, check := range s.deps.Checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := "ok"
			if err := check(ctx); err != nil {
				res = err.Error()
			}
			mu.Lock()
			out.Checks[name] = res
			if res != "ok" {
				out.Status = "degraded"
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := http.StatusOK
	if out.Status != "ok" {
		status = http.StatusServiceUnavailable
		s.log.Warn().Interface("checks", out.Checks).Msg("health check failed")
	}
	writeJSON(w, status, out)
}

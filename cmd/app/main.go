// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"reddit-insights/internal/config"
	"reddit-insights/internal/domain/ports/adapter"
	aiAdapters "reddit-insights/internal/infra/adapters/ai"
	"reddit-insights/internal/infra/adapters/reddit"
	pg "reddit-insights/internal/infra/db/postgres"
	"reddit-insights/internal/infra/logging"
	"reddit-insights/internal/infra/metrics"
	red "reddit-insights/internal/infra/redis"
	"reddit-insights/internal/infra/sched"
	"reddit-insights/internal/infra/web"
	"reddit-insights/internal/infra/worker"
	"reddit-insights/internal/usecase"
)

// Set with -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatal().Err(err).Str("path", *cfgPath).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	if err := pg.RunMigrations(cfg.Database.URL, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrations")
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	signals := red.NewJobSignals(redisClient)
	statsCache := red.NewStatsCache(redisClient, cfg.Redis.TTL)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool, tm)
	postRepo := pg.NewPostRepo(pool)
	itemRepo := pg.NewActionItemRepoCacheDecorator(pg.NewActionItemRepo(pool), redisClient, cfg.Redis.TTL)
	var invalidators []usecase.CacheInvalidator
	if inv, ok := itemRepo.(usecase.CacheInvalidator); ok {
		invalidators = append(invalidators, inv)
	}

	// ---- Reddit source ----
	client := reddit.NewClient(reddit.Options{
		BaseURL:     cfg.Reddit.BaseURL,
		UserAgent:   cfg.Reddit.UserAgent,
		MaxRetries:  cfg.Reddit.MaxRetries,
		BackoffBase: cfg.Reddit.BackoffBase,
		BackoffMax:  cfg.Reddit.BackoffMax,
		Timeout:     cfg.Reddit.Timeout,
	}, reddit.NewLimiter(cfg.Reddit.MinInterval, cfg.Reddit.Burst), logger)
	var source adapter.PostSource = client
	if cfg.Reddit.Mode == "rss" {
		source = reddit.NewFeedClient(client, logger)
	}
	logger.Info().Str("mode", cfg.Reddit.Mode).Str("base_url", cfg.Reddit.BaseURL).Msg("reddit source ready")

	// ---- AI oracle ----
	oracle, err := aiAdapters.NewFromConfig(ctx, cfg.AI, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai adapter")
	}

	// ---- Use cases ----
	analyzer := usecase.NewAnalysisWorker(oracle, cfg.AI.DefaultModel, cfg.Analysis, logger)
	runner := usecase.NewJobRunner(jobRepo, postRepo, itemRepo, tm, source, signals, analyzer, usecase.NewAggregator(),
		usecase.RunnerOptions{Concurrency: cfg.Analysis.Concurrency, CommentLimit: cfg.Reddit.CommentLimit}, logger)
	jobUC := usecase.NewJobUseCase(jobRepo, tm, signals, source, statsCache, logger, invalidators...)
	postUC := usecase.NewPostUseCase(jobRepo, postRepo)
	insightUC := usecase.NewInsightUseCase(jobRepo, postRepo, itemRepo, statsCache, logger)
	chatUC := usecase.NewChatUseCase(jobRepo, postRepo, itemRepo, oracle, aiAdapters.NewTokenCounter(), cfg.AI.DefaultModel, cfg.Chat, logger)

	// ---- Workers ----
	workers := worker.NewPool(cfg.Worker.Workers, logger)
	workers.Start(ctx)
	processor := worker.NewJobProcessor(runner, cfg.Worker.PollInterval, logger)
	go processor.Start(ctx, workers)

	staleWorker := sched.NewStaleJobWorker(cfg.Worker.SweepEvery, cfg.Worker.StaleAfter, runner, pool.Stat, logger)
	go func() { _ = staleWorker.Run(ctx) }()

	// ---- HTTP ----
	srv := web.NewServer(web.Deps{
		Jobs:     jobUC,
		Posts:    postUC,
		Insights: insightUC,
		Chat:     chatUC,
		Limiter:  rateLimiter,
		Checks: map[string]web.Check{
			"database": pool.Ping,
			"redis":    redisClient.Ping,
			"oracle": func(ctx context.Context) error {
				_, err := oracle.ListModels(ctx)
				return err
			},
		},
	}, cfg.HTTP, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	// Running jobs observe the cancelled context and stay claimable for the next start.
	workers.Stop()
	logger.Info().Msg("bye")
}

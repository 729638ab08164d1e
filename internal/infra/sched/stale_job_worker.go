package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"reddit-insights/internal/infra/metrics"
	"reddit-insights/internal/usecase"
)

// StaleJobWorker periodically pauses running jobs whose runner stopped heartbeating,
// so a crashed process never leaves a job stuck in running.
type StaleJobWorker struct {
	interval   time.Duration
	staleAfter time.Duration
	runner     usecase.JobRunner
	poolStat   func() *pgxpool.Stat
	log        *zerolog.Logger
}

func NewStaleJobWorker(interval, staleAfter time.Duration, runner usecase.JobRunner, poolStat func() *pgxpool.Stat, logger *zerolog.Logger) *StaleJobWorker {
	l := logger.With().Str("component", "StaleJobWorker").Logger()
	return &StaleJobWorker{
		interval:   interval,
		staleAfter: staleAfter,
		runner:     runner,
		poolStat:   poolStat,
		log:        &l,
	}
}

func (w *StaleJobWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("stale_after", w.staleAfter).Msg("Starting stale job worker")
	// Run once on startup to recover jobs left behind by a crash, then on every tick
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stale job worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *StaleJobWorker) sweep(ctx context.Context) {
	n, err := w.runner.SweepStale(ctx, time.Now().UTC().Add(-w.staleAfter))
	if err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Msg("stale job sweep failed")
	}
	if n > 0 {
		w.log.Warn().Int("count", n).Msg("stale jobs paused")
	}
	if w.poolStat != nil {
		metrics.ObservePool(w.poolStat())
	}
}

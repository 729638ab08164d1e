package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"reddit-insights/internal/usecase"
)

// JobProcessor polls for runnable jobs and hands each one to a free pool worker.
type JobProcessor struct {
	runner   usecase.JobRunner
	interval time.Duration
	log      *zerolog.Logger
}

func NewJobProcessor(runner usecase.JobRunner, interval time.Duration, logger *zerolog.Logger) *JobProcessor {
	l := logger.With().Str("component", "JobProcessor").Logger()
	if interval <= 0 {
		interval = time.Second
	}
	return &JobProcessor{runner: runner, interval: interval, log: &l}
}

// Start runs the poll loop until ctx ends. This should be run in a goroutine.
func (p *JobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Int("workers", pool.Size()).Dur("interval", p.interval).Msg("job processor started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("job processor stopping")
			return
		case <-ticker.C:
			p.dispatch(pool)
		}
	}
}

// dispatch submits one claim attempt per idle worker.
func (p *JobProcessor) dispatch(pool *Pool) {
	free := pool.Free()
	for i := 0; i < free; i++ {
		if err := pool.Submit(p.processOne); err != nil {
			return
		}
	}
}

func (p *JobProcessor) processOne(ctx context.Context) error {
	claimed, err := p.runner.RunNext(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error().Err(err).Msg("failed to claim job")
		}
		return nil
	}
	if claimed {
		p.log.Debug().Msg("job run returned")
	}
	return nil
}

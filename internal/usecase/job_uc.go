package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/adapter"
	"reddit-insights/internal/domain/ports/repository"
	"reddit-insights/internal/infra/logging"
	"reddit-insights/internal/infra/metrics"
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

// JobUseCase is the submission and control surface for jobs.
type JobUseCase interface {
	// Submit validates cfg and stores a pending job. It also returns a rough run time in seconds.
	Submit(ctx context.Context, cfg model.JobConfig) (*model.Job, int, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, offset, limit int) ([]*model.Job, int, error)
	// Pause stops a pending job at once; a running job is asked to stop at its next checkpoint.
	Pause(ctx context.Context, id string) (*model.Job, error)
	Resume(ctx context.Context, id string) (*model.Job, error)
	Cancel(ctx context.Context, id string) (*model.Job, error)
	// Delete cancels an active job and removes it with its posts and action items.
	Delete(ctx context.Context, id string) error
	// ValidateSubreddits probes each name; the result is keyed by the normalized name.
	ValidateSubreddits(ctx context.Context, names []string) (map[string]bool, error)
}

// CacheInvalidator drops cached reads of one job.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, jobID string)
}

const maxJobPage = 100

type jobUC struct {
	jobs    repository.JobRepository
	tm      repository.TransactionManager
	signals adapter.JobSignals
	source  adapter.PostSource
	stats   StatsCache
	caches  []CacheInvalidator
	log     *zerolog.Logger
}

func NewJobUseCase(
	jobs repository.JobRepository,
	tm repository.TransactionManager,
	signals adapter.JobSignals,
	source adapter.PostSource,
	stats StatsCache,
	logger *zerolog.Logger,
	caches ...CacheInvalidator,
) *jobUC {
	l := logger.With().Str("component", "JobUC").Logger()
	return &jobUC{
		jobs:    jobs,
		tm:      tm,
		signals: signals,
		source:  source,
		stats:   stats,
		caches:  caches,
		log:     &l,
	}
}

func (u *jobUC) Submit(ctx context.Context, cfg model.JobConfig) (*model.Job, int, error) {
	defer logging.TraceDuration(u.log, "JobUC.Submit")()

	norm, err := cfg.Normalize()
	if err != nil {
		return nil, 0, err
	}
	job := model.NewJob(norm)
	if err := u.jobs.Create(ctx, nil, job); err != nil {
		u.log.Error().Err(err).Msg("failed to create job")
		return nil, 0, err
	}
	metrics.IncJobTransition("", string(job.Status))
	u.log.Info().
		Str("job_id", job.ID).
		Strs("subreddits", norm.Subreddits).
		Strs("keywords", norm.Keywords).
		Msg("job submitted")
	return job, norm.EstimateSeconds(), nil
}

func (u *jobUC) Get(ctx context.Context, id string) (*model.Job, error) {
	return u.jobs.FindByID(ctx, nil, id)
}

func (u *jobUC) List(ctx context.Context, offset, limit int) ([]*model.Job, int, error) {
	if limit <= 0 || limit > maxJobPage {
		limit = maxJobPage
	}
	offset = max(offset, 0)
	jobs, err := u.jobs.List(ctx, nil, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := u.jobs.Count(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (u *jobUC) Pause(ctx context.Context, id string) (*model.Job, error) {
	return u.control(ctx, id, adapter.SignalPause, func(j *model.Job, now time.Time) error {
		if j.Status != model.JobStatusPending {
			return fmt.Errorf("%w: cannot pause a %s job", domain.ErrInvalidTransition, j.Status)
		}
		return j.TransitionTo(model.JobStatusPaused, now)
	})
}

func (u *jobUC) Cancel(ctx context.Context, id string) (*model.Job, error) {
	return u.control(ctx, id, adapter.SignalCancel, func(j *model.Job, now time.Time) error {
		return j.Fail(model.CancelledReason, now)
	})
}

// control applies direct to an idle job, or raises sig when a runner owns it.
func (u *jobUC) control(ctx context.Context, id string, sig adapter.Signal, direct func(j *model.Job, now time.Time) error) (*model.Job, error) {
	var (
		out    *model.Job
		raised bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		j, err := u.jobs.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if j.Status.IsTerminal() {
			return fmt.Errorf("%w: job is already %s", domain.ErrInvalidTransition, j.Status)
		}
		if j.Status == model.JobStatusRunning {
			if err := u.signals.Raise(ctx, id, sig); err != nil {
				return fmt.Errorf("raise %s signal: %w", sig, err)
			}
			out, raised = j, true
			return nil
		}
		from := j.Status
		if err := direct(j, time.Now().UTC()); err != nil {
			return err
		}
		if err := u.jobs.Save(ctx, tx, j); err != nil {
			return err
		}
		metrics.IncJobTransition(string(from), string(j.Status))
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !raised && out.Status.IsTerminal() {
		u.clearSignal(ctx, id)
	}
	u.log.Info().Str("job_id", id).Str("signal", string(sig)).Bool("deferred", raised).Str("status", string(out.Status)).Msg("job control")
	return out, nil
}

func (u *jobUC) Resume(ctx context.Context, id string) (*model.Job, error) {
	j, err := settleJob(ctx, u.tm, u.jobs, id, func(j *model.Job, now time.Time) error {
		if j.Status != model.JobStatusPaused {
			return fmt.Errorf("%w: cannot resume a %s job", domain.ErrInvalidTransition, j.Status)
		}
		if err := j.TransitionTo(model.JobStatusRunning, now); err != nil {
			return err
		}
		// No heartbeat marks it claimable by the next free worker.
		j.HeartbeatAt = nil
		j.Progress.Step = model.StepQueued
		return nil
	})
	if err != nil {
		return nil, err
	}
	// A pause request that outlived its runner must not stop the resumed run.
	u.clearSignal(ctx, id)
	u.log.Info().Str("job_id", id).Int("current", j.Progress.Current).Msg("job resumed")
	return j, nil
}

func (u *jobUC) Delete(ctx context.Context, id string) error {
	var wasRunning bool
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		j, err := u.jobs.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		wasRunning = j.Status == model.JobStatusRunning
		return u.jobs.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	if wasRunning {
		// The runner also notices on its next progress write.
		if err := u.signals.Raise(ctx, id, adapter.SignalCancel); err != nil {
			u.log.Warn().Err(err).Str("job_id", id).Msg("could not signal deleted job")
		}
	} else {
		u.clearSignal(ctx, id)
	}
	if u.stats != nil {
		if err := u.stats.Delete(ctx, id); err != nil {
			u.log.Debug().Err(err).Str("job_id", id).Msg("stats cache delete failed")
		}
	}
	for _, c := range u.caches {
		c.Invalidate(ctx, id)
	}
	u.log.Info().Str("job_id", id).Bool("was_running", wasRunning).Msg("job deleted")
	return nil
}

func (u *jobUC) ValidateSubreddits(ctx context.Context, names []string) (map[string]bool, error) {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		name := model.NormalizeSubreddit(n)
		if name == "" {
			continue
		}
		if _, done := out[name]; done {
			continue
		}
		ok, err := u.source.SubredditExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("probe r/%s: %w", name, err)
		}
		out[name] = ok
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no subreddit names given", domain.ErrInvalidArgument)
	}
	return out, nil
}

func (u *jobUC) clearSignal(ctx context.Context, id string) {
	if err := u.signals.Clear(ctx, id); err != nil {
		u.log.Warn().Err(err).Str("job_id", id).Msg("could not clear job signal")
	}
}

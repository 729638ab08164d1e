package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/model"
	"reddit-insights/internal/domain/ports/adapter"
	"reddit-insights/internal/domain/ports/repository"
	"reddit-insights/internal/infra/logging"
	"reddit-insights/internal/infra/metrics"
)

// Compile-time check
var _ JobRunner = (*jobRunner)(nil)

// JobRunner drives claimed jobs through fetch, dedup, analysis and aggregation.
type JobRunner interface {
	// RunNext claims one runnable job and drives it until it completes, pauses or fails.
	// It reports false when there was nothing to claim.
	RunNext(ctx context.Context) (bool, error)
	// Run drives a job that is already marked running.
	Run(ctx context.Context, job *model.Job) error
	// SweepStale pauses running jobs whose runner stopped sending heartbeats.
	SweepStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Reasons the run loop stops before completion without failing the job.
var (
	errPauseRequested  = errors.New("pause requested")
	errCancelRequested = errors.New("cancel requested")
	errOwnershipLost   = errors.New("job is no longer owned by this runner")
)

const finalizeTimeout = 10 * time.Second

// RunnerOptions tunes the run loop.
type RunnerOptions struct {
	Concurrency  int // posts analyzed in parallel within a job
	CommentLimit int // comments fetched per top-level post
}

type jobRunner struct {
	jobs       repository.JobRepository
	posts      repository.PostRepository
	items      repository.ActionItemRepository
	tm         repository.TransactionManager
	source     adapter.PostSource
	signals    adapter.JobSignals
	analyzer   Analyzer
	aggregator *Aggregator
	opts       RunnerOptions
	log        *zerolog.Logger
}

func NewJobRunner(
	jobs repository.JobRepository,
	posts repository.PostRepository,
	items repository.ActionItemRepository,
	tm repository.TransactionManager,
	source adapter.PostSource,
	signals adapter.JobSignals,
	analyzer Analyzer,
	aggregator *Aggregator,
	opts RunnerOptions,
	logger *zerolog.Logger,
) *jobRunner {
	l := logger.With().Str("component", "JobRunner").Logger()
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &jobRunner{
		jobs:       jobs,
		posts:      posts,
		items:      items,
		tm:         tm,
		source:     source,
		signals:    signals,
		analyzer:   analyzer,
		aggregator: aggregator,
		opts:       opts,
		log:        &l,
	}
}

func (r *jobRunner) RunNext(ctx context.Context) (bool, error) {
	job, err := r.jobs.ClaimNext(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return true, r.Run(ctx, job)
}

func (r *jobRunner) Run(ctx context.Context, job *model.Job) error {
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, r.log)
	defer logging.TraceDuration(log, "JobRunner.Run")()

	log.Info().
		Int("cursor", job.FetchCursor).
		Int("current", job.Progress.Current).
		Int("total", job.Progress.Total).
		Msg("job run started")

	start := time.Now()
	err := r.pipeline(ctx, job, log)
	outcome := r.finish(ctx, job, err, log)
	metrics.ObserveJobRun(outcome, time.Since(start).Seconds())

	log.Info().Str("outcome", outcome).Dur("duration", time.Since(start)).Msg("job run finished")
	return nil
}

func (r *jobRunner) pipeline(ctx context.Context, job *model.Job, log *zerolog.Logger) error {
	combos := job.Combinations()
	dedup := NewDeduplicator(job.ID, r.posts)

	for job.FetchCursor < len(combos) {
		if err := r.checkpoint(ctx, job.ID, log); err != nil {
			return err
		}
		c := combos[job.FetchCursor]
		job.Progress.Step = model.SearchStep(c)
		if err := r.saveProgress(ctx, nil, job); err != nil {
			return err
		}

		raws, err := r.fetch(ctx, job, c)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		failed := err != nil && len(raws) == 0
		if failed {
			metrics.IncSourceUnavailable()
			log.Warn().Err(err).Str("combination", c.String()).Msg("search skipped")
		} else if err != nil {
			log.Warn().Err(err).Str("combination", c.String()).Int("kept", len(raws)).Msg("search ended early")
		}

		if err := r.admit(ctx, job, dedup, raws, c.Keyword, nil, len(raws), failed); err != nil {
			return err
		}
	}
	if job.FailedSearches >= len(combos) && job.Progress.Total == 0 {
		return fmt.Errorf("%w: all %d search combinations failed: %v", domain.ErrJobFailed, len(combos), domain.ErrSourceUnavailable)
	}

	if job.Config.IncludeComments {
		if err := r.fetchComments(ctx, job, len(combos), dedup, log); err != nil {
			return err
		}
	}

	if err := r.analyzeAll(ctx, job, log); err != nil {
		return err
	}

	if err := r.checkpoint(ctx, job.ID, log); err != nil {
		return err
	}
	job.Progress.Step = model.StepAggregating
	if err := r.saveProgress(ctx, nil, job); err != nil {
		return err
	}
	usable, err := r.posts.ListUsable(ctx, nil, job.ID)
	if err != nil {
		return err
	}
	items := r.aggregator.Aggregate(job.ID, usable)
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := r.items.ReplaceForJob(ctx, tx, job.ID, items); err != nil {
			return err
		}
		return r.saveProgress(ctx, tx, job)
	})
}

// fetch drains one search. Items retrieved before an error are kept.
func (r *jobRunner) fetch(ctx context.Context, job *model.Job, c model.Combination) ([]adapter.RawPost, error) {
	q := adapter.SearchQuery{
		Subreddit:  c.Subreddit,
		Keyword:    c.Keyword,
		TimeFilter: job.Config.TimeFilter,
		Sort:       job.Config.Sort,
		Limit:      job.Config.PostLimit,
	}
	var out []adapter.RawPost
	for raw, err := range r.source.Search(ctx, q) {
		if err != nil {
			return out, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// admit stores one unit of fetched items together with the advanced cursor and the
// failed search count, so a resume never counts the same unit twice.
func (r *jobRunner) admit(ctx context.Context, job *model.Job, dedup *Deduplicator, raws []adapter.RawPost, keyword string, parent *model.Post, found int, failed bool) error {
	next := *job
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		added := 0
		for _, raw := range raws {
			kw := keyword
			if parent != nil {
				kw = parent.MatchedKeyword
			}
			_, inserted, err := dedup.Admit(ctx, tx, raw, kw, parent)
			if err != nil {
				return err
			}
			if inserted {
				added++
			}
		}
		next.Progress.PostsFound += found
		next.Progress.Total += added
		next.FetchCursor++
		if failed {
			next.FailedSearches++
		}
		if err := r.saveProgress(ctx, tx, &next); err != nil {
			return err
		}
		metrics.AddPostsDiscovered(added)
		return nil
	})
	if err != nil {
		return err
	}
	*job = next
	return nil
}

// fetchComments walks top-level posts in discovery order. The cursor continues past
// the search combinations, one unit per parent post.
func (r *jobRunner) fetchComments(ctx context.Context, job *model.Job, offset int, dedup *Deduplicator, log *zerolog.Logger) error {
	parents, err := r.posts.ListTopLevel(ctx, nil, job.ID)
	if err != nil {
		return err
	}
	for job.FetchCursor-offset < len(parents) {
		if err := r.checkpoint(ctx, job.ID, log); err != nil {
			return err
		}
		parent := parents[job.FetchCursor-offset]
		job.Progress.Step = model.StepComments

		var raws []adapter.RawPost
		if parent.NumComments > 0 {
			raws, err = r.source.Comments(ctx, parent.Subreddit, parent.SourceID, r.opts.CommentLimit)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				metrics.IncSourceUnavailable()
				log.Warn().Err(err).Str("post_id", parent.ID).Msg("comments skipped")
				raws = nil
			}
		}
		if err := r.admit(ctx, job, dedup, raws, "", parent, 0, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *jobRunner) analyzeAll(ctx context.Context, job *model.Job, log *zerolog.Logger) error {
	batchSize := r.opts.Concurrency * 2
	for {
		if err := r.checkpoint(ctx, job.ID, log); err != nil {
			return err
		}
		batch, err := r.posts.ListPending(ctx, nil, job.ID, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if job.Progress.Step != model.StepAnalyzing {
			job.Progress.Step = model.StepAnalyzing
			if err := r.saveProgress(ctx, nil, job); err != nil {
				return err
			}
		}
		if err := r.analyzeBatch(ctx, job, batch, log); err != nil {
			return err
		}
	}
}

// analyzeBatch analyzes posts with bounded parallelism. Every post passes a checkpoint
// before its oracle call; once a stop is observed no new post starts, but calls in
// flight complete and are stored.
func (r *jobRunner) analyzeBatch(ctx context.Context, job *model.Job, batch []*model.Post, log *zerolog.Logger) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		stop error
	)
	g.SetLimit(r.opts.Concurrency)

	halted := func() error {
		mu.Lock()
		defer mu.Unlock()
		return stop
	}
	halt := func(err error) error {
		mu.Lock()
		defer mu.Unlock()
		if stop == nil {
			stop = err
		}
		return err
	}

	for _, p := range batch {
		if halted() != nil {
			break
		}
		g.Go(func() error {
			if err := halted(); err != nil {
				return nil
			}
			if err := r.checkpoint(ctx, job.ID, log); err != nil {
				return halt(err)
			}
			a, state, err := r.analyzer.Analyze(ctx, p)
			if err != nil {
				return halt(err)
			}
			now := time.Now().UTC()
			p.Analysis, p.State, p.AnalyzedAt = a, state, &now

			mu.Lock()
			defer mu.Unlock()
			err = r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
				if err := r.posts.SaveAnalysis(ctx, tx, p); err != nil {
					return err
				}
				job.Progress.Current++
				if err := r.saveProgress(ctx, tx, job); err != nil {
					job.Progress.Current--
					return err
				}
				return nil
			})
			if err != nil {
				if stop == nil {
					stop = err
				}
				return err
			}
			metrics.IncPostAnalyzed(string(state))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return halted()
}

// checkpoint is where pause and cancel requests take effect. A signal store that cannot
// be reached does not stop the job.
func (r *jobRunner) checkpoint(ctx context.Context, jobID string, log *zerolog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sig, err := r.signals.Peek(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Msg("could not read job signal")
		return nil
	}
	switch sig {
	case adapter.SignalPause:
		return errPauseRequested
	case adapter.SignalCancel:
		return errCancelRequested
	}
	return nil
}

func (r *jobRunner) saveProgress(ctx context.Context, tx repository.Tx, job *model.Job) error {
	ok, err := r.jobs.UpdateProgress(ctx, tx, job)
	if err != nil {
		return err
	}
	if !ok {
		return errOwnershipLost
	}
	return nil
}

// finish applies the final transition for how the loop ended and returns the outcome label.
func (r *jobRunner) finish(ctx context.Context, job *model.Job, runErr error, log *zerolog.Logger) string {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var (
		outcome string
		apply   func(j *model.Job, now time.Time) error
	)
	switch {
	case runErr == nil:
		outcome = string(model.JobStatusCompleted)
		apply = func(j *model.Job, now time.Time) error {
			if err := j.TransitionTo(model.JobStatusCompleted, now); err != nil {
				return err
			}
			j.Progress.Step = model.StepComplete
			return nil
		}
	case errors.Is(runErr, errPauseRequested):
		outcome = string(model.JobStatusPaused)
		apply = func(j *model.Job, now time.Time) error {
			return j.TransitionTo(model.JobStatusPaused, now)
		}
	case errors.Is(runErr, errCancelRequested):
		outcome = "cancelled"
		apply = func(j *model.Job, now time.Time) error {
			return j.Fail(model.CancelledReason, now)
		}
	case errors.Is(runErr, errOwnershipLost):
		log.Warn().Msg("job changed hands or was removed; stopping")
		return "lost"
	case ctx.Err() != nil, errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		// Shutdown: leave it running without a heartbeat so the next claim resumes it.
		outcome = "interrupted"
		apply = func(j *model.Job, now time.Time) error {
			if j.Status != model.JobStatusRunning {
				return fmt.Errorf("%w: %s is not running", domain.ErrInvalidTransition, j.ID)
			}
			j.HeartbeatAt = nil
			j.UpdatedAt = now
			return nil
		}
	default:
		outcome = string(model.JobStatusFailed)
		msg := runErr.Error()
		if !errors.Is(runErr, domain.ErrJobFailed) {
			msg = "store unavailable: " + msg
		}
		log.Error().Err(runErr).Msg("job failed")
		apply = func(j *model.Job, now time.Time) error {
			return j.Fail(msg, now)
		}
	}

	settled, err := r.settle(bg, job.ID, apply)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Info().Msg("job was deleted while running")
		return outcome
	case errors.Is(err, domain.ErrInvalidTransition):
		log.Debug().Err(err).Msg("final transition skipped")
		return outcome
	case err != nil:
		log.Error().Err(err).Str("outcome", outcome).Msg("could not record final job state")
		return outcome
	}
	*job = *settled

	if job.Status != model.JobStatusRunning {
		if err := r.signals.Clear(bg, job.ID); err != nil {
			log.Warn().Err(err).Msg("could not clear job signal")
		}
	}
	if job.Status.IsTerminal() {
		metrics.IncJobFinished(string(job.Status))
	}
	return outcome
}

// settle locks the job row, applies a status change and saves it in one transaction.
func (r *jobRunner) settle(ctx context.Context, jobID string, apply func(j *model.Job, now time.Time) error) (*model.Job, error) {
	return settleJob(ctx, r.tm, r.jobs, jobID, apply)
}

func (r *jobRunner) SweepStale(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := r.jobs.ListStale(ctx, nil, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range stale {
		_, err := r.settle(ctx, s.ID, func(j *model.Job, now time.Time) error {
			if j.Status != model.JobStatusRunning || j.HeartbeatAt == nil || !j.HeartbeatAt.Before(cutoff) {
				return fmt.Errorf("%w: %s recovered", domain.ErrInvalidTransition, j.ID)
			}
			if err := j.TransitionTo(model.JobStatusPaused, now); err != nil {
				return err
			}
			j.Progress.Step = model.StepInterrupted
			return nil
		})
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if err := r.signals.Clear(ctx, s.ID); err != nil {
			r.log.Warn().Err(err).Str("job_id", s.ID).Msg("could not clear job signal")
		}
		r.log.Warn().Str("job_id", s.ID).Msg("stale job paused")
		n++
	}
	return n, nil
}

// settleJob is the single place status changes are written: lock, mutate, save.
func settleJob(ctx context.Context, tm repository.TransactionManager, jobs repository.JobRepository, jobID string, apply func(j *model.Job, now time.Time) error) (*model.Job, error) {
	var out *model.Job
	err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		j, err := jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		from := j.Status
		if err := apply(j, time.Now().UTC()); err != nil {
			return err
		}
		if err := jobs.Save(ctx, tx, j); err != nil {
			return err
		}
		if from != j.Status {
			metrics.IncJobTransition(string(from), string(j.Status))
		}
		out = j
		return nil
	})
	return out, err
}

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reddit-insights/internal/domain"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// CancelledReason is the error message recorded on a job cancelled by a user.
const CancelledReason = "cancelled by user"

// transitions is the single source of truth for which status changes are legal.
var transitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusPaused, JobStatusFailed},
	JobStatusRunning: {JobStatusPaused, JobStatusCompleted, JobStatusFailed},
	JobStatusPaused:  {JobStatusRunning, JobStatusFailed},
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusPaused, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Progress is the live view of a run. Current never exceeds Total.
type Progress struct {
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Step       string `json:"step"`
	PostsFound int    `json:"posts_found"`
}

// Progress step labels.
const (
	StepQueued      = "Queued"
	StepComments    = "Fetching comments"
	StepAnalyzing   = "Analyzing posts"
	StepAggregating = "Generating insights"
	StepComplete    = "Complete"
	StepPaused      = "Paused"
	StepInterrupted = "Interrupted, resume to continue"
)

func SearchStep(c Combination) string {
	return fmt.Sprintf("Searching r/%s for '%s'", c.Subreddit, c.Keyword)
}

// Job is one configured analysis run.
type Job struct {
	ID             string     `json:"id"`
	Config         JobConfig  `json:"config"`
	Status         JobStatus  `json:"status"`
	Progress       Progress   `json:"progress"`
	FetchCursor    int        `json:"-"`
	FailedSearches int        `json:"-"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	HeartbeatAt    *time.Time `json:"-"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewJob builds a pending job for an already normalized configuration.
func NewJob(cfg JobConfig) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Config:    cfg,
		Status:    JobStatusPending,
		Progress:  Progress{Step: StepQueued},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo applies a guarded status change and maintains the lifecycle timestamps.
func (j *Job) TransitionTo(to JobStatus, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, to)
	}
	switch to {
	case JobStatusRunning:
		if j.StartedAt == nil {
			t := now
			j.StartedAt = &t
		}
	case JobStatusPaused:
		j.Progress.Step = StepPaused
		j.HeartbeatAt = nil
	case JobStatusCompleted, JobStatusFailed:
		t := now
		j.CompletedAt = &t
		j.HeartbeatAt = nil
	}
	j.Status = to
	j.UpdatedAt = now
	return nil
}

// Fail moves the job to failed with a message. Only legal from a non-terminal status.
func (j *Job) Fail(msg string, now time.Time) error {
	if err := j.TransitionTo(JobStatusFailed, now); err != nil {
		return err
	}
	j.ErrorMessage = msg
	return nil
}

// Touch records that the owning runner is alive.
func (j *Job) Touch(now time.Time) {
	t := now
	j.HeartbeatAt = &t
	j.UpdatedAt = now
}

func (j *Job) IsCancelled() bool {
	return j.Status == JobStatusFailed && j.ErrorMessage == CancelledReason
}

// Combinations returns the (subreddit, keyword) pairs in declaration order:
// subreddits outer, keywords inner.
func (j *Job) Combinations() []Combination {
	return j.Config.Combinations()
}

// Combination is one (community, keyword) search.
type Combination struct {
	Subreddit string `json:"subreddit"`
	Keyword   string `json:"keyword"`
}

func (c Combination) String() string {
	return "r/" + c.Subreddit + ":" + strings.ToLower(c.Keyword)
}

package redis

import (
	"context"
	"errors"
	"time"

	"reddit-insights/internal/domain/ports/adapter"
)

var _ adapter.JobSignals = (*JobSignals)(nil)

// signalTTL bounds how long an unobserved request lingers after its runner died.
const signalTTL = 24 * time.Hour

// JobSignals stores one pending control request per job. Cancel is sticky:
// a later pause never downgrades it.
type JobSignals struct {
	client RedisClient
}

func NewJobSignals(client RedisClient) *JobSignals {
	return &JobSignals{client: client}
}

func signalKey(jobID string) string { return "job_signal:" + jobID }

func (s *JobSignals) Raise(ctx context.Context, jobID string, sig adapter.Signal) error {
	if sig == adapter.SignalNone {
		return s.Clear(ctx, jobID)
	}
	if sig == adapter.SignalPause {
		_, err := s.client.SetUnless(ctx, signalKey(jobID), string(sig), string(adapter.SignalCancel), signalTTL)
		return err
	}
	return s.client.Set(ctx, signalKey(jobID), string(sig), signalTTL)
}

func (s *JobSignals) Peek(ctx context.Context, jobID string) (adapter.Signal, error) {
	v, err := s.client.Get(ctx, signalKey(jobID))
	if errors.Is(err, Nil) {
		return adapter.SignalNone, nil
	}
	if err != nil {
		return adapter.SignalNone, err
	}
	return adapter.Signal(v), nil
}

func (s *JobSignals) Clear(ctx context.Context, jobID string) error {
	return s.client.Del(ctx, signalKey(jobID))
}

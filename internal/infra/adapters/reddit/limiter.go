package reddit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"reddit-insights/internal/infra/metrics"
)

// Limiter is the process-wide request budget. Every client built from the same
// Limiter shares one token bucket, because the upstream quota is per client, not per job.
type Limiter struct {
	lim *rate.Limiter

	mu    sync.Mutex
	until time.Time
}

// NewLimiter allows one request per interval with the given burst.
func NewLimiter(interval time.Duration, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{lim: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wait blocks until the next request may be sent or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.ObserveRateWait(time.Since(start).Seconds()) }()

	l.mu.Lock()
	until := l.until
	l.mu.Unlock()

	if d := time.Until(until); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return l.lim.Wait(ctx)
}

// Backoff holds every caller for at least d. Used after the source rejects a request
// for exceeding its quota.
func (l *Limiter) Backoff(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t := time.Now().Add(d); t.After(l.until) {
		l.until = t
	}
}

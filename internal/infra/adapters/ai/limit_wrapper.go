package ai

import (
	"context"
	"time"

	"reddit-insights/internal/domain/ports/adapter"
	"reddit-insights/internal/infra/metrics"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

// limitedAI bounds concurrent oracle calls and records usage metrics.
type limitedAI struct {
	inner    adapter.AIServiceAdapter
	provider string
	sem      chan struct{}
}

func NewLimitedAI(inner adapter.AIServiceAdapter, provider string, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &limitedAI{
		inner:    inner,
		provider: provider,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedAI) release() { <-l.sem }

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAI) Chat(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, error) {
	reply, _, err := l.ChatWithUsage(ctx, model, messages, opts)
	return reply, err
}

func (l *limitedAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, adapter.Usage, error) {
	if err := l.acquire(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	defer l.release()

	start := time.Now()
	reply, u, err := l.inner.ChatWithUsage(ctx, model, messages, opts)
	metrics.ObserveChatUsage(l.provider, model, u.PromptTokens, u.CompletionTokens, int(time.Since(start).Milliseconds()), err == nil)
	return reply, u, err
}

func (l *limitedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return l.inner.CountTokens(ctx, model, messages)
}

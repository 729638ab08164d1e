package ai

import (
	"context"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter is wired when no provider is configured. Every chat call fails with
// ErrOracleUnavailable so analysis degrades to the keyword fallback.
type NoopAIAdapter struct {
	tokens *TokenCounter
}

func NewNoopAIAdapter(tokens *TokenCounter) *NoopAIAdapter {
	if tokens == nil {
		tokens = NewTokenCounter()
	}
	return &NoopAIAdapter{tokens: tokens}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return nil, domain.ErrOracleUnavailable
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return a.tokens.Count(messages), nil
}

func (a *NoopAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, error) {
	return "", domain.ErrOracleUnavailable
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, adapter.Usage, error) {
	return "", adapter.Usage{}, domain.ErrOracleUnavailable
}

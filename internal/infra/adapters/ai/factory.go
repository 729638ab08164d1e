package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"reddit-insights/internal/config"
	"reddit-insights/internal/domain/ports/adapter"
)

// NewFromConfig builds the oracle for the configured provider, wrapped with the
// concurrency bound. Ollama is always registered as a local fallback route.
func NewFromConfig(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	tokens := NewTokenCounter()
	if cfg.Provider == "none" {
		logger.Warn().Msg("no ai provider configured; analysis will use keyword fallback")
		return NewNoopAIAdapter(tokens), nil
	}

	byProvider := map[string]adapter.AIServiceAdapter{
		"ollama": NewOllamaAdapter(cfg.OllamaURL, modelFor(cfg, "ollama"), cfg.Timeout, tokens),
	}
	if cfg.GeminiKey != "" {
		g, err := NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, modelFor(cfg, "gemini"), 0)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		byProvider["gemini"] = g
	}
	if cfg.OpenAIKey != "" {
		o, err := NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, modelFor(cfg, "openai"), tokens)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		byProvider["openai"] = o
	}

	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.DefaultModel).Int("concurrency", cfg.ConcurrentLimit).Msg("ai oracle ready")
	router := NewRouter(cfg.Provider, byProvider)
	return NewLimitedAI(router, cfg.Provider, cfg.ConcurrentLimit), nil
}

func modelFor(cfg config.AIConfig, provider string) string {
	if cfg.Provider == provider {
		return cfg.DefaultModel
	}
	return ""
}

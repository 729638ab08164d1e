package ai_test

import (
	"context"
	"errors"
	"testing"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/ports/adapter"
	ai "reddit-insights/internal/infra/adapters/ai"
)

type stubAI struct {
	name      string
	down      bool
	ctN       int
	cwuN      int
	lastModel string
	lastOpts  adapter.ChatOptions
}

func (s *stubAI) ListModels(ctx context.Context) ([]string, error) {
	if s.down {
		return nil, domain.ErrOracleUnavailable
	}
	return []string{s.name + "-model"}, nil
}
func (s *stubAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	s.ctN++
	return 1, nil
}
func (s *stubAI) Chat(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, error) {
	return "ok", nil
}
func (s *stubAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, adapter.Usage, error) {
	s.cwuN++
	s.lastModel = model
	s.lastOpts = opts
	if s.down {
		return "", adapter.Usage{}, domain.ErrOracleUnavailable
	}
	return s.name, adapter.Usage{PromptTokens: 1, CompletionTokens: 1}, nil
}

func TestRouter_ByModelPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	local := &stubAI{name: "ollama"}
	open := &stubAI{name: "openai"}
	gem := &stubAI{name: "gemini"}
	r := ai.NewRouter("Ollama", map[string]adapter.AIServiceAdapter{"ollama": local, "openai": open, "gemini": gem})

	_, _, _ = r.ChatWithUsage(ctx, "gpt-4o-mini", nil, adapter.ChatOptions{Temperature: 0.1, JSON: true})
	if open.cwuN != 1 || local.cwuN != 0 {
		t.Fatalf("gpt-* should go to openai")
	}
	if !open.lastOpts.JSON || open.lastOpts.Temperature != 0.1 {
		t.Fatalf("chat options not forwarded: %+v", open.lastOpts)
	}

	_, _ = r.CountTokens(ctx, "gemini-2.0-flash", nil)
	if gem.ctN != 1 {
		t.Fatalf("gemini-* should count on gemini")
	}

	if text, _ := r.Chat(ctx, "llama3.2", nil, adapter.ChatOptions{}); text != "ollama" || local.lastModel != "llama3.2" {
		t.Fatalf("unknown model should go to the primary provider, got %q", text)
	}
}

func TestRouter_FailsOver(t *testing.T) {
	ctx := context.Background()
	local := &stubAI{name: "ollama", down: true}
	open := &stubAI{name: "openai"}
	r := ai.NewRouter("ollama", map[string]adapter.AIServiceAdapter{"ollama": local, "openai": open})

	text, _, err := r.ChatWithUsage(ctx, "llama3.2", nil, adapter.ChatOptions{})
	if err != nil || text != "openai" {
		t.Fatalf("expected failover to openai, got %q %v", text, err)
	}
	if open.lastModel != "" {
		t.Fatalf("fallback must use its own default model, got %q", open.lastModel)
	}

	models, err := r.ListModels(ctx)
	if err != nil || len(models) != 1 || models[0] != "openai-model" {
		t.Fatalf("models = %v, %v", models, err)
	}

	open.down = true
	if _, err := r.Chat(ctx, "llama3.2", nil, adapter.ChatOptions{}); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable when every provider is down, got %v", err)
	}
}

func TestRouter_NoProviders(t *testing.T) {
	r := ai.NewRouter("ollama", map[string]adapter.AIServiceAdapter{})
	if _, err := r.Chat(context.Background(), "x", nil, adapter.ChatOptions{}); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if _, err := r.ListModels(context.Background()); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable from ListModels, got %v", err)
	}
}

func TestLimitedAI_RespectsContext(t *testing.T) {
	inner := &blockingAI{entered: make(chan struct{}), release: make(chan struct{})}
	l := ai.NewLimitedAI(inner, "test", 1)

	done := make(chan struct{})
	go func() {
		_, _ = l.Chat(context.Background(), "m", nil, adapter.ChatOptions{})
		close(done)
	}()
	<-inner.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Chat(ctx, "m", nil, adapter.ChatOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled while slot is busy, got %v", err)
	}
	close(inner.release)
	<-done
}

type blockingAI struct {
	stubAI
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, adapter.Usage, error) {
	b.entered <- struct{}{}
	<-b.release
	return "ok", adapter.Usage{}, nil
}

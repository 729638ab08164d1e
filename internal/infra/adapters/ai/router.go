package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*Router)(nil)

// Router sends each call to the provider that owns the model and fails over to the
// remaining providers when it is unreachable. Failover calls use the fallback
// provider's own default model.
type Router struct {
	primary   string
	providers map[string]adapter.AIServiceAdapter
	order     []string
}

func NewRouter(primary string, providers map[string]adapter.AIServiceAdapter) *Router {
	primary = strings.ToLower(primary)
	order := make([]string, 0, len(providers))
	for name := range providers {
		if name != primary {
			order = append(order, name)
		}
	}
	sort.Strings(order)
	if _, ok := providers[primary]; ok {
		order = append([]string{primary}, order...)
	}
	return &Router{primary: primary, providers: providers, order: order}
}

// owner guesses the provider from well-known model prefixes.
func (r *Router) owner(model string) string {
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return r.primary
	}
}

// route lists the providers to try for model, owner first.
func (r *Router) route(model string) []string {
	first := r.owner(model)
	if _, ok := r.providers[first]; !ok {
		return r.order
	}
	out := []string{first}
	for _, name := range r.order {
		if name != first {
			out = append(out, name)
		}
	}
	return out
}

func (r *Router) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	var lastErr error
	for _, name := range r.order {
		list, err := r.providers[name].ListModels(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		for _, m := range list {
			if _, dup := seen[m]; m != "" && !dup {
				seen[m] = struct{}{}
				out = append(out, m)
			}
		}
	}
	if len(out) == 0 {
		if lastErr == nil {
			lastErr = domain.ErrOracleUnavailable
		}
		return nil, lastErr
	}
	return out, nil
}

func (r *Router) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	route := r.route(model)
	if len(route) == 0 {
		return 0, nil
	}
	return r.providers[route[0]].CountTokens(ctx, model, messages)
}

func (r *Router) Chat(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, error) {
	text, _, err := r.ChatWithUsage(ctx, model, messages, opts)
	return text, err
}

func (r *Router) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, adapter.Usage, error) {
	var errs []error
	for i, name := range r.route(model) {
		m := model
		if i > 0 && r.owner(model) != name {
			m = ""
		}
		text, usage, err := r.providers[name].ChatWithUsage(ctx, m, messages, opts)
		if err == nil {
			return text, usage, nil
		}
		if ctx.Err() != nil {
			return "", adapter.Usage{}, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	if len(errs) == 0 {
		return "", adapter.Usage{}, domain.ErrOracleUnavailable
	}
	return "", adapter.Usage{}, fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, errors.Join(errs...))
}

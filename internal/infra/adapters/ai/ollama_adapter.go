package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reddit-insights/internal/domain"
	"reddit-insights/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*OllamaAdapter)(nil)

// OllamaAdapter talks to a local Ollama server over its REST API.
type OllamaAdapter struct {
	base   string
	model  string
	client *http.Client
	tokens *TokenCounter
}

func NewOllamaAdapter(baseURL, model string, timeout time.Duration, tokens *TokenCounter) *OllamaAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if model == "" {
		model = "llama3.2"
	}
	if tokens == nil {
		tokens = NewTokenCounter()
	}
	return &OllamaAdapter{
		base:   strings.TrimRight(baseURL, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
		tokens: tokens,
	}
}

func (o *OllamaAdapter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := o.do(req, &payload); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		out = append(out, m.Name)
	}
	return out, nil
}

func (o *OllamaAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return o.tokens.Count(messages), nil
}

func (o *OllamaAdapter) Chat(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, error) {
	reply, _, err := o.ChatWithUsage(ctx, model, messages, opts)
	return reply, err
}

func (o *OllamaAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, opts adapter.ChatOptions) (string, adapter.Usage, error) {
	body := map[string]any{
		"model":    modelOrDefault(model, o.model),
		"messages": messages,
		"stream":   false,
	}
	options := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	body["options"] = options
	if opts.JSON {
		body["format"] = "json"
	}

	b, err := json.Marshal(body)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return "", adapter.Usage{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var payload struct {
		Message         adapter.Message `json:"message"`
		PromptEvalCount int             `json:"prompt_eval_count"`
		EvalCount       int             `json:"eval_count"`
	}
	if err := o.do(req, &payload); err != nil {
		return "", adapter.Usage{}, err
	}
	u := adapter.Usage{
		PromptTokens:     payload.PromptEvalCount,
		CompletionTokens: payload.EvalCount,
		TotalTokens:      payload.PromptEvalCount + payload.EvalCount,
	}
	if payload.Message.Content == "" {
		return "", u, fmt.Errorf("%w: ollama: empty reply", domain.ErrMalformedOutput)
	}
	return payload.Message.Content, u, nil
}

func (o *OllamaAdapter) do(req *http.Request, out any) error {
	resp, err := o.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return fmt.Errorf("%w: ollama: %v", domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: ollama http %d", domain.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: ollama http %d: %s", domain.ErrOracleUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: ollama: empty body", domain.ErrMalformedOutput)
		}
		return fmt.Errorf("%w: ollama: %v", domain.ErrMalformedOutput, err)
	}
	return nil
}

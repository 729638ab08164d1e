// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ChatRateLimit   int           `yaml:"chat_rate_limit"`  // requests per window per client
	ChatRateWindow  time.Duration `yaml:"chat_rate_window"` // fixed window length
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL         string        `yaml:"url"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	TTL         time.Duration `yaml:"ttl"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type RedditConfig struct {
	BaseURL      string        `yaml:"base_url"`
	UserAgent    string        `yaml:"user_agent"`
	Mode         string        `yaml:"mode"`         // json|rss
	MinInterval  time.Duration `yaml:"min_interval"` // spacing between any two requests
	Burst        int           `yaml:"burst"`
	MaxRetries   int           `yaml:"max_retries"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffMax   time.Duration `yaml:"backoff_max"`
	Timeout      time.Duration `yaml:"timeout"`
	CommentLimit int           `yaml:"comment_limit"`
}

type AIConfig struct {
	Provider        string        `yaml:"provider"` // ollama|gemini|openai|none
	DefaultModel    string        `yaml:"default_model"`
	OllamaURL       string        `yaml:"ollama_url"`
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiURL       string        `yaml:"gemini_url"`
	OpenAIKey       string        `yaml:"openai_key"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout         time.Duration `yaml:"timeout"`
}

type AnalysisConfig struct {
	Concurrency int           `yaml:"concurrency"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	Context     string        `yaml:"context"` // industry context injected into prompts
}

type WorkerConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	SweepEvery   time.Duration `yaml:"sweep_every"`
}

type ChatConfig struct {
	MaxContextTokens int `yaml:"max_context_tokens"`
	TopItems         int `yaml:"top_items"`
	TopPosts         int `yaml:"top_posts"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Reddit   RedditConfig   `yaml:"reddit"`
	AI       AIConfig       `yaml:"ai"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Worker   WorkerConfig   `yaml:"worker"`
	Chat     ChatConfig     `yaml:"chat"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. A sibling .env is loaded first so
// ${VAR} references in the YAML can pull secrets from the environment.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes raw YAML, applies defaults and validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8000
	}
	cfg.HTTP.RequestTimeout = orDuration(cfg.HTTP.RequestTimeout, 60*time.Second)
	if cfg.HTTP.ChatRateLimit <= 0 {
		cfg.HTTP.ChatRateLimit = 20
	}
	cfg.HTTP.ChatRateWindow = orDuration(cfg.HTTP.ChatRateWindow, time.Minute)
	cfg.HTTP.ShutdownTimeout = orDuration(cfg.HTTP.ShutdownTimeout, 10*time.Second)

	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = orDuration(cfg.Redis.TTL, time.Hour)
	cfg.Redis.DialTimeout = orDuration(cfg.Redis.DialTimeout, 5*time.Second)

	if cfg.Reddit.BaseURL == "" {
		cfg.Reddit.BaseURL = "https://www.reddit.com"
	}
	if cfg.Reddit.UserAgent == "" {
		cfg.Reddit.UserAgent = "reddit-insights/1.0"
	}
	if cfg.Reddit.Mode == "" {
		cfg.Reddit.Mode = "json"
	}
	cfg.Reddit.MinInterval = orDuration(cfg.Reddit.MinInterval, 2*time.Second)
	if cfg.Reddit.Burst <= 0 {
		cfg.Reddit.Burst = 1
	}
	if cfg.Reddit.MaxRetries <= 0 {
		cfg.Reddit.MaxRetries = 3
	}
	cfg.Reddit.BackoffBase = orDuration(cfg.Reddit.BackoffBase, 10*time.Second)
	cfg.Reddit.BackoffMax = orDuration(cfg.Reddit.BackoffMax, 60*time.Second)
	cfg.Reddit.Timeout = orDuration(cfg.Reddit.Timeout, 15*time.Second)
	if cfg.Reddit.CommentLimit <= 0 {
		cfg.Reddit.CommentLimit = 20
	}

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "ollama"
	}
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if cfg.AI.OllamaURL == "" {
		cfg.AI.OllamaURL = "http://localhost:11434"
	}
	if cfg.AI.DefaultModel == "" {
		switch cfg.AI.Provider {
		case "gemini":
			cfg.AI.DefaultModel = "gemini-2.0-flash"
		case "openai":
			cfg.AI.DefaultModel = "gpt-4o-mini"
		default:
			cfg.AI.DefaultModel = "llama3.2"
		}
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 3
	}
	cfg.AI.Timeout = orDuration(cfg.AI.Timeout, 30*time.Second)

	if cfg.Analysis.Concurrency <= 0 {
		cfg.Analysis.Concurrency = 3
	}
	if cfg.Analysis.MaxAttempts <= 0 {
		cfg.Analysis.MaxAttempts = 3
	}
	cfg.Analysis.BackoffBase = orDuration(cfg.Analysis.BackoffBase, 500*time.Millisecond)
	cfg.Analysis.BackoffMax = orDuration(cfg.Analysis.BackoffMax, 8*time.Second)
	if cfg.Analysis.Context == "" {
		cfg.Analysis.Context = "construction equipment"
	}

	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 2
	}
	cfg.Worker.PollInterval = orDuration(cfg.Worker.PollInterval, time.Second)
	cfg.Worker.StaleAfter = orDuration(cfg.Worker.StaleAfter, 5*time.Minute)
	cfg.Worker.SweepEvery = orDuration(cfg.Worker.SweepEvery, time.Minute)

	if cfg.Chat.MaxContextTokens <= 0 {
		cfg.Chat.MaxContextTokens = 3000
	}
	if cfg.Chat.TopItems <= 0 {
		cfg.Chat.TopItems = 8
	}
	if cfg.Chat.TopPosts <= 0 {
		cfg.Chat.TopPosts = 5
	}
}

// Minimal validation
func (cfg *Config) validate() error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	switch cfg.Reddit.Mode {
	case "json", "rss":
	default:
		return fmt.Errorf("reddit.mode must be json or rss, got %q", cfg.Reddit.Mode)
	}
	switch cfg.AI.Provider {
	case "ollama", "none":
	case "gemini":
		if cfg.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case "openai":
		if cfg.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	default:
		return fmt.Errorf("unknown ai.provider %q", cfg.AI.Provider)
	}
	if cfg.Worker.StaleAfter <= cfg.AI.Timeout {
		return errors.New("worker.stale_after must exceed ai.timeout")
	}
	return nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

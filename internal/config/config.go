// Package config handles quorum configuration loading and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Dicklesworthstone/quorum/internal/llm"
)

// DefaultConfigPath is the default location for the config file,
// relative to the user's home directory.
const DefaultConfigPath = ".quorum/config.toml"

// Config is the complete quorum configuration.
type Config struct {
	// Models are the ensemble members as "provider:model" identifiers.
	Models []string `toml:"models"`

	// JudgeModel arbitrates the ensemble's outputs.
	JudgeModel string `toml:"judge_model"`

	// CallBudget caps ensemble runs per consensus session,
	// including the initial one.
	CallBudget int `toml:"call_budget"`

	// AgentTimeoutSeconds bounds a single model invocation.
	AgentTimeoutSeconds int `toml:"agent_timeout_seconds"`

	// Providers maps provider names to endpoint credentials.
	Providers map[string]llm.ProviderConfig `toml:"providers"`

	Compaction CompactionConfig `toml:"compaction"`
	Search     SearchConfig     `toml:"search"`
	Serve      ServeConfig      `toml:"serve"`
	Log        LogConfig        `toml:"log"`
}

// CompactionConfig controls judge transcript compaction.
type CompactionConfig struct {
	// ThresholdTokens is the transcript size that triggers compaction.
	ThresholdTokens int `toml:"threshold_tokens"`
	// KeepTurns is how many trailing turns survive verbatim.
	KeepTurns int `toml:"keep_turns"`
	// Model produces the summary turn. Empty means the judge model.
	Model string `toml:"model"`
}

// SearchConfig configures the web search tool offered to agents.
type SearchConfig struct {
	// APIKey authorizes Tavily requests. Supports ${ENV_VAR} expansion.
	APIKey string `toml:"api_key" json:"-"`
	// MaxResults bounds results per query.
	MaxResults int `toml:"max_results"`
}

// ServeConfig configures the HTTP API server.
type ServeConfig struct {
	// Addr is the listen address.
	Addr string `toml:"addr"`
	// RequestTimeoutSeconds bounds one consensus request end to end.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// Format is "text" or "json".
	Format string `toml:"format"`
}

// Default returns the built-in configuration. Provider API keys are read
// from the conventional environment variables.
func Default() *Config {
	return &Config{
		Models: []string{
			"openai:gpt-5",
			"anthropic:claude-opus-4-5",
			"google:gemini-2.5-pro",
		},
		JudgeModel:          "anthropic:claude-opus-4-5",
		CallBudget:          20,
		AgentTimeoutSeconds: 120,
		Providers: map[string]llm.ProviderConfig{
			"openai": {
				BaseURL: "https://api.openai.com/v1",
				APIKey:  "${OPENAI_API_KEY}",
			},
			"anthropic": {
				BaseURL: "https://api.anthropic.com/v1",
				APIKey:  "${ANTHROPIC_API_KEY}",
			},
			"google": {
				BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
				APIKey:  "${GEMINI_API_KEY}",
			},
		},
		Compaction: CompactionConfig{
			ThresholdTokens: 200_000,
			KeepTurns:       5,
		},
		Search: SearchConfig{
			APIKey:     "${TAVILY_API_KEY}",
			MaxResults: 10,
		},
		Serve: ServeConfig{
			Addr:                  "127.0.0.1:8787",
			RequestTimeoutSeconds: 600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML config file, layered over defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.expandEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the config from path, or from the default location
// when path is empty. A missing default file yields the built-in defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, DefaultConfigPath)
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
	}
	cfg := Default()
	cfg.expandEnv()
	return cfg, nil
}

// Validate rejects configurations that cannot form a working ensemble.
func (c *Config) Validate() error {
	if len(c.Models) < 2 {
		return fmt.Errorf("config: need at least 2 models, got %d", len(c.Models))
	}
	seen := make(map[string]struct{}, len(c.Models))
	for _, id := range c.Models {
		provider, _, err := llm.SplitModelID(id)
		if err != nil {
			return fmt.Errorf("config: model %q: %w", id, err)
		}
		if _, ok := c.Providers[provider]; !ok {
			return fmt.Errorf("config: model %q references unknown provider %q", id, provider)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("config: duplicate model %q", id)
		}
		seen[id] = struct{}{}
	}
	if provider, _, err := llm.SplitModelID(c.JudgeModel); err != nil {
		return fmt.Errorf("config: judge_model %q: %w", c.JudgeModel, err)
	} else if _, ok := c.Providers[provider]; !ok {
		return fmt.Errorf("config: judge_model %q references unknown provider %q", c.JudgeModel, provider)
	}
	if c.CallBudget <= 0 {
		return fmt.Errorf("config: call_budget must be positive, got %d", c.CallBudget)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}

// AgentTimeout returns the per-invocation timeout as a duration.
func (c *Config) AgentTimeout() time.Duration {
	if c.AgentTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

// RequestTimeout returns the serve request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	if c.Serve.RequestTimeoutSeconds <= 0 {
		return 600 * time.Second
	}
	return time.Duration(c.Serve.RequestTimeoutSeconds) * time.Second
}

// CompactionModel returns the summarizer model identifier.
func (c *Config) CompactionModel() string {
	if c.Compaction.Model != "" {
		return c.Compaction.Model
	}
	return c.JudgeModel
}

// expandEnv resolves ${VAR} references in credentials. Unset variables
// expand to empty, which Validate and the clients treat as "no key".
func (c *Config) expandEnv() {
	for name, p := range c.Providers {
		p.APIKey = expand(p.APIKey)
		p.BaseURL = expand(p.BaseURL)
		c.Providers[name] = p
	}
	c.Search.APIKey = expand(c.Search.APIKey)
}

func expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.ExpandEnv(s)
}

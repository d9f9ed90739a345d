// Package llm provides chat-completion clients for the LLM-backed
// pipeline stages: keyword expansion, summarization, and reranking.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Defaults shared by all providers.
const (
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultAnthropicModel   = "claude-3-5-haiku-latest"
	defaultAnthropicBaseURL = "https://api.anthropic.com"

	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = time.Second
	defaultMaxTokens   = 4096
	defaultTemperature = 0.3

	// 50 requests per minute with small bursts.
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// ErrEmptyResponse indicates the API returned no content.
var ErrEmptyResponse = errors.New("empty response from API")

// Client generates a completion for a prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds provider-independent client configuration.
type Config struct {
	// Provider is "openai" or "anthropic".
	Provider string

	// Model overrides the provider's default model.
	Model string

	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider's API endpoint.
	BaseURL string

	// Timeout bounds each HTTP request. Default: 30s.
	Timeout time.Duration
}

// New creates a Client for the configured provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

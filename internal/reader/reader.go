// Package reader fetches web pages as LLM-ready markdown through a
// reader proxy service (r.jina.ai style: GET <base>/<url>).
package reader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://r.jina.ai/"
	defaultTimeout = 10 * time.Second

	// maxBodySize caps page downloads at 2MB.
	maxBodySize = 2 * 1024 * 1024
)

// Config holds reader client configuration.
type Config struct {
	// BaseURL is the reader proxy endpoint. Default: https://r.jina.ai/
	BaseURL string

	// APIKey authenticates against the proxy. Optional; unauthenticated
	// requests are rate-limited harder.
	APIKey string

	// Timeout bounds each fetch. Default: 10s.
	Timeout time.Duration
}

// Client fetches page content through the reader proxy.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a reader Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch returns the markdown rendering of a page.
func (c *Client) Fetch(ctx context.Context, pageURL string) (string, error) {
	if pageURL == "" {
		return "", fmt.Errorf("page URL cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating reader request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	// Images are noise for extraction.
	req.Header.Set("X-Retain-Images", "none")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("reading response for %s: %w", pageURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reader returned %d for %s", resp.StatusCode, pageURL)
	}

	c.logger.Debug("fetched page",
		zap.String("url", pageURL),
		zap.Int("bytes", len(body)),
	)

	return string(body), nil
}

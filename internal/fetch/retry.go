// Package fetch provides the retrying HTTP client that all outbound provider
// calls go through. It retries transport and HTTP-status failures with
// bounded exponential backoff; provider-level soft failures carried in a 200
// body are the caller's concern.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultMaxRetries is the number of retries after the initial attempt.
	DefaultMaxRetries = 3

	// DefaultBaseBackoff is the delay before the first retry; retry i
	// (0-indexed) waits DefaultBaseBackoff << i, so 1s, 2s, 4s.
	DefaultBaseBackoff = time.Second

	// DefaultTimeout bounds each individual attempt.
	DefaultTimeout = 10 * time.Second
)

// Config tunes the retry behaviour of a Client.
type Config struct {
	MaxRetries  int
	BaseBackoff time.Duration
	Timeout     time.Duration
}

// Client issues GET requests with bounded exponential-backoff retries. No
// jitter is applied: the schedule is fixed so the worst-case added latency
// is predictable.
type Client struct {
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client. Zero Config fields fall back to the defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		logger:      logger.With(slog.String("component", "fetch")),
		sleep:       sleepContext,
	}
}

// Get fetches url and returns the response body. It makes up to
// 1+MaxRetries attempts; failures before the last are logged and retried
// after baseBackoff*2^i, the last failure propagates to the caller.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseBackoff << (attempt - 1)
			c.logger.WarnContext(ctx, "request failed, retrying",
				slog.String("url", url),
				slog.Int("attempt", attempt),
				slog.Int("max_retries", c.maxRetries),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, err := c.doGet(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		// Context errors are terminal; backing off will not help.
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// doGet performs a single GET attempt.
func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch: HTTP %d from %s", resp.StatusCode, url)
	}

	return body, nil
}

// sleepContext waits for d, honouring context cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

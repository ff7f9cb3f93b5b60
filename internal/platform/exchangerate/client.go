// Package exchangerate implements the FX rate provider on top of the
// exchangerate-api v4 "latest" endpoint, which returns a full rate table for
// a base currency.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/openfolio/marketd/internal/domain"
	"github.com/openfolio/marketd/internal/fetch"
)

// DefaultBaseURL is the production exchangerate-api endpoint.
const DefaultBaseURL = "https://api.exchangerate-api.com"

// Client is the exchange-rate REST client.
type Client struct {
	baseURL string
	fetcher *fetch.Client
	logger  *slog.Logger
}

// New creates a Client. An empty baseURL selects the production endpoint.
func New(baseURL string, fetcher *fetch.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "exchangerate")),
	}
}

type latestResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// FetchRate returns the from→to conversion rate. The caller owns caching and
// the 1.0 neutral fallback; this client only reports what the API says.
func (c *Client) FetchRate(ctx context.Context, from, to string) (float64, error) {
	fromCode := domain.NormalizeCurrency(from)
	toCode := domain.NormalizeCurrency(to)

	u := fmt.Sprintf("%s/v4/latest/%s", c.baseURL, url.PathEscape(fromCode))

	body, err := c.fetcher.Get(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("exchangerate: latest %s: %w", fromCode, err)
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("exchangerate: decode latest %s: %w", fromCode, err)
	}

	rate, ok := resp.Rates[toCode]
	if !ok || rate == 0 {
		c.logger.WarnContext(ctx, "rate not in response",
			slog.String("from", fromCode),
			slog.String("to", toCode),
		)
		return 0, fmt.Errorf("exchangerate: rate %s->%s: %w", fromCode, toCode, domain.ErrNotFound)
	}

	return rate, nil
}

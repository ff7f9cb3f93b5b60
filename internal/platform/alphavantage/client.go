// Package alphavantage implements the rate-limited equity/ETF quote provider
// on top of the Alpha Vantage GLOBAL_QUOTE endpoint. Quotes are denominated
// in USD; currency conversion happens upstream in the aggregator.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openfolio/marketd/internal/domain"
	"github.com/openfolio/marketd/internal/fetch"
)

// DefaultBaseURL is the production Alpha Vantage endpoint.
const DefaultBaseURL = "https://www.alphavantage.co"

// Client is the Alpha Vantage REST client.
type Client struct {
	baseURL string
	apiKey  string
	fetcher *fetch.Client
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Client. An empty baseURL selects the production endpoint.
func New(baseURL, apiKey string, fetcher *fetch.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "alphavantage")),
		now:     time.Now,
	}
}

// globalQuoteResponse mirrors the GLOBAL_QUOTE payload. Alpha Vantage signals
// rate limiting inside a 200 body via the Note/Information fields.
type globalQuoteResponse struct {
	Note        string      `json:"Note"`
	Information string      `json:"Information"`
	Quote       globalQuote `json:"Global Quote"`
}

type globalQuote struct {
	Symbol        string `json:"01. symbol"`
	Price         string `json:"05. price"`
	Change        string `json:"09. change"`
	ChangePercent string `json:"10. change percent"`
}

// FetchQuote returns the current USD quote for symbol.
//
// A well-formed response carrying a rate-limit notice or no quote data is a
// soft failure: it is logged and surfaced as domain.ErrNoQuote, never
// retried here. Retrying a provider-side limit notice would itself violate
// the call budget, which is why the token bucket gates calls before this
// client is reached.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (domain.MarketPrice, error) {
	symbol = domain.NormalizeSymbol(symbol)

	u := fmt.Sprintf("%s/query?function=GLOBAL_QUOTE&symbol=%s&apikey=%s",
		c.baseURL, url.QueryEscape(symbol), url.QueryEscape(c.apiKey))

	body, err := c.fetcher.Get(ctx, u)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("alphavantage: quote %s: %w", symbol, err)
	}

	var resp globalQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.MarketPrice{}, fmt.Errorf("alphavantage: decode quote %s: %w", symbol, err)
	}

	if resp.Note != "" || resp.Information != "" {
		c.logger.WarnContext(ctx, "provider returned rate-limit or info notice",
			slog.String("symbol", symbol),
			slog.String("note", firstNonEmpty(resp.Note, resp.Information)),
		)
		return domain.MarketPrice{}, domain.ErrNoQuote
	}

	if resp.Quote.Price == "" {
		c.logger.WarnContext(ctx, "no global quote in response", slog.String("symbol", symbol))
		return domain.MarketPrice{}, domain.ErrNoQuote
	}

	price, err := strconv.ParseFloat(resp.Quote.Price, 64)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("alphavantage: parse price %q: %w", resp.Quote.Price, err)
	}
	change, err := strconv.ParseFloat(resp.Quote.Change, 64)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("alphavantage: parse change %q: %w", resp.Quote.Change, err)
	}
	changePct, err := strconv.ParseFloat(strings.TrimSuffix(resp.Quote.ChangePercent, "%"), 64)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("alphavantage: parse change percent %q: %w", resp.Quote.ChangePercent, err)
	}

	return domain.MarketPrice{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		AsOf:          c.now().UTC(),
		Source:        domain.SourceEquityProvider,
	}, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

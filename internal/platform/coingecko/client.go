// Package coingecko implements the crypto price provider on top of the
// CoinGecko simple/price endpoint. The public endpoint has no meaningful
// call budget, so no rate limiter gates this client; transport retries still
// apply.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/openfolio/marketd/internal/domain"
	"github.com/openfolio/marketd/internal/fetch"
)

// DefaultBaseURL is the production CoinGecko v3 API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// coinIDs maps common ticker symbols to CoinGecko asset ids. Unknown symbols
// fall through as their lowercase form, which works for many long-tail
// assets whose id equals the ticker.
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"ADA":  "cardano",
	"DOT":  "polkadot",
	"DOGE": "dogecoin",
	"USDT": "tether",
	"XRP":  "ripple",
}

// CoinID resolves a ticker symbol to the CoinGecko asset id.
func CoinID(symbol string) string {
	if id, ok := coinIDs[domain.NormalizeSymbol(symbol)]; ok {
		return id
	}
	return strings.ToLower(strings.TrimSpace(symbol))
}

// Client is the CoinGecko REST client.
type Client struct {
	baseURL string
	fetcher *fetch.Client
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Client. An empty baseURL selects the production endpoint.
func New(baseURL string, fetcher *fetch.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "coingecko")),
		now:     time.Now,
	}
}

// FetchSimplePrice returns the current price of symbol denominated directly
// in the requested currency, with the absolute change derived from the 24h
// change percentage. Missing data is a soft failure (domain.ErrNoQuote).
func (c *Client) FetchSimplePrice(ctx context.Context, symbol, currency string) (domain.MarketPrice, error) {
	id := CoinID(symbol)
	curr := strings.ToLower(domain.NormalizeCurrency(currency))

	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s&include_24hr_change=true",
		c.baseURL, url.QueryEscape(id), url.QueryEscape(curr))

	body, err := c.fetcher.Get(ctx, u)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("coingecko: simple price %s: %w", symbol, err)
	}

	// Response shape: {"bitcoin": {"usd": 45000.1, "usd_24h_change": -1.2}}
	var resp map[string]map[string]float64
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.MarketPrice{}, fmt.Errorf("coingecko: decode simple price %s: %w", symbol, err)
	}

	data, ok := resp[id]
	if !ok {
		c.logger.WarnContext(ctx, "no data for coin id",
			slog.String("symbol", symbol),
			slog.String("coin_id", id),
		)
		return domain.MarketPrice{}, domain.ErrNoQuote
	}

	price, ok := data[curr]
	if !ok {
		c.logger.WarnContext(ctx, "no price in requested currency",
			slog.String("symbol", symbol),
			slog.String("currency", curr),
		)
		return domain.MarketPrice{}, domain.ErrNoQuote
	}

	changePct := data[curr+"_24h_change"]

	return domain.MarketPrice{
		Symbol:        domain.NormalizeSymbol(symbol),
		Price:         price,
		Change:        price * changePct / 100, // approximate absolute change
		ChangePercent: changePct,
		AsOf:          c.now().UTC(),
		Source:        domain.SourceCryptoProvider,
	}, nil
}

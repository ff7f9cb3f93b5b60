// Package domain defines the core value objects and ports of the market-data
// service: prices, asset types, cache keys, and the interfaces implemented by
// the provider and store adapters.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// AssetType classifies a symbol for routing and caching purposes. Stocks and
// ETFs share the rate-limited equity provider; crypto uses an unrestricted
// provider.
type AssetType string

const (
	AssetStock  AssetType = "stock"
	AssetETF    AssetType = "etf"
	AssetCrypto AssetType = "crypto"
)

// ParseAssetType converts a user-supplied string into an AssetType.
func ParseAssetType(s string) (AssetType, error) {
	switch AssetType(strings.ToLower(strings.TrimSpace(s))) {
	case AssetStock:
		return AssetStock, nil
	case AssetETF:
		return AssetETF, nil
	case AssetCrypto:
		return AssetCrypto, nil
	default:
		return "", fmt.Errorf("domain: unknown asset type %q", s)
	}
}

// RateLimited reports whether quotes for this asset type must pass through
// the shared upstream rate limiter. The equity provider enforces a per-key
// call budget; the crypto provider does not.
func (t AssetType) RateLimited() bool {
	return t != AssetCrypto
}

// PriceSource records where a MarketPrice came from.
type PriceSource string

const (
	SourceEquityProvider PriceSource = "provider-equity"
	SourceCryptoProvider PriceSource = "provider-crypto"
	SourceCache          PriceSource = "cache"
	SourceFallback       PriceSource = "fallback"
)

// MarketPrice is an immutable point-in-time quote for a symbol, denominated
// in a target currency. Each fetch produces a new value.
type MarketPrice struct {
	Symbol        string      `json:"symbol"`
	Price         float64     `json:"price"`
	Change        float64     `json:"change"`
	ChangePercent float64     `json:"changePercent"`
	AsOf          time.Time   `json:"asOf"`
	Source        PriceSource `json:"source"`
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeCurrency upper-cases and trims an ISO currency code.
func NormalizeCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// PriceKey composes the cache key for a quote lookup:
// "price:{type}:{symbol}:{currency}".
func PriceKey(t AssetType, symbol, currency string) string {
	return "price:" + string(t) + ":" + NormalizeSymbol(symbol) + ":" + NormalizeCurrency(currency)
}

// RateKey composes the cache key for an exchange-rate lookup:
// "rate:{from}:{to}".
func RateKey(from, to string) string {
	return "rate:" + NormalizeCurrency(from) + ":" + NormalizeCurrency(to)
}

// Package marketdata implements the price acquisition core: a cached,
// rate-limited, queue-serialized path from (symbol, asset type, currency) to
// a current market price, with synthetic fallback when no provider
// credential is configured.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/openfolio/marketd/internal/cache/memory"
	"github.com/openfolio/marketd/internal/domain"
)

// Provider-specific cache TTLs. Equity quotes need the most freshness;
// crypto trades around the clock but tolerates a longer window; FX rates
// move slowly enough for a daily refresh.
const (
	DefaultStockTTL  = 5 * time.Minute
	DefaultCryptoTTL = 10 * time.Minute
	DefaultRateTTL   = 24 * time.Hour
)

// PriceUpdatesChannel is the bus channel fresh prices are published on.
const PriceUpdatesChannel = "price_updates"

// StockProvider is the rate-limited equity/ETF quote source. Quotes are in
// USD.
type StockProvider interface {
	FetchQuote(ctx context.Context, symbol string) (domain.MarketPrice, error)
}

// CryptoProvider quotes crypto assets directly in the target currency.
type CryptoProvider interface {
	FetchSimplePrice(ctx context.Context, symbol, currency string) (domain.MarketPrice, error)
}

// RateProvider resolves FX conversion rates.
type RateProvider interface {
	FetchRate(ctx context.Context, from, to string) (float64, error)
}

// Limiter gates calls to the rate-limited provider class.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Config tunes the Service.
type Config struct {
	// RealPrices is derived from the equity provider credential being
	// present and not a placeholder. When false every lookup is served by
	// the synthetic generator and the network is never touched.
	RealPrices bool

	StockTTL  time.Duration
	CryptoTTL time.Duration
	RateTTL   time.Duration

	// FallbackSeed seeds the synthetic generator; zero means time-seeded.
	FallbackSeed int64
}

// Deps bundles the collaborators the Service orchestrates.
type Deps struct {
	Cache   *memory.Cache
	Queue   *Queue
	Limiter Limiter
	Stocks  StockProvider
	Crypto  CryptoProvider
	Rates   RateProvider

	// Snapshots and Bus are optional; a nil value disables the snapshot
	// write-back or the price fan-out respectively.
	Snapshots domain.SnapshotStore
	Bus       domain.PriceBus
}

// Service is the price aggregator. All lookups flow cache → queue →
// (rate limiter) → provider → conversion → cache write-back.
type Service struct {
	cfg      Config
	cache    *memory.Cache
	queue    *Queue
	limiter  Limiter
	stocks   StockProvider
	crypto   CryptoProvider
	rates    RateProvider
	snaps    domain.SnapshotStore
	bus      domain.PriceBus
	fallback *Generator
	logger   *slog.Logger
}

// NewService creates the aggregator.
func NewService(cfg Config, deps Deps, logger *slog.Logger) *Service {
	if cfg.StockTTL <= 0 {
		cfg.StockTTL = DefaultStockTTL
	}
	if cfg.CryptoTTL <= 0 {
		cfg.CryptoTTL = DefaultCryptoTTL
	}
	if cfg.RateTTL <= 0 {
		cfg.RateTTL = DefaultRateTTL
	}
	return &Service{
		cfg:      cfg,
		cache:    deps.Cache,
		queue:    deps.Queue,
		limiter:  deps.Limiter,
		stocks:   deps.Stocks,
		crypto:   deps.Crypto,
		rates:    deps.Rates,
		snaps:    deps.Snapshots,
		bus:      deps.Bus,
		fallback: NewGenerator(cfg.FallbackSeed),
		logger:   logger.With(slog.String("component", "marketdata")),
	}
}

// RealPrices reports whether the service fetches live provider data.
func (s *Service) RealPrices() bool {
	return s.cfg.RealPrices
}

// GetPrice returns the current price of symbol denominated in currency.
//
// It returns domain.ErrNoQuote when no fresh price could be obtained; every
// lower-level failure is absorbed and logged here. Context cancellation
// propagates as-is.
func (s *Service) GetPrice(ctx context.Context, symbol string, assetType domain.AssetType, currency string) (domain.MarketPrice, error) {
	symbol = domain.NormalizeSymbol(symbol)
	currency = domain.NormalizeCurrency(currency)
	if currency == "" {
		currency = "USD"
	}
	key := domain.PriceKey(assetType, symbol, currency)

	if v, ok := s.cache.Get(key); ok {
		if p, ok := v.(domain.MarketPrice); ok {
			s.logger.DebugContext(ctx, "cache hit", slog.String("key", key))
			p.Source = domain.SourceCache
			return p, nil
		}
	}

	if !s.cfg.RealPrices {
		s.logger.DebugContext(ctx, "real prices disabled, serving synthetic quote",
			slog.String("symbol", symbol),
		)
		return s.fallback.Price(symbol, assetType, currency), nil
	}

	price, err := s.queue.Submit(ctx, key, func(ctx context.Context) (domain.MarketPrice, error) {
		return s.fetch(ctx, key, symbol, assetType, currency)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.MarketPrice{}, err
		}
		s.logger.ErrorContext(ctx, "price fetch failed",
			slog.String("symbol", symbol),
			slog.String("asset_type", string(assetType)),
			slog.String("currency", currency),
			slog.String("error", err.Error()),
		)
		return domain.MarketPrice{}, domain.ErrNoQuote
	}
	return price, nil
}

// Rate resolves the from→to FX rate through the rate cache. A failed lookup
// degrades to the neutral rate 1.0 rather than erroring, because price
// display must never hard-fail on FX unavailability.
func (s *Service) Rate(ctx context.Context, from, to string) float64 {
	from = domain.NormalizeCurrency(from)
	to = domain.NormalizeCurrency(to)
	if from == to {
		return 1
	}

	key := domain.RateKey(from, to)
	if v, ok := s.cache.Get(key); ok {
		if r, ok := v.(float64); ok {
			return r
		}
	}

	rate, err := s.rates.FetchRate(ctx, from, to)
	if err != nil {
		s.logger.WarnContext(ctx, "exchange rate unavailable, falling back to 1.0",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		return 1
	}

	s.cache.Set(key, rate, s.cfg.RateTTL)
	return rate
}

// RunCacheSweeper periodically drops expired cache entries. Lazy expiry
// already guarantees correctness; this only bounds memory between reads.
func (s *Service) RunCacheSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.cache.Sweep(); removed > 0 {
				s.logger.DebugContext(ctx, "cache sweep", slog.Int("removed", removed))
			}
		}
	}
}

// fetch is the queued unit of work: gate on the rate limiter for the equity
// class, call the provider, convert currency if needed, then write back to
// cache, snapshot store, and price bus.
func (s *Service) fetch(ctx context.Context, key, symbol string, assetType domain.AssetType, currency string) (domain.MarketPrice, error) {
	var (
		price domain.MarketPrice
		err   error
	)

	if assetType.RateLimited() {
		if err := s.limiter.Acquire(ctx); err != nil {
			return domain.MarketPrice{}, err
		}
		price, err = s.stocks.FetchQuote(ctx, symbol)
		if err != nil {
			return domain.MarketPrice{}, err
		}
		if currency != "USD" {
			rate := s.Rate(ctx, "USD", currency)
			s.logger.DebugContext(ctx, "converting quote",
				slog.String("symbol", symbol),
				slog.String("currency", currency),
				slog.Float64("rate", rate),
			)
			price.Price *= rate
			price.Change *= rate
		}
	} else {
		price, err = s.crypto.FetchSimplePrice(ctx, symbol, currency)
		if err != nil {
			return domain.MarketPrice{}, err
		}
	}

	s.cache.Set(key, price, s.ttlFor(assetType))
	s.persist(ctx, key, price)
	return price, nil
}

func (s *Service) ttlFor(t domain.AssetType) time.Duration {
	if t == domain.AssetCrypto {
		return s.cfg.CryptoTTL
	}
	return s.cfg.StockTTL
}

// persist writes the fresh price to the snapshot store and publishes it on
// the bus. Both are best-effort: failures are logged and never surface to
// the caller.
func (s *Service) persist(ctx context.Context, key string, price domain.MarketPrice) {
	if s.snaps != nil {
		if err := s.snaps.SetSnapshot(ctx, key, price); err != nil {
			s.logger.WarnContext(ctx, "snapshot write-back failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(price)
		if err == nil {
			err = s.bus.Publish(ctx, PriceUpdatesChannel, payload)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "price publish failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

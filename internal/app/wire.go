package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openfolio/marketd/internal/cache/memory"
	"github.com/openfolio/marketd/internal/config"
	"github.com/openfolio/marketd/internal/domain"
	"github.com/openfolio/marketd/internal/fetch"
	"github.com/openfolio/marketd/internal/marketdata"
	"github.com/openfolio/marketd/internal/platform/alphavantage"
	"github.com/openfolio/marketd/internal/platform/coingecko"
	"github.com/openfolio/marketd/internal/platform/exchangerate"
	"github.com/openfolio/marketd/internal/ratelimit"
	"github.com/openfolio/marketd/internal/server"
	"github.com/openfolio/marketd/internal/server/handler"
	"github.com/openfolio/marketd/internal/server/ws"
	redisstore "github.com/openfolio/marketd/internal/store/redis"
)

// Dependencies bundles the long-lived components that App.Run operates. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Service *marketdata.Service
	Queue   *marketdata.Queue
	Hub     *ws.Hub // nil when Redis is not configured
	Server  *server.Server
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Acquisition core ---
	cache := memory.New(cfg.Market.CacheMaxEntries)
	limiter := ratelimit.New(cfg.Market.RateLimitCalls, cfg.Market.RateLimitWindow.Duration)
	queue := marketdata.NewQueue(cfg.Market.QueueBuffer, cache, logger)

	fetcher := fetch.NewClient(fetch.Config{
		MaxRetries:  cfg.Providers.MaxRetries,
		BaseBackoff: cfg.Providers.RetryBackoff.Duration,
		Timeout:     cfg.Providers.HTTPTimeout.Duration,
	}, logger)

	stocks := alphavantage.New(cfg.Providers.AlphaVantageURL, cfg.Providers.AlphaVantageKey, fetcher, logger)
	crypto := coingecko.New(cfg.Providers.CoinGeckoURL, fetcher, logger)
	rates := exchangerate.New(cfg.Providers.ExchangeRateURL, fetcher, logger)

	// --- Optional Redis snapshot store and price bus ---
	var (
		snapshots domain.SnapshotStore
		bus       domain.PriceBus
	)
	if cfg.RedisEnabled() {
		redisClient, err := redisstore.New(ctx, redisstore.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		snapshots = redisstore.NewSnapshotStore(redisClient)
		bus = redisstore.NewPriceBus(redisClient)
	}

	svc := marketdata.NewService(marketdata.Config{
		RealPrices:   cfg.RealPrices(),
		StockTTL:     cfg.Market.StockTTL.Duration,
		CryptoTTL:    cfg.Market.CryptoTTL.Duration,
		RateTTL:      cfg.Market.RateTTL.Duration,
		FallbackSeed: cfg.Market.FallbackSeed,
	}, marketdata.Deps{
		Cache:     cache,
		Queue:     queue,
		Limiter:   limiter,
		Stocks:    stocks,
		Crypto:    crypto,
		Rates:     rates,
		Snapshots: snapshots,
		Bus:       bus,
	}, logger)

	// --- HTTP surface ---
	startedAt := time.Now().UTC()

	var hub *ws.Hub
	if bus != nil {
		hub = ws.NewHub(bus, logger, ws.Config{
			Channel:    marketdata.PriceUpdatesChannel,
			RealPrices: cfg.RealPrices(),
			StartedAt:  startedAt,
		})
	}

	var snapReader handler.SnapshotReader
	if snapshots != nil {
		snapReader = snapshots
	}

	srv := server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
	}, server.Handlers{
		Health: handler.NewHealthHandler(cfg.RealPrices(), startedAt),
		Prices: handler.NewPriceHandler(svc, snapReader, logger),
	}, hub, logger)

	return &Dependencies{
		Service: svc,
		Queue:   queue,
		Hub:     hub,
		Server:  srv,
	}, cleanup, nil
}

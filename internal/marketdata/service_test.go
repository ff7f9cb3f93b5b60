package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfolio/marketd/internal/cache/memory"
	"github.com/openfolio/marketd/internal/domain"
)

// --- fakes -----------------------------------------------------------------

type fakeStocks struct {
	mu    sync.Mutex
	calls int
	price domain.MarketPrice
	err   error
}

func (f *fakeStocks) FetchQuote(ctx context.Context, symbol string) (domain.MarketPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.MarketPrice{}, f.err
	}
	p := f.price
	p.Symbol = domain.NormalizeSymbol(symbol)
	return p, nil
}

type fakeCrypto struct {
	mu    sync.Mutex
	calls int
	price domain.MarketPrice
	err   error
}

func (f *fakeCrypto) FetchSimplePrice(ctx context.Context, symbol, currency string) (domain.MarketPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.MarketPrice{}, f.err
	}
	p := f.price
	p.Symbol = domain.NormalizeSymbol(symbol)
	return p, nil
}

type fakeRates struct {
	mu    sync.Mutex
	calls int
	rate  float64
	err   error
}

func (f *fakeRates) FetchRate(ctx context.Context, from, to string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.rate, nil
}

type fakeLimiter struct {
	acquires int32
}

func (f *fakeLimiter) Acquire(ctx context.Context) error {
	atomic.AddInt32(&f.acquires, 1)
	return nil
}

type fakeSnapshots struct {
	mu   sync.Mutex
	data map[string]domain.MarketPrice
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{data: map[string]domain.MarketPrice{}}
}

func (f *fakeSnapshots) SetSnapshot(ctx context.Context, key string, p domain.MarketPrice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = p
	return nil
}

func (f *fakeSnapshots) GetSnapshot(ctx context.Context, key string) (domain.MarketPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.data[key]
	if !ok {
		return domain.MarketPrice{}, domain.ErrNotFound
	}
	return p, nil
}

type fakeBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

// --- harness ---------------------------------------------------------------

type serviceFixture struct {
	svc     *Service
	cache   *memory.Cache
	stocks  *fakeStocks
	crypto  *fakeCrypto
	rates   *fakeRates
	limiter *fakeLimiter
	snaps   *fakeSnapshots
	bus     *fakeBus
}

func newFixture(t *testing.T, cfg Config) *serviceFixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	cache := memory.New(1000)
	queue := NewQueue(64, cache, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = queue.Run(ctx) }()

	f := &serviceFixture{
		cache:   cache,
		stocks:  &fakeStocks{price: domain.MarketPrice{Price: 100, Change: 2, ChangePercent: 1.5, AsOf: time.Now(), Source: domain.SourceEquityProvider}},
		crypto:  &fakeCrypto{price: domain.MarketPrice{Price: 45000, Change: 900, ChangePercent: 2, AsOf: time.Now(), Source: domain.SourceCryptoProvider}},
		rates:   &fakeRates{rate: 58.21},
		limiter: &fakeLimiter{},
		snaps:   newFakeSnapshots(),
		bus:     &fakeBus{},
	}
	f.svc = NewService(cfg, Deps{
		Cache:     cache,
		Queue:     queue,
		Limiter:   f.limiter,
		Stocks:    f.stocks,
		Crypto:    f.crypto,
		Rates:     f.rates,
		Snapshots: f.snaps,
		Bus:       f.bus,
	}, logger)
	return f
}

// --- tests -----------------------------------------------------------------

func TestDisabledRealPricesAlwaysServesFallback(t *testing.T) {
	f := newFixture(t, Config{RealPrices: false, FallbackSeed: 42})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p, err := f.svc.GetPrice(ctx, "AAPL", domain.AssetStock, "USD")
		require.NoError(t, err)
		assert.Equal(t, domain.SourceFallback, p.Source)
	}

	assert.Zero(t, f.stocks.calls, "provider must never be called in fallback mode")
	assert.Zero(t, f.rates.calls)
	assert.Zero(t, atomic.LoadInt32(&f.limiter.acquires))
}

func TestStockQuoteInUSDSkipsConversion(t *testing.T) {
	f := newFixture(t, Config{RealPrices: true})

	p, err := f.svc.GetPrice(context.Background(), "AAPL", domain.AssetStock, "USD")
	require.NoError(t, err)

	assert.Equal(t, domain.SourceEquityProvider, p.Source)
	assert.InDelta(t, 100, p.Price, 1e-9)
	assert.Equal(t, 1, f.stocks.calls)
	assert.Zero(t, f.rates.calls, "USD target needs no FX lookup")
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.limiter.acquires))
}

func TestStockQuoteConvertedToTargetCurrency(t *testing.T) {
	f := newFixture(t, Config{RealPrices: true})

	p, err := f.svc.GetPrice(context.Background(), "AAPL", domain.AssetStock, "PHP")
	require.NoError(t, err)

	assert.Equal(t, domain.SourceEquityProvider, p.Source)
	assert.InDelta(t, 100*58.21, p.Price, 1e-6)
	assert.InDelta(t, 2*58.21, p.Change, 1e-6)
	assert.InDelta(t, 1.5, p.ChangePercent, 1e-9, "percent change is currency-independent")
	assert.Equal(t, 1, f.stocks.calls)
	assert.Equal(t, 1, f.rates.calls)
}

func TestSecondLookupServedFromCache(t *testing.T) {
	f := newFixture(t, Config{RealPrices: true})
	ctx := context.Background()

	_, err := f.svc.GetPrice(ctx, "AAPL", domain.AssetStock, "PHP")
	require.NoError(t, err)

	p, err := f.svc.GetPrice(ctx, "AAPL", domain.AssetStock, "PHP")
	require.NoError(t, err)

	assert.Equal(t, domain.SourceCache, p.Source)
	assert.InDelta(t, 100*58.21, p.Price, 1e-6)
	assert.Equal(t, 1, f.stocks.calls, "cache hit must not call the provider again")
}

func TestExchangeRateIsCachedAcrossSymbols(t *testing.T) {
	f := newFixture(t, Config{RealPrices: true})
	ctx := context.Background()

	_, err := f.svc.GetPrice(ctx, "AAPL", domain.AssetStock, "PHP")
	require.NoError(t, err)
	_, err = f.svc.GetPrice(ctx, "MSFT", domain.AssetStock, "PHP")
	require.NoError(t, err)

	assert.Equal(t, 2, f.stocks.calls)
	assert.Equal(t, 1, f.rates.calls, "second symbol reuses the cached rate")
}

func TestRateFailureDegradesToNeutralRate(t *testing.T) {
	f := newFixture(t, Config{RealPrices: true})
	f.rates.err = errors.New("fx endpoint down")

	p, err := f.svc.GetPrice(context.Background(), "AAPL", domain.AssetStock, "EUR")
	require.NoError(t, err)

	assert.InDelta(t, 100, p.Price, 1e-9, "neutral 1.0 rate on FX failure")
	assert.Equal(t, domain.SourceEquityProvider, p.Source)
}

func TestCryptoPathNeverTouchesRateLimiter(t *testing.T) {
	f := newFixture(t, Config{RealPrices: true})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.svc.GetPrice(ctx, "BTC", domain.AssetCrypto, "USD")
			assert.NoError(t, err)
			assert.NotEqual(t, domain.SourceFallback, p.Source)
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&f.limiter.acquires), "crypto fetches bypass the equity limiter")
	assert.GreaterOrEqual(t, f.crypto.calls, 1)
	assert.LessOrEqual(t, f.crypto.calls, 2, "duplicate fetch race allows at most one extra call")
}

func TestCryptoQuoteNotConverted(t *testing.T) {
	f := newFixture(t, Config{RealPrices: true})

	p, err := f.svc.GetPrice(context.Background(), "BTC", domain.AssetCrypto, "PHP")
	require.NoError(t, err)

	// The crypto provider quotes directly in the target currency.
	assert.InDelta(t, 45000, p.Price, 1e-9)
	assert.Zero(t, f.rates.calls)
}

func TestProviderSoftFailureSurfacesAsNoQuote(t *testing.T) {
	f := newFixture(t, Config{RealPrices: true})
	f.stocks.err = domain.ErrNoQuote

	_, err := f.svc.GetPrice(context.Background(), "AAPL", domain.AssetStock, "USD")
	require.ErrorIs(t, err, domain.ErrNoQuote)

	// Failures are not cached; the next call tries the provider again.
	_, err = f.svc.GetPrice(context.Background(), "AAPL", domain.AssetStock, "USD")
	require.ErrorIs(t, err, domain.ErrNoQuote)
	assert.Equal(t, 2, f.stocks.calls)
}

func TestSuccessfulFetchWritesSnapshotAndPublishes(t *testing.T) {
	f := newFixture(t, Config{RealPrices: true})

	p, err := f.svc.GetPrice(context.Background(), "AAPL", domain.AssetStock, "USD")
	require.NoError(t, err)

	key := domain.PriceKey(domain.AssetStock, "AAPL", "USD")
	snap, err := f.snaps.GetSnapshot(context.Background(), key)
	require.NoError(t, err)
	assert.InDelta(t, p.Price, snap.Price, 1e-9)

	require.Len(t, f.bus.payloads, 1)
	var published domain.MarketPrice
	require.NoError(t, json.Unmarshal(f.bus.payloads[0], &published))
	assert.Equal(t, "AAPL", published.Symbol)
}

func TestRateIdentityForSameCurrency(t *testing.T) {
	f := newFixture(t, Config{RealPrices: true})
	assert.Equal(t, 1.0, f.svc.Rate(context.Background(), "USD", "usd"))
	assert.Zero(t, f.rates.calls)
}

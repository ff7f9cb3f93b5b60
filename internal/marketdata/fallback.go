package marketdata

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/openfolio/marketd/internal/domain"
)

// phpDemoRate scales synthetic prices for PHP-denominated demo portfolios so
// the numbers look plausible without a live FX lookup.
const phpDemoRate = 58

// priceRange bounds a synthetic price: base + [0, spread).
type priceRange struct {
	base   float64
	spread float64
}

// baseRanges holds per-symbol synthetic ranges for well-known tickers; a
// symbol not listed here falls back to defaultRange.
var baseRanges = map[string]priceRange{
	// Stocks
	"NVDA":  {500, 50},
	"AAPL":  {180, 20},
	"MSFT":  {380, 30},
	"TSLA":  {250, 25},
	"GOOGL": {140, 15},

	// ETFs
	"VOO": {430, 20},
	"SPY": {470, 25},
	"QQQ": {390, 20},
	"VTI": {240, 15},

	// Crypto
	"BTC": {45000, 5000},
	"ETH": {2500, 500},
	"SOL": {110, 20},
}

var defaultRange = priceRange{100, 50}

// Generator produces synthetic prices for the credential-less fallback mode.
// It is safe for concurrent use. Pass a non-zero seed to make the output
// deterministic for tests; a zero seed uses the current time.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a Generator seeded with seed (or the clock if zero).
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

// Price returns a synthetic quote for symbol within its configured range,
// currency-scaled for the PHP demo case.
func (g *Generator) Price(symbol string, assetType domain.AssetType, currency string) domain.MarketPrice {
	symbol = domain.NormalizeSymbol(symbol)
	currency = domain.NormalizeCurrency(currency)

	r, ok := baseRanges[symbol]
	if !ok {
		r = defaultRange
	}

	g.mu.Lock()
	price := r.base + g.rng.Float64()*r.spread
	change := g.rng.Float64()*10 - 5
	changePct := g.rng.Float64()*5 - 2.5
	g.mu.Unlock()

	if currency == "PHP" {
		price *= phpDemoRate
	}

	return domain.MarketPrice{
		Symbol:        symbol,
		Price:         round2(price),
		Change:        round2(change),
		ChangePercent: round2(changePct),
		AsOf:          g.now().UTC(),
		Source:        domain.SourceFallback,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

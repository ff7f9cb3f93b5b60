package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openfolio/marketd/internal/domain"
)

func TestGeneratorIsDeterministicForSeed(t *testing.T) {
	a := NewGenerator(42)
	b := NewGenerator(42)

	for i := 0; i < 10; i++ {
		pa := a.Price("AAPL", domain.AssetStock, "USD")
		pb := b.Price("AAPL", domain.AssetStock, "USD")
		assert.Equal(t, pa.Price, pb.Price)
		assert.Equal(t, pa.Change, pb.Change)
		assert.Equal(t, pa.ChangePercent, pb.ChangePercent)
	}
}

func TestGeneratorStaysWithinSymbolRange(t *testing.T) {
	g := NewGenerator(1)

	cases := []struct {
		symbol   string
		assetTyp domain.AssetType
		min, max float64
	}{
		{"NVDA", domain.AssetStock, 500, 550},
		{"AAPL", domain.AssetStock, 180, 200},
		{"VOO", domain.AssetETF, 430, 450},
		{"BTC", domain.AssetCrypto, 45000, 50000},
		{"UNKNOWN", domain.AssetStock, 100, 150},
	}

	for _, tc := range cases {
		for i := 0; i < 50; i++ {
			p := g.Price(tc.symbol, tc.assetTyp, "USD")
			assert.GreaterOrEqual(t, p.Price, tc.min, "%s below range", tc.symbol)
			assert.Less(t, p.Price, tc.max+0.01, "%s above range", tc.symbol)
			assert.GreaterOrEqual(t, p.Change, -5.01)
			assert.LessOrEqual(t, p.Change, 5.01)
			assert.GreaterOrEqual(t, p.ChangePercent, -2.51)
			assert.LessOrEqual(t, p.ChangePercent, 2.51)
			assert.Equal(t, domain.SourceFallback, p.Source)
		}
	}
}

func TestGeneratorAppliesPHPDemoScaling(t *testing.T) {
	g := NewGenerator(7)

	p := g.Price("AAPL", domain.AssetStock, "PHP")
	assert.GreaterOrEqual(t, p.Price, 180.0*58)
	assert.Less(t, p.Price, 200.0*58)
}

func TestGeneratorNormalizesSymbol(t *testing.T) {
	g := NewGenerator(3)
	p := g.Price(" btc ", domain.AssetCrypto, "usd")
	assert.Equal(t, "BTC", p.Symbol)
	assert.GreaterOrEqual(t, p.Price, 45000.0)
}

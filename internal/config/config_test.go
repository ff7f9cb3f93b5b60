package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestRealPricesRequiresUsableKey(t *testing.T) {
	cfg := Defaults()
	assert.False(t, cfg.RealPrices())

	cfg.Providers.AlphaVantageKey = placeholderAPIKey
	assert.False(t, cfg.RealPrices(), "example placeholder counts as no key")

	cfg.Providers.AlphaVantageKey = "ABC123"
	assert.True(t, cfg.RealPrices())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARKETD_ALPHA_VANTAGE_KEY", "FROMENV")
	t.Setenv("MARKETD_STOCK_TTL", "90s")
	t.Setenv("MARKETD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "FROMENV", cfg.Providers.AlphaVantageKey)
	assert.Equal(t, 90*time.Second, cfg.Market.StockTTL.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Market.RateLimitCalls = 0
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "rate_limit_calls")
	assert.Contains(t, err.Error(), "port")
}

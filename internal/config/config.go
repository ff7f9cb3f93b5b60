// Package config defines the top-level configuration for the market-data
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETD_* environment
// variables.
type Config struct {
	Providers ProvidersConfig `toml:"providers"`
	Market    MarketConfig    `toml:"market"`
	Redis     RedisConfig     `toml:"redis"`
	Server    ServerConfig    `toml:"server"`
	LogLevel  string          `toml:"log_level"`
}

// placeholderAPIKey is the value shipped in example config files. A key equal
// to it is treated the same as no key at all.
const placeholderAPIKey = "your_api_key_here"

// ProvidersConfig holds upstream market-data provider endpoints and
// credentials.
type ProvidersConfig struct {
	AlphaVantageKey string   `toml:"alpha_vantage_key"`
	AlphaVantageURL string   `toml:"alpha_vantage_url"`
	CoinGeckoURL    string   `toml:"coingecko_url"`
	ExchangeRateURL string   `toml:"exchangerate_url"`
	HTTPTimeout     duration `toml:"http_timeout"`
	MaxRetries      int      `toml:"max_retries"`
	RetryBackoff    duration `toml:"retry_backoff"`
}

// MarketConfig holds rate-limit, cache, and queue parameters for the
// acquisition core.
type MarketConfig struct {
	RateLimitCalls     int      `toml:"rate_limit_calls"`
	RateLimitWindow    duration `toml:"rate_limit_window"`
	CacheMaxEntries    int      `toml:"cache_max_entries"`
	CacheSweepInterval duration `toml:"cache_sweep_interval"`
	StockTTL           duration `toml:"stock_ttl"`
	CryptoTTL          duration `toml:"crypto_ttl"`
	RateTTL            duration `toml:"rate_ttl"`
	QueueBuffer        int      `toml:"queue_buffer"`
	FallbackSeed       int64    `toml:"fallback_seed"`
}

// RedisConfig holds Redis connection parameters. An empty addr disables the
// snapshot store and price bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// RealPrices reports whether live provider fetching is enabled. It is
// derived from the Alpha Vantage credential: no key, or the example
// placeholder, means the daemon serves synthetic prices.
func (c *Config) RealPrices() bool {
	key := strings.TrimSpace(c.Providers.AlphaVantageKey)
	return key != "" && key != placeholderAPIKey
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Providers: ProvidersConfig{
			AlphaVantageURL: "https://www.alphavantage.co",
			CoinGeckoURL:    "https://api.coingecko.com/api/v3",
			ExchangeRateURL: "https://api.exchangerate-api.com",
			HTTPTimeout:     duration{10 * time.Second},
			MaxRetries:      3,
			RetryBackoff:    duration{1 * time.Second},
		},
		Market: MarketConfig{
			RateLimitCalls:     5,
			RateLimitWindow:    duration{time.Minute},
			CacheMaxEntries:    1000,
			CacheSweepInterval: duration{time.Minute},
			StockTTL:           duration{5 * time.Minute},
			CryptoTTL:          duration{10 * time.Minute},
			RateTTL:            duration{24 * time.Hour},
			QueueBuffer:        256,
		},
		Redis: RedisConfig{
			Addr:       "",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Providers
	if c.Providers.AlphaVantageURL == "" {
		errs = append(errs, "providers: alpha_vantage_url must not be empty")
	}
	if c.Providers.CoinGeckoURL == "" {
		errs = append(errs, "providers: coingecko_url must not be empty")
	}
	if c.Providers.ExchangeRateURL == "" {
		errs = append(errs, "providers: exchangerate_url must not be empty")
	}
	if c.Providers.HTTPTimeout.Duration <= 0 {
		errs = append(errs, "providers: http_timeout must be > 0")
	}
	if c.Providers.MaxRetries < 0 {
		errs = append(errs, "providers: max_retries must be >= 0")
	}
	if c.Providers.RetryBackoff.Duration <= 0 {
		errs = append(errs, "providers: retry_backoff must be > 0")
	}

	// Market
	if c.Market.RateLimitCalls < 1 {
		errs = append(errs, "market: rate_limit_calls must be >= 1")
	}
	if c.Market.RateLimitWindow.Duration <= 0 {
		errs = append(errs, "market: rate_limit_window must be > 0")
	}
	if c.Market.CacheMaxEntries < 1 {
		errs = append(errs, "market: cache_max_entries must be >= 1")
	}
	if c.Market.CacheSweepInterval.Duration <= 0 {
		errs = append(errs, "market: cache_sweep_interval must be > 0")
	}
	if c.Market.StockTTL.Duration <= 0 || c.Market.CryptoTTL.Duration <= 0 || c.Market.RateTTL.Duration <= 0 {
		errs = append(errs, "market: stock_ttl, crypto_ttl, and rate_ttl must all be > 0")
	}
	if c.Market.QueueBuffer < 1 {
		errs = append(errs, "market: queue_buffer must be >= 1")
	}

	// Redis is optional, but when an addr is set the pool must be sane.
	if c.RedisEnabled() && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

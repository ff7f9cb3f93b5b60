package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETD_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the daemon then
// runs on defaults plus environment overrides. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Providers ──
	setStr(&cfg.Providers.AlphaVantageKey, "MARKETD_ALPHA_VANTAGE_KEY")
	setStr(&cfg.Providers.AlphaVantageKey, "ALPHA_VANTAGE_API_KEY") // compatibility alias
	setStr(&cfg.Providers.AlphaVantageURL, "MARKETD_ALPHA_VANTAGE_URL")
	setStr(&cfg.Providers.CoinGeckoURL, "MARKETD_COINGECKO_URL")
	setStr(&cfg.Providers.ExchangeRateURL, "MARKETD_EXCHANGERATE_URL")
	setDuration(&cfg.Providers.HTTPTimeout, "MARKETD_HTTP_TIMEOUT")
	setInt(&cfg.Providers.MaxRetries, "MARKETD_MAX_RETRIES")
	setDuration(&cfg.Providers.RetryBackoff, "MARKETD_RETRY_BACKOFF")

	// ── Market ──
	setInt(&cfg.Market.RateLimitCalls, "MARKETD_RATE_LIMIT_CALLS")
	setDuration(&cfg.Market.RateLimitWindow, "MARKETD_RATE_LIMIT_WINDOW")
	setInt(&cfg.Market.CacheMaxEntries, "MARKETD_CACHE_MAX_ENTRIES")
	setDuration(&cfg.Market.CacheSweepInterval, "MARKETD_CACHE_SWEEP_INTERVAL")
	setDuration(&cfg.Market.StockTTL, "MARKETD_STOCK_TTL")
	setDuration(&cfg.Market.CryptoTTL, "MARKETD_CRYPTO_TTL")
	setDuration(&cfg.Market.RateTTL, "MARKETD_RATE_TTL")
	setInt(&cfg.Market.QueueBuffer, "MARKETD_QUEUE_BUFFER")
	setInt64(&cfg.Market.FallbackSeed, "MARKETD_FALLBACK_SEED")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETD_REDIS_TLS_ENABLED")

	// ── Server ──
	setInt(&cfg.Server.Port, "MARKETD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MARKETD_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MARKETD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

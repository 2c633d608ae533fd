// Package config loads runtime configuration from environment variables
// with sensible defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig
	ChainIndex ChainIndexConfig
	Pricing    PricingConfig
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ChainIndexConfig configures the chain-indexer client.
type ChainIndexConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	BatchSize  int
}

// PricingConfig configures price resolution.
type PricingConfig struct {
	BaseURL       string
	CoinID        string
	FallbackRate  string
	CacheTTL      time.Duration
	TickerURL     string
	TickerProduct string
}

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	DSN      string
	MaxConns int
}

// ClickHouseConfig configures the ClickHouse archive store.
type ClickHouseConfig struct {
	DSN string
}

// RedisConfig configures the Redis price cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", ":8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		ChainIndex: ChainIndexConfig{
			BaseURL:    getEnv("CHAIN_INDEX_URL", "https://api.koios.rest/api/v1"),
			Timeout:    getDurationEnv("CHAIN_INDEX_TIMEOUT", 30*time.Second),
			MaxRetries: getIntEnv("CHAIN_INDEX_MAX_RETRIES", 3),
			RetryDelay: getDurationEnv("CHAIN_INDEX_RETRY_DELAY", 1*time.Second),
			BatchSize:  getIntEnv("CHAIN_INDEX_BATCH_SIZE", 50),
		},
		Pricing: PricingConfig{
			BaseURL:       getEnv("PRICE_API_URL", "https://api.coingecko.com/api/v3"),
			CoinID:        getEnv("PRICE_COIN_ID", "cardano"),
			FallbackRate:  getEnv("PRICE_FALLBACK_RATE", "0.25"),
			CacheTTL:      getDurationEnv("PRICE_CACHE_TTL", 24*time.Hour),
			TickerURL:     getEnv("PRICE_TICKER_URL", ""),
			TickerProduct: getEnv("PRICE_TICKER_PRODUCT", "ADA-USD"),
		},
		Postgres: PostgresConfig{
			DSN:      getEnv("POSTGRES_DSN", ""),
			MaxConns: getIntEnv("POSTGRES_MAX_CONNS", 8),
		},
		ClickHouse: ClickHouseConfig{
			DSN: getEnv("CLICKHOUSE_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

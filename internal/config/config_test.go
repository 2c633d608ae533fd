package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %s", cfg.Server.Addr)
	}
	if cfg.ChainIndex.BatchSize != 50 {
		t.Errorf("batch size = %d", cfg.ChainIndex.BatchSize)
	}
	if cfg.Pricing.FallbackRate != "0.25" {
		t.Errorf("fallback rate = %s", cfg.Pricing.FallbackRate)
	}
	if cfg.Postgres.DSN != "" {
		t.Errorf("postgres dsn = %s", cfg.Postgres.DSN)
	}
	if cfg.Postgres.MaxConns != 8 {
		t.Errorf("postgres max conns = %d", cfg.Postgres.MaxConns)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("CHAIN_INDEX_TIMEOUT", "5s")
	t.Setenv("CHAIN_INDEX_MAX_RETRIES", "7")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	if cfg.Server.Addr != ":9999" {
		t.Errorf("server addr = %s", cfg.Server.Addr)
	}
	if cfg.ChainIndex.Timeout != 5*time.Second {
		t.Errorf("timeout = %s", cfg.ChainIndex.Timeout)
	}
	if cfg.ChainIndex.MaxRetries != 7 {
		t.Errorf("max retries = %d", cfg.ChainIndex.MaxRetries)
	}
	// Malformed values fall back to the default.
	if cfg.Redis.DB != 0 {
		t.Errorf("redis db = %d", cfg.Redis.DB)
	}
}

// Package main runs the valuation HTTP API. Reports are computed on
// demand; computed records are persisted when PostgreSQL is configured,
// and price quotes are cached in Redis when it is available.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"treasury-valuation/internal/api"
	"treasury-valuation/internal/chainindex"
	"treasury-valuation/internal/config"
	"treasury-valuation/internal/pipeline"
	"treasury-valuation/internal/pricing"
	"treasury-valuation/internal/storage"
	"treasury-valuation/internal/storage/migrations"
	pgstore "treasury-valuation/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	addr := flag.String("addr", cfg.Server.Addr, "HTTP listen address")
	chainIndexURL := flag.String("chain-index-url", cfg.ChainIndex.BaseURL, "Chain indexer base URL")
	postgresDSN := flag.String("postgres-dsn", cfg.Postgres.DSN, "PostgreSQL connection string (empty to disable persistence)")
	redisAddr := flag.String("redis-addr", cfg.Redis.Addr, "Redis address for the price cache (empty to disable)")
	flag.Parse()
	cfg.Server.Addr = *addr
	cfg.ChainIndex.BaseURL = *chainIndexURL
	cfg.Postgres.DSN = *postgresDSN
	cfg.Redis.Addr = *redisAddr

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain := chainindex.NewHTTPClient(cfg.ChainIndex.BaseURL,
		chainindex.WithTimeout(cfg.ChainIndex.Timeout),
		chainindex.WithMaxRetries(cfg.ChainIndex.MaxRetries),
		chainindex.WithRetryDelay(cfg.ChainIndex.RetryDelay),
	)

	prices, closePrices, err := buildPriceResolver(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Build price resolver: %v", err)
	}
	defer closePrices()

	store, progress, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Build stores: %v", err)
	}
	defer closeStores()

	opts := []pipeline.RunnerOption{
		pipeline.WithBatchSize(cfg.ChainIndex.BatchSize),
	}
	if progress != nil {
		opts = append(opts, pipeline.WithProgressStore(progress))
	}
	runner := pipeline.NewRunner(chain, prices, logger, opts...)

	server := api.NewServer(runner, store, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Printf("Listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf("Received signal %v, shutting down...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Shutdown error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// buildPriceResolver assembles the source chain: historical by date, a
// live ticker feed when configured, current spot, and the constant of
// last resort. Redis, when configured, caches resolved quotes.
func buildPriceResolver(ctx context.Context, cfg *config.Config, logger *log.Logger) (pricing.QuoteResolver, func(), error) {
	fallback, err := decimal.NewFromString(cfg.Pricing.FallbackRate)
	if err != nil || fallback.Sign() <= 0 {
		fallback = pricing.DefaultFallbackRate
	}

	closers := []func(){}
	sources := []pricing.Source{
		pricing.NewHistoricalSource(cfg.Pricing.BaseURL, cfg.Pricing.CoinID, nil),
	}

	if cfg.Pricing.TickerURL != "" {
		ticker, err := pricing.NewTickerSource(ctx, cfg.Pricing.TickerURL, &pricing.TickerConfig{
			ProductID: cfg.Pricing.TickerProduct,
		}, logger)
		if err != nil {
			logger.Printf("Ticker feed unavailable, continuing without it: %v", err)
		} else {
			sources = append(sources, ticker)
			closers = append(closers, func() { ticker.Close() })
		}
	}

	sources = append(sources,
		pricing.NewSpotSource(cfg.Pricing.BaseURL, cfg.Pricing.CoinID, nil),
		pricing.NewConstantSource(fallback),
	)

	var resolver pricing.QuoteResolver = pricing.NewResolver(logger, sources...)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := pricing.Ping(ctx, rdb); err != nil {
			return nil, nil, err
		}
		resolver = pricing.NewCachedResolver(resolver, rdb, cfg.Pricing.CacheTTL)
		closers = append(closers, func() { rdb.Close() })
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return resolver, closeAll, nil
}

// buildStores connects PostgreSQL when configured. Without it the API
// still serves on-demand reports, just without persistence.
func buildStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (storage.ValuationRecordStore, storage.AddressProgressStore, func(), error) {
	if cfg.Postgres.DSN == "" {
		logger.Println("POSTGRES_DSN not set, running without persistence")
		return nil, nil, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, pgstore.WithMaxConns(int32(cfg.Postgres.MaxConns)))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	return pgstore.NewValuationRecordStore(pool), pgstore.NewAddressProgressStore(pool), pool.Close, nil
}

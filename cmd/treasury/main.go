// Package main runs the full treasury valuation: every stake address in
// the bucket file is processed and the records go to a CSV report and,
// when configured, to PostgreSQL and the ClickHouse archive.
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

	"github.com/shopspring/decimal"

	"treasury-valuation/internal/address"
	"treasury-valuation/internal/bucket"
	"treasury-valuation/internal/chainindex"
	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/observability"
	"treasury-valuation/internal/pipeline"
	"treasury-valuation/internal/pricing"
	"treasury-valuation/internal/reporting"
	"treasury-valuation/internal/storage"
	chstore "treasury-valuation/internal/storage/clickhouse"
	"treasury-valuation/internal/storage/memory"
	"treasury-valuation/internal/storage/migrations"
	pgstore "treasury-valuation/internal/storage/postgres"
)

func main() {
	bucketFile := flag.String("bucket-file", "", "CSV bucket file (bucket,label,controller,stake_address)")
	cutoffDate := flag.String("cutoff-date", "", "Ignore transactions before this date (YYYY-MM-DD)")
	output := flag.String("output", "treasury_report.csv", "Output CSV path")
	chainIndexURL := flag.String("chain-index-url", "https://api.koios.rest/api/v1", "Chain indexer base URL")
	priceAPIURL := flag.String("price-api-url", "https://api.coingecko.com/api/v3", "Price API base URL")
	fallbackRate := flag.String("fallback-rate", "0.25", "ADA/USD rate of last resort")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	incremental := flag.Bool("incremental", false, "Only fetch transactions above each address's stored high-water mark")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	logger := log.New(os.Stdout, "[treasury] ", log.LstdFlags)

	if *bucketFile == "" {
		logger.Fatal("--bucket-file is required")
	}
	cutoff, err := address.ParseDate(*cutoffDate)
	if err != nil {
		logger.Fatalf("--cutoff-date: %v", err)
	}
	fallback, err := decimal.NewFromString(*fallbackRate)
	if err != nil || fallback.Sign() <= 0 {
		logger.Fatalf("--fallback-rate: invalid rate %q", *fallbackRate)
	}
	if *incremental && *useMemory {
		logger.Fatal("--incremental needs persistent storage; drop --use-memory or the flag")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for a CSV-only run)")
	}

	entries, err := bucket.LoadFile(*bucketFile)
	if err != nil {
		logger.Fatalf("Load bucket file: %v", err)
	}
	logger.Printf("Loaded %d stake addresses from %s", len(entries), *bucketFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	recordStore, progressStore, archive, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Create stores: %v", err)
	}
	defer cleanup()

	chain := chainindex.NewHTTPClient(*chainIndexURL)
	prices := pricing.NewDefaultResolver(*priceAPIURL, pricing.DefaultCoinID, fallback, nil, logger)

	var opts []pipeline.RunnerOption
	if *incremental {
		opts = append(opts, pipeline.WithProgressStore(progressStore))
	}
	runner := pipeline.NewRunner(chain, prices, logger, opts...)

	start := time.Now()
	results, err := runner.RunAll(ctx, bucket.Queries(entries, cutoff))
	if err != nil {
		close(done)
		logger.Fatalf("Run failed: %v", err)
	}

	var records []domain.ValuationRecord
	for _, res := range results {
		records = append(records, res.Records...)
	}
	logger.Printf("Computed %d records across %d addresses in %v",
		len(records), len(results), time.Since(start))

	sinks := []reporting.Sink{
		reporting.NewCSVFileSink(*output, reporting.LayoutBucketed),
		reporting.NewStoreSink(recordStore),
	}
	if archive != nil {
		sinks = append(sinks, archive)
	}
	for _, sink := range sinks {
		if err := sink.Emit(ctx, records); err != nil {
			close(done)
			logger.Fatalf("Emit records: %v", err)
		}
	}

	logger.Printf("Report written to %s", *output)
	close(done)
}

// createStores wires the storage backends. With --use-memory everything
// stays in process; otherwise PostgreSQL holds records and progress, and
// ClickHouse (optional) archives records for analytics.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (
	storage.ValuationRecordStore,
	storage.AddressProgressStore,
	*chstore.ArchiveStore,
	func(),
	error,
) {
	if useMemory {
		return memory.NewValuationRecordStore(), memory.NewAddressProgressStore(), nil, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}

	recordStore := pgstore.NewValuationRecordStore(pool)
	progressStore := pgstore.NewAddressProgressStore(pool)

	if clickhouseDSN == "" {
		return recordStore, progressStore, nil, pool.Close, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return recordStore, progressStore, chstore.NewArchiveStore(conn), cleanup, nil
}

// serveMetrics exposes Prometheus metrics and a liveness endpoint.
func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	logger.Printf("Starting metrics server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("Metrics server error: %v", err)
	}
}

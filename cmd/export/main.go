// Package main exports the transaction history of one stake address as
// CSV: resolve payment addresses, fetch and join transaction data, value
// everything in ADA and USD.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"treasury-valuation/internal/address"
	"treasury-valuation/internal/chainindex"
	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/pipeline"
	"treasury-valuation/internal/pricing"
	"treasury-valuation/internal/reporting"
)

func main() {
	stakeAddr := flag.String("stake-address", "", "Stake address to export (stake1...)")
	cutoffDate := flag.String("cutoff-date", "", "Ignore transactions before this date (YYYY-MM-DD)")
	output := flag.String("output", "", "Output CSV path (default stdout)")
	chainIndexURL := flag.String("chain-index-url", "https://api.koios.rest/api/v1", "Chain indexer base URL")
	priceAPIURL := flag.String("price-api-url", "https://api.coingecko.com/api/v3", "Price API base URL")
	fallbackRate := flag.String("fallback-rate", "0.25", "ADA/USD rate of last resort")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall run timeout")
	flag.Parse()

	logger := log.New(os.Stderr, "[export] ", log.LstdFlags)

	// Validate before any network call.
	if err := address.ValidateStakeAddress(*stakeAddr); err != nil {
		logger.Fatalf("--stake-address: %v", err)
	}
	cutoff, err := address.ParseDate(*cutoffDate)
	if err != nil {
		logger.Fatalf("--cutoff-date: %v", err)
	}
	fallback, err := decimal.NewFromString(*fallbackRate)
	if err != nil || fallback.Sign() <= 0 {
		logger.Fatalf("--fallback-rate: invalid rate %q", *fallbackRate)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling...", sig)
		cancel()
	}()

	chain := chainindex.NewHTTPClient(*chainIndexURL)
	prices := pricing.NewDefaultResolver(*priceAPIURL, pricing.DefaultCoinID, fallback, nil, logger)
	runner := pipeline.NewRunner(chain, prices, logger)

	query := domain.StakeQuery{StakeAddress: *stakeAddr, CutoffDate: cutoff}
	result, err := runner.Run(ctx, query)
	if err != nil {
		logger.Fatalf("Run failed: %v", err)
	}

	logger.Printf("Computed %d records (%d payment addresses, rate %s via %s)",
		len(result.Records), len(result.PaymentAddresses),
		result.Quote.USDPerADA, result.Quote.Source)

	csv := reporting.RenderSimpleCSV(result.Records)
	if *output == "" {
		fmt.Print(csv)
		return
	}
	if err := os.WriteFile(*output, []byte(csv), 0o644); err != nil {
		logger.Fatalf("Write %s: %v", *output, err)
	}
	logger.Printf("Wrote %s", *output)
}

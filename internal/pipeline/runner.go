// Package pipeline orchestrates a valuation run: resolve payment
// addresses, list transactions, batch-fetch details, join, value, and
// hand the records to the caller.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"treasury-valuation/internal/address"
	"treasury-valuation/internal/chainindex"
	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/observability"
	"treasury-valuation/internal/pricing"
	"treasury-valuation/internal/storage"
	"treasury-valuation/internal/valuation"
)

// ErrNoPaymentAddresses is returned when the chain indexer knows no
// payment address for the queried stake address.
var ErrNoPaymentAddresses = errors.New("no payment addresses for stake address")

// Result is the outcome of one stake-address run.
type Result struct {
	Query            domain.StakeQuery
	PaymentAddresses []string
	Quote            domain.PriceQuote
	Records          []domain.ValuationRecord

	// MaxBlockHeight is the highest block height observed across the
	// address's transactions, zero when there were none.
	MaxBlockHeight int64
}

// Runner executes valuation runs against a chain indexer and a price
// resolver. It is safe for sequential reuse across queries.
type Runner struct {
	chain     chainindex.Client
	prices    pricing.QuoteResolver
	engine    *valuation.Engine
	progress  storage.AddressProgressStore
	logger    *log.Logger
	batchSize int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBatchSize overrides the per-request hash batch cap.
func WithBatchSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithProgressStore enables incremental runs: transaction listing starts
// above the stored high-water mark, which is advanced after each run.
func WithProgressStore(store storage.AddressProgressStore) RunnerOption {
	return func(r *Runner) {
		r.progress = store
	}
}

// WithEngine overrides the valuation engine.
func WithEngine(engine *valuation.Engine) RunnerOption {
	return func(r *Runner) {
		r.engine = engine
	}
}

// NewRunner creates a pipeline runner.
func NewRunner(chain chainindex.Client, prices pricing.QuoteResolver, logger *log.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	r := &Runner{
		chain:     chain,
		prices:    prices,
		engine:    valuation.NewEngine(valuation.Config{}),
		logger:    logger,
		batchSize: chainindex.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the pipeline for one stake query. Input validation happens
// before any network call. A stake address with no payment addresses
// returns ErrNoPaymentAddresses without further requests. Batches that
// fail to fetch are logged and dropped; the rest of the run proceeds.
func (r *Runner) Run(ctx context.Context, query domain.StakeQuery) (*Result, error) {
	start := time.Now()
	defer func() {
		observability.RecordRunDuration(time.Since(start).Seconds())
	}()

	if err := address.ValidateStakeAddress(query.StakeAddress); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if query.CutoffDate.IsZero() {
		return nil, fmt.Errorf("%w: cutoff date is required", storage.ErrInvalidInput)
	}

	addrsByStake, err := r.chain.AddressesForStake(ctx, []string{query.StakeAddress})
	if err != nil {
		return nil, fmt.Errorf("resolve payment addresses: %w", err)
	}
	paymentAddrs := r.filterPaymentAddresses(query.StakeAddress, addrsByStake[query.StakeAddress])
	if len(paymentAddrs) == 0 {
		observability.RecordAddressProcessed("no_addresses")
		return nil, fmt.Errorf("%w: %s", ErrNoPaymentAddresses, query.StakeAddress)
	}

	afterHeight := r.lastHeight(ctx, query.StakeAddress)

	addressTxs, err := r.chain.TxHashesForAddresses(ctx, paymentAddrs, afterHeight)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	hashes, maxHeight := dedupeHashes(addressTxs)

	quote, err := r.prices.Resolve(ctx, query.CutoffDate)
	if err != nil {
		return nil, fmt.Errorf("resolve price: %w", err)
	}

	summaries := make(map[string]*domain.TxSummary)
	utxoSets := make(map[string]*domain.UtxoSet)
	metadata := make(map[string]json.RawMessage)

	for _, batch := range chainindex.Batches(hashes, r.batchSize) {
		if err := r.fetchBatch(ctx, batch, summaries, utxoSets, metadata); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Printf("dropping batch of %d txs for %s: %v", len(batch), query.StakeAddress, err)
			continue
		}
		observability.RecordBatchFetched()
	}

	// Attribute a payment address only when it is unambiguous.
	paymentAddr := ""
	if len(paymentAddrs) == 1 {
		paymentAddr = paymentAddrs[0]
	}

	records := r.engine.ComputeRecords(query, hashes, summaries, utxoSets, metadata, quote, paymentAddr)

	if r.progress != nil && maxHeight > 0 {
		if err := r.progress.SetLastBlockHeight(ctx, query.StakeAddress, maxHeight); err != nil {
			r.logger.Printf("record progress for %s: %v", query.StakeAddress, err)
		}
	}

	observability.RecordAddressProcessed("ok")
	return &Result{
		Query:            query,
		PaymentAddresses: paymentAddrs,
		Quote:            quote,
		Records:          records,
		MaxBlockHeight:   maxHeight,
	}, nil
}

// RunAll executes every query, isolating failures: a query that errors is
// logged and skipped, the rest still run. The returned error is non-nil
// only when every query failed.
func (r *Runner) RunAll(ctx context.Context, queries []domain.StakeQuery) ([]*Result, error) {
	var results []*Result
	var lastErr error
	for _, q := range queries {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := r.Run(ctx, q)
		if err != nil {
			observability.RecordAddressProcessed("error")
			r.logger.Printf("query %s failed: %v", q.StakeAddress, err)
			lastErr = err
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d queries failed: %w", len(queries), lastErr)
	}
	return results, nil
}

// fetchBatch pulls details, UTXO sets, and metadata for one hash batch in
// parallel and merges them into the join maps. Metadata failures are not
// fatal; detail or UTXO failures fail the batch.
func (r *Runner) fetchBatch(
	ctx context.Context,
	batch []string,
	summaries map[string]*domain.TxSummary,
	utxoSets map[string]*domain.UtxoSet,
	metadata map[string]json.RawMessage,
) error {
	var (
		wg      sync.WaitGroup
		infos   []chainindex.TxInfoRecord
		utxos   []chainindex.UtxoRecord
		meta    []chainindex.MetadataRecord
		infoErr error
		utxoErr error
		metaErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		infos, infoErr = r.chain.TxInfo(ctx, batch)
	}()
	go func() {
		defer wg.Done()
		utxos, utxoErr = r.chain.TxUTXOs(ctx, batch)
	}()
	go func() {
		defer wg.Done()
		meta, metaErr = r.chain.TxMetadata(ctx, batch)
	}()
	wg.Wait()

	if infoErr != nil {
		return fmt.Errorf("tx_info: %w", infoErr)
	}
	if utxoErr != nil {
		return fmt.Errorf("tx_utxos: %w", utxoErr)
	}
	if metaErr != nil {
		r.logger.Printf("tx_metadata for batch of %d: %v", len(batch), metaErr)
	}

	for _, info := range infos {
		summaries[info.TxHash] = &domain.TxSummary{
			TxHash:              info.TxHash,
			BlockHeight:         info.BlockHeight,
			TimestampUnix:       info.TxTimestamp,
			TotalOutputLovelace: info.TotalOutputLovelace,
			FeeLovelace:         info.FeeLovelace,
		}
	}
	for _, rec := range utxos {
		set := &domain.UtxoSet{TxHash: rec.TxHash}
		for _, in := range rec.Inputs {
			set.Inputs = append(set.Inputs, domain.TxInput{
				StakeAddr:   in.StakeAddr,
				PaymentAddr: in.PaymentAddr,
			})
		}
		for _, out := range rec.Outputs {
			set.Outputs = append(set.Outputs, domain.TxOutput{
				StakeAddr:     out.StakeAddr,
				PaymentAddr:   out.PaymentAddr,
				ValueLovelace: out.ValueLovelace,
			})
		}
		utxoSets[rec.TxHash] = set
	}
	if metaErr == nil {
		for _, m := range meta {
			if len(m.Metadata) > 0 && string(m.Metadata) != "null" {
				metadata[m.TxHash] = m.Metadata
			}
		}
	}
	return nil
}

// filterPaymentAddresses keeps the Shelley bech32 and legacy Byron
// base58 addresses the indexer resolved; anything else is logged and
// skipped rather than queried for transactions.
func (r *Runner) filterPaymentAddresses(stakeAddress string, addrs []string) []string {
	valid := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if err := address.ValidatePaymentAddress(a); err != nil {
			r.logger.Printf("skipping address for %s: %v", stakeAddress, err)
			continue
		}
		valid = append(valid, a)
	}
	return valid
}

// lastHeight reads the incremental high-water mark, zero when tracking is
// disabled or the address is new.
func (r *Runner) lastHeight(ctx context.Context, stakeAddress string) int64 {
	if r.progress == nil {
		return 0
	}
	height, err := r.progress.LastBlockHeight(ctx, stakeAddress)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Printf("read progress for %s: %v", stakeAddress, err)
		}
		return 0
	}
	return height
}

// dedupeHashes collapses the listing to unique hashes in first-seen order
// and reports the highest block height.
func dedupeHashes(txs []chainindex.AddressTx) ([]string, int64) {
	seen := make(map[string]struct{}, len(txs))
	var hashes []string
	var maxHeight int64
	for _, tx := range txs {
		if _, ok := seen[tx.TxHash]; ok {
			continue
		}
		seen[tx.TxHash] = struct{}{}
		hashes = append(hashes, tx.TxHash)
		if tx.BlockHeight > maxHeight {
			maxHeight = tx.BlockHeight
		}
	}
	return hashes, maxHeight
}

// Package valuation turns fetched transaction data into normalized
// valuation records. Everything here is pure computation over inputs
// already in memory; fetching lives in the pipeline.
package valuation

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"treasury-valuation/internal/address"
	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/observability"
)

// LovelacePerADA is the fixed conversion divisor.
const LovelacePerADA = 1_000_000

// DefaultTimeFormat is how block times are rendered in output rows.
const DefaultTimeFormat = "2006-01-02 15:04:05"

// AdaFromLovelace converts lovelace to ADA exactly: a scale shift by
// six digits, no rounding.
func AdaFromLovelace(lovelace int64) decimal.Decimal {
	return decimal.New(lovelace, -6)
}

// Config controls display formatting. Computation itself is exact and
// unaffected by these settings.
type Config struct {
	// Location is the timezone for formatted block times. Defaults to UTC
	// so identical inputs render identically everywhere.
	Location *time.Location
	// TimeFormat is the layout for formatted block times.
	TimeFormat string
}

// Engine computes valuation records for one query at a time.
type Engine struct {
	loc    *time.Location
	format string
}

// NewEngine creates an engine with defaults filled in.
func NewEngine(cfg Config) *Engine {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	format := cfg.TimeFormat
	if format == "" {
		format = DefaultTimeFormat
	}
	return &Engine{loc: loc, format: format}
}

// ComputeRecords derives one record per transaction hash that has both a
// summary and a UTXO set and whose block time is not before the query's
// cutoff. Hashes missing either join are dropped silently. paymentAddr
// is the pass-through payment address column (empty when attribution is
// ambiguous); metadata may be nil.
func (e *Engine) ComputeRecords(
	query domain.StakeQuery,
	txHashes []string,
	summaries map[string]*domain.TxSummary,
	utxoSets map[string]*domain.UtxoSet,
	metadata map[string]json.RawMessage,
	quote domain.PriceQuote,
	paymentAddr string,
) []domain.ValuationRecord {
	cutoff := address.CutoffUnix(query.CutoffDate)

	var records []domain.ValuationRecord
	for _, hash := range txHashes {
		summary, ok := summaries[hash]
		if !ok {
			observability.RecordDroppedNoJoin()
			continue
		}
		utxos, ok := utxoSets[hash]
		if !ok {
			observability.RecordDroppedNoJoin()
			continue
		}

		if summary.TimestampUnix < cutoff {
			observability.RecordSkippedCutoff()
			continue
		}

		inputStakes := utxos.InputStakeSet()
		txType := Classify(inputStakes, query.StakeAddress)

		amountADA := AdaFromLovelace(summary.TotalOutputLovelace)
		feeADA := AdaFromLovelace(summary.FeeLovelace)
		outputADA := AdaFromLovelace(transferredLovelace(utxos, inputStakes))
		amountUSD := outputADA.Mul(quote.USDPerADA)

		totalOutputADA := outputADA
		if txType == domain.TxTypeOut {
			// The sender paid the fee; the receiver did not.
			totalOutputADA = outputADA.Add(feeADA)
		}

		records = append(records, domain.ValuationRecord{
			Bucket:         query.Bucket,
			Label:          query.Label,
			Controller:     query.Controller,
			StakeAddress:   query.StakeAddress,
			PaymentAddress: paymentAddr,
			TxHash:         hash,
			TxTime:         time.Unix(summary.TimestampUnix, 0).In(e.loc).Format(e.format),
			BlockHeight:    summary.BlockHeight,
			AmountADA:      amountADA,
			FeeADA:         feeADA,
			TxType:         txType,
			OutputADA:      outputADA,
			AmountUSD:      amountUSD,
			ADAUSDRate:     quote.USDPerADA,
			TotalOutputADA: totalOutputADA,
			Metadata:       metadata[hash],
		})
	}

	observability.RecordComputed(len(records))
	return records
}

// Classify returns "out" when the queried stake address funded the
// transaction (appears among the input stake addresses), "in" otherwise.
func Classify(inputStakes map[string]struct{}, stakeAddress string) string {
	if _, ok := inputStakes[stakeAddress]; ok {
		return domain.TxTypeOut
	}
	return domain.TxTypeIn
}

// transferredLovelace sums outputs whose stake address is not among the
// input stake addresses: value that actually changed hands. Change
// returning to a funding stake key is excluded; outputs without a stake
// part always count.
func transferredLovelace(utxos *domain.UtxoSet, inputStakes map[string]struct{}) int64 {
	var total int64
	for _, out := range utxos.Outputs {
		if out.StakeAddr != "" {
			if _, ok := inputStakes[out.StakeAddr]; ok {
				continue
			}
		}
		total += out.ValueLovelace
	}
	return total
}

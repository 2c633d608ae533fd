// Package reporting renders valuation records as CSV and fans them out
// to sinks.
package reporting

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"treasury-valuation/internal/domain"
)

// SimpleHeader is the column set of the single-address export.
var SimpleHeader = []string{
	"stake_address", "payment_address", "transaction_hash", "transaction_time",
	"transaction_block_height", "amount_ada", "amount_usd", "fee_ada",
}

// BucketedHeader is the column set of the full treasury report.
var BucketedHeader = []string{
	"bucket", "label", "controller", "stake_address", "tx_hash", "tx_time",
	"block_height", "amount_ada", "fee_ada", "tx_type", "output_ada",
	"amount_usd", "ada_usd_rate", "total_output_ada", "metadata",
}

// ada renders an ADA amount with full lovelace precision.
func ada(d decimal.Decimal) string {
	return d.StringFixed(6)
}

// RenderSimpleCSV renders the single-address export. Record order is
// preserved.
func RenderSimpleCSV(records []domain.ValuationRecord) string {
	var b strings.Builder
	b.WriteString(strings.Join(SimpleHeader, ","))
	b.WriteByte('\n')
	for _, r := range records {
		b.WriteString(r.StakeAddress)
		b.WriteByte(',')
		b.WriteString(r.PaymentAddress)
		b.WriteByte(',')
		b.WriteString(r.TxHash)
		b.WriteByte(',')
		b.WriteString(r.TxTime)
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(r.BlockHeight, 10))
		b.WriteByte(',')
		b.WriteString(ada(r.AmountADA))
		b.WriteByte(',')
		b.WriteString(ada(r.AmountUSD))
		b.WriteByte(',')
		b.WriteString(ada(r.FeeADA))
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderBucketedCSV renders the full treasury report. The metadata column
// holds raw JSON, so rows go through a CSV writer for proper quoting.
func RenderBucketedCSV(records []domain.ValuationRecord) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)

	if err := w.Write(BucketedHeader); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Bucket,
			r.Label,
			r.Controller,
			r.StakeAddress,
			r.TxHash,
			r.TxTime,
			strconv.FormatInt(r.BlockHeight, 10),
			ada(r.AmountADA),
			ada(r.FeeADA),
			r.TxType,
			ada(r.OutputADA),
			ada(r.AmountUSD),
			r.ADAUSDRate.String(),
			ada(r.TotalOutputADA),
			string(r.Metadata),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write row %s: %w", r.TxHash, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush: %w", err)
	}
	return b.String(), nil
}

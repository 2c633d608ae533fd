package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/observability"
)

// BucketTotal is an aggregate over the archive: summed amounts per
// bucket and transaction direction.
type BucketTotal struct {
	Bucket      string
	TxType      string
	RecordCount uint64
	TotalADA    decimal.Decimal
	TotalUSD    decimal.Decimal
}

// ArchiveStore writes valuation records into the ClickHouse archive and
// serves analytical queries over it. The table is a ReplacingMergeTree,
// so re-inserting a record on an incremental re-run is harmless.
type ArchiveStore struct {
	conn *Conn
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(conn *Conn) *ArchiveStore {
	return &ArchiveStore{conn: conn}
}

// InsertRecords appends records to the archive in one batch.
func (s *ArchiveStore) InsertRecords(ctx context.Context, records []domain.ValuationRecord) error {
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	err := s.insertRecords(ctx, records)
	observability.RecordDBQuery("clickhouse", "insert_records", time.Since(start).Seconds(), err)
	return err
}

func (s *ArchiveStore) insertRecords(ctx context.Context, records []domain.ValuationRecord) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO valuation_archive (
			bucket, label, controller, stake_address, payment_address,
			tx_hash, tx_time, block_height, amount_ada, fee_ada, tx_type,
			output_ada, amount_usd, ada_usd_rate, total_output_ada, metadata
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.Bucket, r.Label, r.Controller, r.StakeAddress, r.PaymentAddress,
			r.TxHash, r.TxTime, uint64(r.BlockHeight), r.AmountADA, r.FeeADA,
			r.TxType, r.OutputADA, r.AmountUSD, r.ADAUSDRate, r.TotalOutputADA,
			string(r.Metadata),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Emit lets the archive act as a pipeline sink.
func (s *ArchiveStore) Emit(ctx context.Context, records []domain.ValuationRecord) error {
	return s.InsertRecords(ctx, records)
}

// RecordsByStake retrieves archived records for a stake address, ordered
// by block height ascending. FINAL collapses replaced rows.
func (s *ArchiveStore) RecordsByStake(ctx context.Context, stakeAddress string) ([]domain.ValuationRecord, error) {
	query := `
		SELECT bucket, label, controller, stake_address, payment_address,
		       tx_hash, tx_time, block_height, amount_ada, fee_ada, tx_type,
		       output_ada, amount_usd, ada_usd_rate, total_output_ada, metadata
		FROM valuation_archive FINAL
		WHERE stake_address = ?
		ORDER BY block_height ASC, tx_hash ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, stakeAddress)
	observability.RecordDBQuery("clickhouse", "records_by_stake", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query by stake address: %w", err)
	}
	defer rows.Close()

	return scanArchiveRecords(rows)
}

// BucketTotals aggregates the archive per bucket and direction.
func (s *ArchiveStore) BucketTotals(ctx context.Context) ([]BucketTotal, error) {
	query := `
		SELECT bucket, tx_type, count(), sum(output_ada), sum(amount_usd)
		FROM valuation_archive FINAL
		GROUP BY bucket, tx_type
		ORDER BY bucket ASC, tx_type ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query)
	observability.RecordDBQuery("clickhouse", "bucket_totals", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query bucket totals: %w", err)
	}
	defer rows.Close()

	var totals []BucketTotal
	for rows.Next() {
		var t BucketTotal
		if err := rows.Scan(&t.Bucket, &t.TxType, &t.RecordCount, &t.TotalADA, &t.TotalUSD); err != nil {
			return nil, fmt.Errorf("scan bucket total row: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket total rows: %w", err)
	}
	return totals, nil
}

// scanArchiveRecords scans multiple rows into a slice of ValuationRecord.
func scanArchiveRecords(rows driver.Rows) ([]domain.ValuationRecord, error) {
	var records []domain.ValuationRecord

	for rows.Next() {
		var r domain.ValuationRecord
		var blockHeight uint64
		var metadata string

		err := rows.Scan(
			&r.Bucket, &r.Label, &r.Controller, &r.StakeAddress, &r.PaymentAddress,
			&r.TxHash, &r.TxTime, &blockHeight, &r.AmountADA, &r.FeeADA, &r.TxType,
			&r.OutputADA, &r.AmountUSD, &r.ADAUSDRate, &r.TotalOutputADA, &metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}

		r.BlockHeight = int64(blockHeight)
		if metadata != "" {
			r.Metadata = json.RawMessage(metadata)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}

	return records, nil
}

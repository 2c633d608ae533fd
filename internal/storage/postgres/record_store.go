package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/observability"
	"treasury-valuation/internal/storage"
)

// ValuationRecordStore implements storage.ValuationRecordStore using PostgreSQL.
type ValuationRecordStore struct {
	pool *Pool
}

// NewValuationRecordStore creates a new ValuationRecordStore.
func NewValuationRecordStore(pool *Pool) *ValuationRecordStore {
	return &ValuationRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ValuationRecordStore = (*ValuationRecordStore)(nil)

const insertRecordSQL = `
	INSERT INTO valuation_records (
		bucket, label, controller, stake_address, payment_address,
		tx_hash, tx_time, block_height, amount_ada, fee_ada, tx_type,
		output_ada, amount_usd, ada_usd_rate, total_output_ada, metadata
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`

const selectRecordSQL = `
	SELECT bucket, label, controller, stake_address, payment_address,
	       tx_hash, tx_time, block_height, amount_ada, fee_ada, tx_type,
	       output_ada, amount_usd, ada_usd_rate, total_output_ada, metadata
	FROM valuation_records
`

// SaveRecords appends records atomically. Returns ErrDuplicateKey when a
// (stake_address, tx_hash) pair already exists; nothing from the batch is
// applied in that case.
func (s *ValuationRecordStore) SaveRecords(ctx context.Context, records []domain.ValuationRecord) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()
	err := s.saveRecords(ctx, records)
	observability.RecordDBQuery("postgres", "save_records", time.Since(start).Seconds(), err)
	return err
}

func (s *ValuationRecordStore) saveRecords(ctx context.Context, records []domain.ValuationRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if r.StakeAddress == "" || r.TxHash == "" {
			return fmt.Errorf("%w: stake address and tx hash are required", storage.ErrInvalidInput)
		}
		_, err := tx.Exec(ctx, insertRecordSQL,
			r.Bucket,
			r.Label,
			r.Controller,
			r.StakeAddress,
			r.PaymentAddress,
			r.TxHash,
			r.TxTime,
			r.BlockHeight,
			r.AmountADA,
			r.FeeADA,
			r.TxType,
			r.OutputADA,
			r.AmountUSD,
			r.ADAUSDRate,
			r.TotalOutputADA,
			metadataParam(r),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("%w: %s/%s", storage.ErrDuplicateKey, r.StakeAddress, r.TxHash)
			}
			return fmt.Errorf("insert record %s: %w", r.TxHash, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RecordsByStake retrieves all records for a stake address, ordered by
// block height ascending.
func (s *ValuationRecordStore) RecordsByStake(ctx context.Context, stakeAddress string) ([]domain.ValuationRecord, error) {
	start := time.Now()
	query := selectRecordSQL + `
	WHERE stake_address = $1
	ORDER BY block_height ASC, tx_hash ASC
`
	rows, err := s.pool.Query(ctx, query, stakeAddress)
	observability.RecordDBQuery("postgres", "records_by_stake", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query records by stake: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// AllRecords retrieves every record ordered by block height ascending.
func (s *ValuationRecordStore) AllRecords(ctx context.Context) ([]domain.ValuationRecord, error) {
	start := time.Now()
	query := selectRecordSQL + `
	ORDER BY block_height ASC, tx_hash ASC
`
	rows, err := s.pool.Query(ctx, query)
	observability.RecordDBQuery("postgres", "all_records", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query all records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Close is a no-op; the pool is owned by the caller.
func (s *ValuationRecordStore) Close() error { return nil }

// metadataParam maps empty metadata to SQL NULL.
func metadataParam(r domain.ValuationRecord) interface{} {
	if len(r.Metadata) == 0 {
		return nil
	}
	return []byte(r.Metadata)
}

// scanRecords scans multiple rows into a slice of ValuationRecord.
func scanRecords(rows pgx.Rows) ([]domain.ValuationRecord, error) {
	var records []domain.ValuationRecord

	for rows.Next() {
		var r domain.ValuationRecord
		var metadata []byte

		err := rows.Scan(
			&r.Bucket,
			&r.Label,
			&r.Controller,
			&r.StakeAddress,
			&r.PaymentAddress,
			&r.TxHash,
			&r.TxTime,
			&r.BlockHeight,
			&r.AmountADA,
			&r.FeeADA,
			&r.TxType,
			&r.OutputADA,
			&r.AmountUSD,
			&r.ADAUSDRate,
			&r.TotalOutputADA,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		if len(metadata) > 0 {
			r.Metadata = metadata
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}

	return records, nil
}

// Package storage defines the persistence interfaces consumed by the
// pipeline and the API, plus the errors every backend maps onto.
package storage

import (
	"context"

	"treasury-valuation/internal/domain"
)

// ValuationRecordStore persists computed valuation records.
type ValuationRecordStore interface {
	// SaveRecords appends a batch of records. A record that already
	// exists for its (stake_address, tx_hash) pair yields ErrDuplicateKey.
	SaveRecords(ctx context.Context, records []domain.ValuationRecord) error

	// RecordsByStake returns all records for one stake address, ordered
	// by block height ascending. An unknown stake address yields an
	// empty slice, not ErrNotFound.
	RecordsByStake(ctx context.Context, stakeAddress string) ([]domain.ValuationRecord, error)

	// AllRecords returns every stored record ordered by block height
	// ascending.
	AllRecords(ctx context.Context) ([]domain.ValuationRecord, error)

	// Close releases underlying resources.
	Close() error
}

// AddressProgressStore tracks the highest block height already processed
// per stake address, enabling incremental runs.
type AddressProgressStore interface {
	// LastBlockHeight returns the recorded high-water mark for the stake
	// address, or ErrNotFound when the address was never processed.
	LastBlockHeight(ctx context.Context, stakeAddress string) (int64, error)

	// SetLastBlockHeight records the high-water mark. Heights only move
	// forward; a lower height than the stored one is ignored.
	SetLastBlockHeight(ctx context.Context, stakeAddress string, height int64) error

	// Close releases underlying resources.
	Close() error
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"treasury-valuation/internal/observability"
	"treasury-valuation/internal/storage"
)

// AddressProgressStore implements storage.AddressProgressStore using PostgreSQL.
type AddressProgressStore struct {
	pool *Pool
}

// NewAddressProgressStore creates a new AddressProgressStore.
func NewAddressProgressStore(pool *Pool) *AddressProgressStore {
	return &AddressProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AddressProgressStore = (*AddressProgressStore)(nil)

// LastBlockHeight returns the high-water mark for a stake address, or
// ErrNotFound when the address was never processed.
func (s *AddressProgressStore) LastBlockHeight(ctx context.Context, stakeAddress string) (int64, error) {
	query := `
		SELECT last_block_height FROM address_progress
		WHERE stake_address = $1
	`

	start := time.Now()
	var height int64
	err := s.pool.QueryRow(ctx, query, stakeAddress).Scan(&height)
	observability.RecordDBQuery("postgres", "last_block_height", time.Since(start).Seconds(), err)
	if err != nil {
		if isNotFoundError(err) {
			return 0, fmt.Errorf("%w: %s", storage.ErrNotFound, stakeAddress)
		}
		return 0, fmt.Errorf("query last block height: %w", err)
	}
	return height, nil
}

// SetLastBlockHeight advances the high-water mark. A height below the
// stored one leaves the row unchanged.
func (s *AddressProgressStore) SetLastBlockHeight(ctx context.Context, stakeAddress string, height int64) error {
	if stakeAddress == "" {
		return fmt.Errorf("%w: stake address is required", storage.ErrInvalidInput)
	}
	if height < 0 {
		return fmt.Errorf("%w: negative block height %d", storage.ErrInvalidInput, height)
	}

	query := `
		INSERT INTO address_progress (stake_address, last_block_height)
		VALUES ($1, $2)
		ON CONFLICT (stake_address) DO UPDATE SET
			last_block_height = GREATEST(address_progress.last_block_height, EXCLUDED.last_block_height),
			updated_at = now()
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query, stakeAddress, height)
	observability.RecordDBQuery("postgres", "set_last_block_height", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("upsert last block height: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *AddressProgressStore) Close() error { return nil }

// Package memory provides in-memory storage backends, used in tests and
// for one-shot runs that only write CSV output.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/storage"
)

// ValuationRecordStore is a thread-safe in-memory record store.
type ValuationRecordStore struct {
	mu      sync.RWMutex
	records []domain.ValuationRecord
	keys    map[string]struct{}
}

var _ storage.ValuationRecordStore = (*ValuationRecordStore)(nil)

// NewValuationRecordStore creates an empty record store.
func NewValuationRecordStore() *ValuationRecordStore {
	return &ValuationRecordStore{keys: make(map[string]struct{})}
}

func recordKey(r domain.ValuationRecord) string {
	return r.StakeAddress + "/" + r.TxHash
}

// SaveRecords appends records. The store is append-only; re-inserting an
// existing (stake_address, tx_hash) pair fails with ErrDuplicateKey and
// nothing from the batch is applied.
func (s *ValuationRecordStore) SaveRecords(ctx context.Context, records []domain.ValuationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.StakeAddress == "" || r.TxHash == "" {
			return fmt.Errorf("%w: stake address and tx hash are required", storage.ErrInvalidInput)
		}
		if _, ok := s.keys[recordKey(r)]; ok {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, recordKey(r))
		}
	}
	for _, r := range records {
		s.keys[recordKey(r)] = struct{}{}
		s.records = append(s.records, r)
	}
	return nil
}

// RecordsByStake returns the records of one stake address ordered by
// block height ascending.
func (s *ValuationRecordStore) RecordsByStake(ctx context.Context, stakeAddress string) ([]domain.ValuationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ValuationRecord
	for _, r := range s.records {
		if r.StakeAddress == stakeAddress {
			out = append(out, r)
		}
	}
	sortByHeight(out)
	return out, nil
}

// AllRecords returns every record ordered by block height ascending.
func (s *ValuationRecordStore) AllRecords(ctx context.Context) ([]domain.ValuationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ValuationRecord, len(s.records))
	copy(out, s.records)
	sortByHeight(out)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *ValuationRecordStore) Close() error { return nil }

func sortByHeight(records []domain.ValuationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].BlockHeight < records[j].BlockHeight
	})
}

// AddressProgressStore is a thread-safe in-memory progress store.
type AddressProgressStore struct {
	mu      sync.RWMutex
	heights map[string]int64
}

var _ storage.AddressProgressStore = (*AddressProgressStore)(nil)

// NewAddressProgressStore creates an empty progress store.
func NewAddressProgressStore() *AddressProgressStore {
	return &AddressProgressStore{heights: make(map[string]int64)}
}

// LastBlockHeight returns the high-water mark for a stake address.
func (s *AddressProgressStore) LastBlockHeight(ctx context.Context, stakeAddress string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	height, ok := s.heights[stakeAddress]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrNotFound, stakeAddress)
	}
	return height, nil
}

// SetLastBlockHeight advances the high-water mark. Lower heights than the
// stored one are ignored.
func (s *AddressProgressStore) SetLastBlockHeight(ctx context.Context, stakeAddress string, height int64) error {
	if stakeAddress == "" {
		return fmt.Errorf("%w: stake address is required", storage.ErrInvalidInput)
	}
	if height < 0 {
		return fmt.Errorf("%w: negative block height %d", storage.ErrInvalidInput, height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if height > s.heights[stakeAddress] {
		s.heights[stakeAddress] = height
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *AddressProgressStore) Close() error { return nil }

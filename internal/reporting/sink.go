package reporting

import (
	"context"
	"errors"
	"fmt"
	"os"

	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/storage"
)

// Layout selects a CSV column set.
type Layout int

const (
	// LayoutSimple is the single-address export.
	LayoutSimple Layout = iota
	// LayoutBucketed is the full treasury report.
	LayoutBucketed
)

// Sink consumes a finished batch of valuation records.
type Sink interface {
	Emit(ctx context.Context, records []domain.ValuationRecord) error
}

// CSVFileSink writes records to a file, replacing any previous content.
type CSVFileSink struct {
	path   string
	layout Layout
}

var _ Sink = (*CSVFileSink)(nil)

// NewCSVFileSink creates a file sink.
func NewCSVFileSink(path string, layout Layout) *CSVFileSink {
	return &CSVFileSink{path: path, layout: layout}
}

// Emit renders and writes the file.
func (s *CSVFileSink) Emit(ctx context.Context, records []domain.ValuationRecord) error {
	var out string
	switch s.layout {
	case LayoutBucketed:
		rendered, err := RenderBucketedCSV(records)
		if err != nil {
			return err
		}
		out = rendered
	default:
		out = RenderSimpleCSV(records)
	}
	if err := os.WriteFile(s.path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// StoreSink appends records to a record store. Duplicate records are
// expected on incremental re-runs and are not an error.
type StoreSink struct {
	store storage.ValuationRecordStore
}

var _ Sink = (*StoreSink)(nil)

// NewStoreSink creates a store sink.
func NewStoreSink(store storage.ValuationRecordStore) *StoreSink {
	return &StoreSink{store: store}
}

// Emit saves the records one by one so a duplicate does not reject the
// rest of the batch.
func (s *StoreSink) Emit(ctx context.Context, records []domain.ValuationRecord) error {
	for _, r := range records {
		err := s.store.SaveRecords(ctx, []domain.ValuationRecord{r})
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("save record %s: %w", r.TxHash, err)
		}
	}
	return nil
}

package reporting

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/storage/memory"
)

func sampleRecord() domain.ValuationRecord {
	return domain.ValuationRecord{
		Bucket:         "treasury",
		Label:          "ops wallet",
		Controller:     "committee",
		StakeAddress:   "stake1u9ops",
		PaymentAddress: "addr1qxops",
		TxHash:         "aa11",
		TxTime:         "2023-11-14 20:13:20",
		BlockHeight:    9000000,
		AmountADA:      decimal.New(5000000, -6),
		FeeADA:         decimal.New(170000, -6),
		TxType:         domain.TxTypeOut,
		OutputADA:      decimal.New(4830000, -6),
		AmountUSD:      decimal.RequireFromString("1.2075"),
		ADAUSDRate:     decimal.RequireFromString("0.25"),
		TotalOutputADA: decimal.New(5000000, -6),
		Metadata:       json.RawMessage(`{"674":{"msg":["rent, november"]}}`),
	}
}

func TestRenderSimpleCSV(t *testing.T) {
	out := RenderSimpleCSV([]domain.ValuationRecord{sampleRecord()})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(SimpleHeader, ",") {
		t.Errorf("header = %s", lines[0])
	}
	want := "stake1u9ops,addr1qxops,aa11,2023-11-14 20:13:20,9000000,5.000000,1.207500,0.170000"
	if lines[1] != want {
		t.Errorf("row = %s\nwant %s", lines[1], want)
	}
}

func TestRenderSimpleCSV_Empty(t *testing.T) {
	out := RenderSimpleCSV(nil)
	if out != strings.Join(SimpleHeader, ",")+"\n" {
		t.Errorf("expected header only, got %q", out)
	}
}

func TestRenderBucketedCSV(t *testing.T) {
	out, err := RenderBucketedCSV([]domain.ValuationRecord{sampleRecord()})
	if err != nil {
		t.Fatalf("RenderBucketedCSV: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("re-parse rendered CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if len(rows[0]) != len(BucketedHeader) {
		t.Fatalf("header has %d columns, want %d", len(rows[0]), len(BucketedHeader))
	}

	row := rows[1]
	if row[0] != "treasury" || row[3] != "stake1u9ops" || row[9] != "out" {
		t.Errorf("unexpected row: %v", row)
	}
	if row[7] != "5.000000" || row[8] != "0.170000" || row[10] != "4.830000" {
		t.Errorf("unexpected amounts: %v", row[7:11])
	}
	if row[12] != "0.25" {
		t.Errorf("rate = %s", row[12])
	}
	// Metadata survives CSV quoting despite the embedded comma.
	if row[14] != `{"674":{"msg":["rent, november"]}}` {
		t.Errorf("metadata = %s", row[14])
	}
}

func TestCSVFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	sink := NewCSVFileSink(path, LayoutBucketed)

	if err := sink.Emit(context.Background(), []domain.ValuationRecord{sampleRecord()}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.HasPrefix(string(data), strings.Join(BucketedHeader, ",")) {
		t.Errorf("report does not start with the header: %q", string(data[:40]))
	}
}

func TestStoreSink_ToleratesDuplicates(t *testing.T) {
	store := memory.NewValuationRecordStore()
	sink := NewStoreSink(store)
	ctx := context.Background()

	records := []domain.ValuationRecord{sampleRecord()}
	if err := sink.Emit(ctx, records); err != nil {
		t.Fatalf("first Emit: %v", err)
	}
	// Incremental re-runs re-emit overlapping records.
	if err := sink.Emit(ctx, records); err != nil {
		t.Fatalf("second Emit: %v", err)
	}

	all, err := store.AllRecords(ctx)
	if err != nil {
		t.Fatalf("AllRecords: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 stored record, got %d", len(all))
	}
}

package clickhouse

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-valuation/internal/domain"
)

func archiveRecord(stake, hash string, height int64, txType string) domain.ValuationRecord {
	return domain.ValuationRecord{
		Bucket:         "treasury",
		Label:          "ops wallet",
		Controller:     "committee",
		StakeAddress:   stake,
		PaymentAddress: "addr1qxops",
		TxHash:         hash,
		TxTime:         "2023-11-14 20:13:20",
		BlockHeight:    height,
		AmountADA:      decimal.New(5000000, -6),
		FeeADA:         decimal.New(170000, -6),
		TxType:         txType,
		OutputADA:      decimal.New(4830000, -6),
		AmountUSD:      decimal.RequireFromString("1.2075"),
		ADAUSDRate:     decimal.RequireFromString("0.25"),
		TotalOutputADA: decimal.New(5000000, -6),
		Metadata:       json.RawMessage(`{"674":{"msg":["rent"]}}`),
	}
}

func TestArchiveStore_InsertAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewArchiveStore(conn)

	records := []domain.ValuationRecord{
		archiveRecord("stake1u9a", "cc33", 300, domain.TxTypeIn),
		archiveRecord("stake1u9a", "aa11", 100, domain.TxTypeOut),
		archiveRecord("stake1u9b", "bb22", 200, domain.TxTypeOut),
	}
	require.NoError(t, store.InsertRecords(ctx, records))

	got, err := store.RecordsByStake(ctx, "stake1u9a")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "aa11", got[0].TxHash)
	assert.Equal(t, "cc33", got[1].TxHash)
	assert.Equal(t, int64(100), got[0].BlockHeight)
	assert.True(t, got[0].OutputADA.Equal(decimal.RequireFromString("4.83")), "outputAda = %s", got[0].OutputADA)
	assert.JSONEq(t, `{"674":{"msg":["rent"]}}`, string(got[0].Metadata))
}

func TestArchiveStore_ReinsertCollapses(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewArchiveStore(conn)

	r := archiveRecord("stake1u9a", "aa11", 100, domain.TxTypeOut)
	require.NoError(t, store.InsertRecords(ctx, []domain.ValuationRecord{r}))
	// Incremental re-runs re-insert overlapping records.
	require.NoError(t, store.InsertRecords(ctx, []domain.ValuationRecord{r}))

	got, err := store.RecordsByStake(ctx, "stake1u9a")
	require.NoError(t, err)
	assert.Len(t, got, 1, "FINAL must collapse replaced rows")
}

func TestArchiveStore_BucketTotals(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewArchiveStore(conn)

	records := []domain.ValuationRecord{
		archiveRecord("stake1u9a", "aa11", 100, domain.TxTypeOut),
		archiveRecord("stake1u9a", "bb22", 200, domain.TxTypeOut),
		archiveRecord("stake1u9b", "cc33", 300, domain.TxTypeIn),
	}
	records[2].Bucket = "grants"
	require.NoError(t, store.InsertRecords(ctx, records))

	totals, err := store.BucketTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 2)

	// Ordered by bucket, then tx_type.
	assert.Equal(t, "grants", totals[0].Bucket)
	assert.Equal(t, domain.TxTypeIn, totals[0].TxType)
	assert.Equal(t, uint64(1), totals[0].RecordCount)

	assert.Equal(t, "treasury", totals[1].Bucket)
	assert.Equal(t, uint64(2), totals[1].RecordCount)
	assert.True(t, totals[1].TotalADA.Equal(decimal.RequireFromString("9.66")), "totalAda = %s", totals[1].TotalADA)
}

func TestArchiveStore_EmptyInsertIsNoop(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewArchiveStore(conn)
	require.NoError(t, store.InsertRecords(context.Background(), nil))
}

package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/storage"
)

func testRecord(stake, hash string, height int64) domain.ValuationRecord {
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
		TxType:         domain.TxTypeOut,
		OutputADA:      decimal.New(4830000, -6),
		AmountUSD:      decimal.RequireFromString("1.2075"),
		ADAUSDRate:     decimal.RequireFromString("0.25"),
		TotalOutputADA: decimal.New(5000000, -6),
		Metadata:       json.RawMessage(`{"674":{"msg":["rent"]}}`),
	}
}

func TestValuationRecordStore_SaveAndQuery(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewValuationRecordStore(pool)

	records := []domain.ValuationRecord{
		testRecord("stake1u9a", "cc33", 300),
		testRecord("stake1u9a", "aa11", 100),
		testRecord("stake1u9b", "bb22", 200),
	}
	require.NoError(t, store.SaveRecords(ctx, records))

	got, err := store.RecordsByStake(ctx, "stake1u9a")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by block height ascending.
	assert.Equal(t, "aa11", got[0].TxHash)
	assert.Equal(t, "cc33", got[1].TxHash)

	r := got[0]
	assert.Equal(t, "treasury", r.Bucket)
	assert.Equal(t, domain.TxTypeOut, r.TxType)
	assert.True(t, r.AmountADA.Equal(decimal.RequireFromString("5")), "amountAda = %s", r.AmountADA)
	assert.True(t, r.FeeADA.Equal(decimal.RequireFromString("0.17")), "feeAda = %s", r.FeeADA)
	assert.True(t, r.ADAUSDRate.Equal(decimal.RequireFromString("0.25")), "rate = %s", r.ADAUSDRate)
	assert.JSONEq(t, `{"674":{"msg":["rent"]}}`, string(r.Metadata))

	all, err := store.AllRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestValuationRecordStore_UnknownStakeIsEmpty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewValuationRecordStore(pool)
	got, err := store.RecordsByStake(context.Background(), "stake1u9unknown")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestValuationRecordStore_DuplicateKeyRollsBackBatch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewValuationRecordStore(pool)

	require.NoError(t, store.SaveRecords(ctx, []domain.ValuationRecord{
		testRecord("stake1u9a", "aa11", 100),
	}))

	err := store.SaveRecords(ctx, []domain.ValuationRecord{
		testRecord("stake1u9a", "bb22", 200),
		testRecord("stake1u9a", "aa11", 100),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err := store.AllRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed batch must not be partially applied")
}

func TestValuationRecordStore_NullMetadata(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewValuationRecordStore(pool)

	r := testRecord("stake1u9a", "aa11", 100)
	r.Metadata = nil
	require.NoError(t, store.SaveRecords(ctx, []domain.ValuationRecord{r}))

	got, err := store.RecordsByStake(ctx, "stake1u9a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Metadata)
}

func TestValuationRecordStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewValuationRecordStore(pool)
	r := testRecord("", "aa11", 100)
	err := store.SaveRecords(context.Background(), []domain.ValuationRecord{r})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-valuation/internal/storage"
)

func TestAddressProgressStore_SetAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAddressProgressStore(pool)

	require.NoError(t, store.SetLastBlockHeight(ctx, "stake1u9a", 9000000))

	height, err := store.LastBlockHeight(ctx, "stake1u9a")
	require.NoError(t, err)
	assert.Equal(t, int64(9000000), height)
}

func TestAddressProgressStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAddressProgressStore(pool)
	_, err := store.LastBlockHeight(context.Background(), "stake1u9never")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAddressProgressStore_OnlyMovesForward(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAddressProgressStore(pool)

	require.NoError(t, store.SetLastBlockHeight(ctx, "stake1u9a", 500))
	require.NoError(t, store.SetLastBlockHeight(ctx, "stake1u9a", 300))

	height, err := store.LastBlockHeight(ctx, "stake1u9a")
	require.NoError(t, err)
	assert.Equal(t, int64(500), height, "height must not move backwards")

	require.NoError(t, store.SetLastBlockHeight(ctx, "stake1u9a", 700))
	height, err = store.LastBlockHeight(ctx, "stake1u9a")
	require.NoError(t, err)
	assert.Equal(t, int64(700), height)
}

func TestAddressProgressStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAddressProgressStore(pool)

	assert.ErrorIs(t, store.SetLastBlockHeight(ctx, "", 100), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.SetLastBlockHeight(ctx, "stake1u9a", -1), storage.ErrInvalidInput)
}

func TestAddressProgressStore_IndependentAddresses(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAddressProgressStore(pool)

	require.NoError(t, store.SetLastBlockHeight(ctx, "stake1u9a", 100))
	require.NoError(t, store.SetLastBlockHeight(ctx, "stake1u9b", 200))

	a, err := store.LastBlockHeight(ctx, "stake1u9a")
	require.NoError(t, err)
	b, err := store.LastBlockHeight(ctx, "stake1u9b")
	require.NoError(t, err)

	assert.Equal(t, int64(100), a)
	assert.Equal(t, int64(200), b)
}

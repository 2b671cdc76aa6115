package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"solana-sniper/internal/storage"
	"solana-sniper/internal/storage/storagetest"
)

func TestPositionStore_Integration(t *testing.T) {
	pool := newTestPool(t)

	storagetest.RunPositionStore(t, func(t *testing.T) storage.PositionStore {
		_, err := pool.Exec(context.Background(), "TRUNCATE positions, fills")
		require.NoError(t, err)
		return NewPositionStore(pool)
	})
}

func TestPositionStore_OneActivePositionPerAsset(t *testing.T) {
	pool := newTestPool(t)

	store := NewPositionStore(pool)
	ctx := context.Background()

	first := storagetest.SamplePosition("p1", 1000)
	require.NoError(t, store.SaveTrade(ctx, first))

	second := storagetest.SamplePosition("p2", 2000)
	second.Address = first.Address
	err := store.SaveTrade(ctx, second)
	require.True(t, errors.Is(err, storage.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)

	first.Status = "CLOSED"
	first.RemainingFraction = 0
	require.NoError(t, store.SaveTrade(ctx, first))
	require.NoError(t, store.SaveTrade(ctx, second))
}

package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/storage"
)

func TestStore_SaveGetList(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory())

	w0 := &Wallet{Index: 0, Network: chain.NetworkSolana, Address: "sol-addr", Balance: decimal.NewFromFloat(2.0), IsActive: true}
	w1 := &Wallet{Index: 1, Network: chain.NetworkEthereum, Address: "0xabc", Balance: decimal.Zero, IsActive: true, Archived: true}
	require.NoError(t, store.Save(ctx, w0))
	require.NoError(t, store.Save(ctx, w1))

	got, err := store.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "sol-addr", got.Address)
	assert.True(t, got.Balance.Equal(decimal.NewFromFloat(2.0)))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 0, all[0].Index)
	assert.Equal(t, 1, all[1].Index)

	tracked, err := store.ListTracked(ctx)
	require.NoError(t, err)
	require.Len(t, tracked, 1, "archived wallets are not tracked")
	assert.Equal(t, 0, tracked[0].Index)
}

func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory())

	_, err := store.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateBalance(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory())

	require.NoError(t, store.Save(ctx, &Wallet{
		Index: 3, Network: chain.NetworkSolana, Address: "addr",
		Balance: decimal.NewFromFloat(2.0), IsActive: true,
	}))

	updated, err := store.UpdateBalance(ctx, 3, decimal.NewFromFloat(2.5))
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.NewFromFloat(2.5)))
	assert.True(t, updated.IsActive, "other fields survive the balance write")

	got, err := store.Get(ctx, 3)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromFloat(2.5)))
}

func TestStore_ConcurrentBalanceWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory())

	require.NoError(t, store.Save(ctx, &Wallet{
		Index: 0, Network: chain.NetworkSolana, Address: "addr",
		Balance: decimal.Zero, IsActive: true,
	}))

	// Last-writer-wins is fine; what must never happen is a torn record.
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.UpdateBalance(ctx, 0, decimal.NewFromInt(int64(n)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, 0)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.True(t, got.Balance.GreaterThanOrEqual(decimal.Zero))
	assert.True(t, got.Balance.LessThan(decimal.NewFromInt(20)))
}

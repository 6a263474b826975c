package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-realtime-market/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ cache.Store = (*Cache)(nil)

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCache(rdb), mr
}

func TestCache_GetSetDelete(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, ListingKey(1))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, ListingKey(1), []byte(`{"id":1}`), time.Minute))
	b, ok, err := c.Get(ctx, ListingKey(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":1}`, string(b))

	require.NoError(t, c.Delete(ctx, ListingKey(1), SellerListingsKey(2)))
	assert.False(t, mr.Exists(ListingKey(1)))
	require.NoError(t, c.Delete(ctx))
}

func TestCache_TTL(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, OrderKey(5), []byte("x"), 30*time.Second))
	mr.FastForward(31 * time.Second)

	_, ok, err := c.Get(ctx, OrderKey(5))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "orders:user:42", UserOrdersKey(42))
	assert.Equal(t, "orders:status:Pending", OrdersStatusKey("Pending"))
	assert.Equal(t, "market:listings:status:Active", ListingsStatusKey("Active"))
	assert.Equal(t, "market:orders:seller:3", SellerMarketOrdersKey(3))
}

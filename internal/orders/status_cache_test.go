package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/order-lifecycle/internal/orders"
	"github.com/ariefcatur/order-lifecycle/internal/redisx/redistest"
)

func TestRedisStatusCacheFillKeepsExistingEntry(t *testing.T) {
	rdb := redistest.New(t)
	cache := &orders.RedisStatusCache{Client: rdb}
	ctx := context.Background()
	t0 := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	_, ok, err := cache.GetStatus(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	wrote, err := cache.FillStatus(ctx, orders.StatusView{OrderID: 9, Status: orders.StatusCreated, UpdatedAt: t0})
	require.NoError(t, err)
	assert.True(t, wrote)

	require.NoError(t, cache.SetStatus(ctx, orders.StatusView{OrderID: 9, Status: orders.StatusConfirmed, UpdatedAt: t0.Add(time.Second)}))

	wrote, err = cache.FillStatus(ctx, orders.StatusView{OrderID: 9, Status: orders.StatusCreated, UpdatedAt: t0})
	require.NoError(t, err)
	assert.False(t, wrote)

	v, ok, err := cache.GetStatus(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orders.StatusConfirmed, v.Status)
	assert.True(t, v.UpdatedAt.Equal(t0.Add(time.Second)))

	ttl, err := rdb.TTL(ctx, "order_status:9").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

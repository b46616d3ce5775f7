package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-clothing-orders/internal/events"
	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
)

func TestNilCacheIsNoop(t *testing.T) {
	ctx := context.Background()
	var c *Cache
	assert.Nil(t, NewCache(nil))

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.SetOrderStatus(ctx, OrderStatus{OrderID: "o1", Status: "Pending"}))
	_, ok, err := c.OrderStatus(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, ok)

	existing, claimed, err := c.ClaimIdempotency(ctx, "cust", "key")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Empty(t, existing)
	require.NoError(t, c.CompleteIdempotency(ctx, "cust", "key", "o1"))
	require.NoError(t, c.ReleaseIdempotency(ctx, "cust", "key"))

	seen, err := c.Seen(ctx, "p", "e1")
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, c.MarkSeen(ctx, "p", "e1"))
	applied, err := c.SetAvailability(ctx, "v1", 1, 3, inventory.StatusLowStock)
	require.NoError(t, err)
	assert.False(t, applied)
	require.NoError(t, c.TrackLowStock(ctx, "v1", 3, true))

	low, err := c.LowStock(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, low)
	_, ok, err = c.Availability(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCache(rdb), mr
}

func TestSetAvailability_IgnoresOlderVersions(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	applied, err := c.SetAvailability(ctx, "v1", 5, 0, inventory.StatusFullyReserved)
	require.NoError(t, err)
	assert.True(t, applied)

	// a late delivery of version 4 must not win
	applied, err = c.SetAvailability(ctx, "v1", 4, 10, inventory.StatusLowStock)
	require.NoError(t, err)
	assert.False(t, applied)

	// redelivery of the same version is a no-op too
	applied, err = c.SetAvailability(ctx, "v1", 5, 10, inventory.StatusLowStock)
	require.NoError(t, err)
	assert.False(t, applied)

	n, ok, err := c.Availability(ctx, "v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, n)

	applied, err = c.SetAvailability(ctx, "v1", 6, 4, inventory.StatusLowStock)
	require.NoError(t, err)
	assert.True(t, applied)
	n, _, err = c.Availability(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestProjectorOverRedis_OutOfOrder(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	p := inventory.NewProjector(c, 20)

	require.NoError(t, p.Apply(ctx, events.StockChangedPayload{VariantID: "v1", OnHand: 10, Reserved: 10, Version: 3}))
	require.NoError(t, p.Apply(ctx, events.StockChangedPayload{VariantID: "v1", OnHand: 10, Reserved: 0, Version: 2}))

	n, ok, err := c.Availability(ctx, "v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, n)

	low, err := c.LowStock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []LowStockEntry{{VariantID: "v1", Available: 0}}, low)
}

func TestIdempotencyClaim(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	_, claimed, err := c.ClaimIdempotency(ctx, "alice", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)

	existing, claimed, err := c.ClaimIdempotency(ctx, "alice", "k1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Empty(t, existing, "first request still in flight")

	require.NoError(t, c.CompleteIdempotency(ctx, "alice", "k1", "order-1"))
	existing, claimed, err = c.ClaimIdempotency(ctx, "alice", "k1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-1", existing)

	// keys are per customer
	_, claimed, err = c.ClaimIdempotency(ctx, "bob", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)

	mr.FastForward(TTLIdempotency + time.Second)
	_, claimed, err = c.ClaimIdempotency(ctx, "alice", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

// Cache must satisfy the projector's read model.
var _ inventory.Projection = (*Cache)(nil)

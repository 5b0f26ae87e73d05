package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bufcache/internal/core"
	"github.com/hupe1980/bufcache/resource"
)

var (
	devA = core.MakeDev(3, 0)
	devB = core.MakeDev(3, 1)
)

func bid(dev core.DevID, blk uint64) core.BlockID { return core.BlockID{Dev: dev, Block: blk} }

func TestMemory_OfferFetch(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	c := NewMemory(50, rc)
	ctx := context.Background()

	c.Offer(ctx, bid(devA, 1), bytes.Repeat([]byte{1}, 20))
	c.Offer(ctx, bid(devA, 2), bytes.Repeat([]byte{2}, 20))
	assert.Equal(t, int64(40), rc.MemoryUsage())

	// Third offer exceeds capacity and evicts the oldest.
	c.Offer(ctx, bid(devA, 3), bytes.Repeat([]byte{3}, 20))
	assert.Equal(t, int64(40), rc.MemoryUsage())
	assert.False(t, c.Contains(bid(devA, 1)))

	buf := make([]byte, 20)
	assert.True(t, c.Fetch(ctx, core.NoBlock, bid(devA, 2), buf))
	assert.Equal(t, bytes.Repeat([]byte{2}, 20), buf)

	assert.False(t, c.Fetch(ctx, core.NoBlock, bid(devA, 1), buf))

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(3), st.Offers)
	assert.Equal(t, 2, st.Entries)

	require.NoError(t, c.Close())
	assert.Zero(t, rc.MemoryUsage())
}

func TestMemory_FetchYieldsEvicted(t *testing.T) {
	c := NewMemory(1024, nil)
	ctx := context.Background()

	c.Offer(ctx, bid(devA, 9), []byte("nine"))

	buf := []byte("five")
	require.True(t, c.Fetch(ctx, bid(devA, 5), bid(devA, 9), buf))
	assert.Equal(t, "nine", string(buf))

	// The evicted content was kept before buf was overwritten.
	require.True(t, c.Fetch(ctx, core.NoBlock, bid(devA, 5), buf))
	assert.Equal(t, "five", string(buf))
}

func TestMemory_Forget(t *testing.T) {
	c := NewMemory(1024, nil)
	ctx := context.Background()

	require.NoError(t, c.Forget(ctx, core.NoBlock), "support check must succeed")

	c.Offer(ctx, bid(devA, 1), []byte("a1"))
	c.Offer(ctx, bid(devA, 2), []byte("a2"))
	c.Offer(ctx, bid(devB, 1), []byte("b1"))

	require.NoError(t, c.Forget(ctx, bid(devA, 1)))
	assert.False(t, c.Contains(bid(devA, 1)))

	c.ForgetAll(ctx, devA)
	assert.False(t, c.Contains(bid(devA, 2)))
	assert.True(t, c.Contains(bid(devB, 1)))

	c.ForgetAll(ctx, core.NoDev)
	assert.Zero(t, c.Stats().Entries)
	assert.Zero(t, c.Stats().Bytes)
}

func TestMemory_GlobalLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 30})
	require.True(t, rc.TryAcquireMemory(20))

	c := NewMemory(100, rc)
	ctx := context.Background()

	c.Offer(ctx, bid(devA, 1), make([]byte, 8))
	assert.True(t, c.Contains(bid(devA, 1)))

	// Only 2 bytes left globally; the cache evicts its own entry and still
	// cannot fit, so nothing is kept.
	c.Offer(ctx, bid(devA, 2), make([]byte, 12))
	assert.False(t, c.Contains(bid(devA, 2)))
	assert.False(t, c.Contains(bid(devA, 1)))
	assert.Equal(t, int64(20), rc.MemoryUsage())
}

func TestUnsupported(t *testing.T) {
	var u Unsupported
	ctx := context.Background()

	assert.True(t, errors.Is(u.Forget(ctx, core.NoBlock), errors.ErrUnsupported))
	assert.False(t, u.Fetch(ctx, core.NoBlock, bid(devA, 1), make([]byte, 4)))
	u.Offer(ctx, bid(devA, 1), nil)
	u.ForgetAll(ctx, core.NoDev)
	assert.NoError(t, u.Close())
}

package lru_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nwnotary/notary-server/pkg/cache"
	"github.com/nwnotary/notary-server/pkg/cache/lru"
)

func TestGetSetRoundTrip(t *testing.T) {
	c, err := lru.New(1024)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestOversizedEntryRejected(t *testing.T) {
	c, err := lru.New(4)
	require.NoError(t, err)
	err = c.Set(context.Background(), "k", []byte("toolong"), time.Minute)
	require.ErrorIs(t, err, cache.ErrTooLarge)
}

func TestExpiryOnAccess(t *testing.T) {
	c, err := lru.New(1024)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Nanosecond))
	time.Sleep(time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := lru.New(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("1"), time.Minute))
	// Touch "a" so "b" becomes the LRU entry.
	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", []byte("1"), time.Minute))

	_, ok, _ := c.Get(ctx, "b")
	require.False(t, ok, "b should have been evicted as least-recently-used")
	_, ok, _ = c.Get(ctx, "a")
	require.True(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	require.True(t, ok)
}

func TestGetOrComputeDedupsConcurrentMiss(t *testing.T) {
	c, err := lru.New(1024)
	require.NoError(t, err)
	ctx := context.Background()

	var calls int32
	compute := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return []byte("computed"), nil
	}

	results := make(chan []byte, 8)
	for i := 0; i < 8; i++ {
		go func() {
			v, _, err := c.GetOrCompute(ctx, "k", time.Minute, compute)
			require.NoError(t, err)
			results <- v
		}()
	}
	for i := 0; i < 8; i++ {
		require.Equal(t, []byte("computed"), <-results)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

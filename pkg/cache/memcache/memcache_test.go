package memcache_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nwnotary/notary-server/pkg/cache/memcache"
)

const testAddr = "127.0.0.1:11211"

func requireMemcached(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testAddr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("no memcached reachable at %s: %v", testAddr, err)
	}
	conn.Close()
}

func TestGetSetRoundTrip(t *testing.T) {
	requireMemcached(t)
	c := memcache.New(testAddr)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "nwnotary-test-key")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "nwnotary-test-key", []byte("xml"), time.Minute))
	v, ok, err := c.Get(ctx, "nwnotary-test-key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("xml"), v)
}

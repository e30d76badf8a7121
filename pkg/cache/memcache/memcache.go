// Package memcache adapts github.com/bradfitz/gomemcache/memcache to the
// cache.Cache contract.
package memcache

import (
	"context"
	"errors"
	"time"

	gomemcache "github.com/bradfitz/gomemcache/memcache"
	"golang.org/x/sync/singleflight"

	"github.com/nwnotary/notary-server/pkg/cache"
)

// Cache is a cache.Cache backed by one or more Memcached servers.
type Cache struct {
	client    *gomemcache.Client
	singleton singleflight.Group
}

var _ cache.Cache = (*Cache)(nil)

// New returns a Cache talking to the given Memcached server addresses
// (host:port), using gomemcache's built-in round-robin server selector.
func New(servers ...string) *Cache {
	return &Cache{client: gomemcache.New(servers...)}
}

// Get returns the value stored under key. A missing or expired entry is
// reported the same way: ok == false, err == nil.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := c.client.Get(key)
	if errors.Is(err, gomemcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return item.Value, true, nil
}

// Set stores value under key for ttl. Memcached itself enforces its
// configured max item size and rejects larger values; that rejection is
// surfaced as cache.ErrTooLarge.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(&gomemcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl.Seconds()),
	})
	if errors.Is(err, gomemcache.ErrServerError) {
		return cache.ErrTooLarge
	}
	return err
}

// GetOrCompute satisfies cache.Cache; see the package-level coalesce
// policy in package cache. Dedup happens within this process only —
// Memcached itself offers no cross-process compute-coalescing primitive.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	return cache.Coalesce(ctx, c, &c.singleton, key, ttl, compute)
}

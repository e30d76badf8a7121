// Package lru implements the in-process, byte-bounded cache backend.
package lru

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/nwnotary/notary-server/pkg/cache"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool { return now.After(e.expiresAt) }

// Cache is a byte-bounded, not entry-bounded, in-process cache. It wraps
// golang-lru purely as an ordering/eviction primitive (golang-lru itself
// only tracks entry counts) and keeps its own byte total under a mutex to
// evict down to maxBytes on Set.
type Cache struct {
	mu        sync.Mutex
	inner     *lru.Cache
	maxBytes  int
	curBytes  int
	singleton singleflight.Group
}

// New returns a Cache that never holds more than maxBytes of entry values
// at once. The backing golang-lru cache is sized generously by count (far
// larger than any realistic working set) since eviction here is driven by
// the byte accounting below, not by entry count.
func New(maxBytes int) (*Cache, error) {
	inner, err := lru.New(1 << 20)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner, maxBytes: maxBytes}, nil
}

var _ cache.Cache = (*Cache)(nil)

// Get returns the value for key, removing it first if its TTL has
// elapsed.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.inner.Get(key)
	if !ok {
		return nil, false, nil
	}
	e := v.(entry)
	if e.expired(time.Now()) {
		c.inner.Remove(key)
		c.curBytes -= len(e.value)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key for ttl, evicting least-recently-used
// entries until the tracked byte total fits within maxBytes. Values
// larger than maxBytes by themselves are not stored and nothing is
// evicted for them; Set returns cache.ErrTooLarge.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > c.maxBytes {
		return cache.ErrTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.inner.Peek(key); ok {
		c.curBytes -= len(old.(entry).value)
	}

	for c.curBytes+len(value) > c.maxBytes {
		_, v, ok := c.inner.RemoveOldest()
		if !ok {
			break
		}
		c.curBytes -= len(v.(entry).value)
	}

	c.inner.Add(key, entry{value: value, expiresAt: time.Now().Add(ttl)})
	c.curBytes += len(value)
	return nil
}

// GetOrCompute satisfies cache.Cache; see the package-level coalesce
// policy in package cache.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	return cache.Coalesce(ctx, c, &c.singleton, key, ttl, compute)
}

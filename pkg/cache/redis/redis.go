// Package redis adapts github.com/redis/go-redis/v9 to the cache.Cache
// contract.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/nwnotary/notary-server/pkg/cache"
)

// Cache is a cache.Cache backed by a single Redis server or cluster.
type Cache struct {
	client    goredis.UniversalClient
	singleton singleflight.Group
}

var _ cache.Cache = (*Cache)(nil)

// New wraps an already-configured go-redis client. Callers build the
// client (standalone, sentinel, or cluster) with goredis.NewClient /
// NewClusterClient so this package stays agnostic of deployment topology.
func New(client goredis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Get returns the value stored under key. Redis expires keys itself, so a
// miss and an expiry are indistinguishable and both map to ok == false.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set stores value under key with ttl, using SETEX so Redis itself
// enforces expiry without a separate cleanup pass.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.SetEx(ctx, key, value, ttl).Err()
}

// GetOrCompute satisfies cache.Cache; see the package-level coalesce
// policy in package cache. Dedup happens within this process only — a
// second notary process talking to the same Redis would still both
// compute on a simultaneous miss.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	return cache.Coalesce(ctx, c, &c.singleton, key, ttl, compute)
}

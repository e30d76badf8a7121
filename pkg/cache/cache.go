// Package cache defines the pluggable key-value cache contract used to
// hold signed replies keyed by service ID, and the backends that satisfy
// it (in-process LRU, Memcached, Redis).
package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrTooLarge is returned by Set when a value exceeds a backend's
// per-entry size limit; the backend silently drops the entry rather than
// evicting everything else to make room for it.
var ErrTooLarge = errors.New("cache: value exceeds backend size limit")

// Cache is a key-value store with per-entry TTL. An expired or absent key
// behaves identically to callers: Get returns ok == false.
type Cache interface {
	// Get returns the value stored under key, or ok == false if the key
	// is absent or its TTL has elapsed.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key for ttl. Implementations may reject
	// oversized values with ErrTooLarge instead of storing them.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// GetOrCompute returns the cached value for key if present (hit ==
	// true), otherwise calls compute and stores its result under ttl
	// (hit == false). Concurrent callers for the same key share a single
	// in-flight compute rather than each triggering one, so a cache miss
	// on a hot service can't stampede the store/probe path behind it.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) (value []byte, hit bool, err error)
}

// Coalesce implements the GetOrCompute dedup policy shared by every
// backend: check c.Get, and on a miss run compute behind group so that
// concurrent callers for the same key collapse onto one in-flight call.
// Backends call this from their own GetOrCompute with their own
// singleflight.Group.
func Coalesce(ctx context.Context, c Cache, group *singleflight.Group, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if v, ok, err := c.Get(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		return v, true, nil
	}

	type result struct {
		value []byte
		hit   bool
	}
	r, err, _ := group.Do(key, func() (interface{}, error) {
		if v, ok, err := c.Get(ctx, key); err == nil && ok {
			return result{value: v, hit: true}, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if setErr := c.Set(ctx, key, v, ttl); setErr != nil && !errors.Is(setErr, ErrTooLarge) {
			return nil, setErr
		}
		return result{value: v, hit: false}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := r.(result)
	return res.value, res.hit, nil
}

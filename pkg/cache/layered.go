package cache

import (
	"context"
	"time"
)

// LayeredCache implements two-level cache (L1: Memory, L2: Redis).
type LayeredCache struct {
	memCache *MemoryCache
	remote   Service
	memTTL   time.Duration
}

// NewLayeredCache puts an in-process L1 of l1Size entries in front of
// remote. An L1 copy lives at most l1TTL, 30s when zero.
func NewLayeredCache(remote Service, l1Size int, l1TTL time.Duration) *LayeredCache {
	if l1TTL <= 0 {
		l1TTL = 30 * time.Second
	}
	return &LayeredCache{
		memCache: NewMemoryCache(WithMaxEntries(l1Size)),
		remote:   remote,
		memTTL:   l1TTL,
	}
}

func (lc *LayeredCache) l1TTL(expiration time.Duration) time.Duration {
	if expiration <= 0 || expiration > lc.memTTL {
		return lc.memTTL
	}
	return expiration
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	// write-through: remote first, then memory
	if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.memCache.Set(ctx, key, value, lc.l1TTL(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.memCache.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.remote.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, dest, lc.memTTL)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.memCache.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.memCache.DeleteByPattern(ctx, pattern)
	return lc.remote.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if ok, _ := lc.memCache.Exists(ctx, keys...); ok {
		return true, nil
	}
	return lc.remote.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.remote.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.remote.Unlock(ctx, key)
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.memCache.Close()
	return lc.remote.Close()
}

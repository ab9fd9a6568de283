package cache

import (
	"context"
	"sync"
	"time"
)

// memoryItem stores an encoded value with expiration.
type memoryItem struct {
	data     []byte
	expireAt time.Time
	access   time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return !now.Before(m.expireAt)
}

// MemoryCache implements Service in process with LRU eviction.
type MemoryCache struct {
	data          map[string]*memoryItem
	mutex         sync.Mutex
	maxSize       int
	cleanupTicker *time.Ticker
	done          chan struct{}
	closeOnce     sync.Once
	now           func() time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMaxEntries bounds the cache; the least recently read entry goes first.
func WithMaxEntries(n int) MemoryOption {
	return func(mc *MemoryCache) {
		if n > 0 {
			mc.maxSize = n
		}
	}
}

// WithClock injects the time source used for expiry and recency.
func WithClock(now func() time.Time) MemoryOption {
	return func(mc *MemoryCache) { mc.now = now }
}

// NewMemoryCache starts an in-process cache with a background sweep of
// expired entries every five minutes.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: 1000,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(mc)
	}
	mc.cleanupTicker = time.NewTicker(5 * time.Minute)

	go mc.cleanupExpired()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if _, ok := mc.data[key]; !ok && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}

	now := mc.now()
	if expiration <= 0 {
		expiration = 7 * 24 * time.Hour
	}
	mc.data[key] = &memoryItem{data: data, expireAt: now.Add(expiration), access: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mutex.Lock()
	item, ok := mc.data[key]
	now := mc.now()
	if !ok || item.expired(now) {
		if ok {
			delete(mc.data, key)
		}
		mc.mutex.Unlock()
		return ErrCacheMiss
	}
	item.access = now
	data := item.data
	mc.mutex.Unlock()

	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		delete(mc.data, key)
	}
	return nil
}

func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for key := range mc.data {
		if matchPattern(pattern, key) {
			delete(mc.data, key)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	now := mc.now()
	for _, key := range keys {
		if item, ok := mc.data[key]; ok && !item.expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	now := mc.now()
	if item, ok := mc.data[key]; ok && !item.expired(now) {
		return false, nil
	}
	mc.data[key] = &memoryItem{data: []byte("locked"), expireAt: now.Add(ttl), access: now}
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len is the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time

	for key, item := range mc.data {
		if oldestKey == "" || item.access.Before(oldest) {
			oldest = item.access
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}

func (mc *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.cleanupTicker.C:
			mc.mutex.Lock()
			now := mc.now()
			for key, item := range mc.data {
				if item.expired(now) {
					delete(mc.data, key)
				}
			}
			mc.mutex.Unlock()
		}
	}
}

// Close stops the cleanup loop.
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() {
		mc.cleanupTicker.Stop()
		close(mc.done)
	})
	return nil
}

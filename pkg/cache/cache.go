package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service defines cache operations. Values round-trip through JSON, so Get
// decodes into any pointer the caller passes. Strings are stored raw.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

func encode(value interface{}) ([]byte, error) {
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(value)
}

func decode(data []byte, dest interface{}) error {
	if s, ok := dest.(*string); ok {
		*s = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}

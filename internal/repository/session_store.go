package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	"StockPulse/pkg/cache"
)

// CacheSessionStore keeps the broker session in a cache.Service, Redis in
// production, with a TTL matching the session expiry.
type CacheSessionStore struct {
	cache cache.Service
	key   string
	now   func() time.Time
}

func NewCacheSessionStore(c cache.Service, broker string) *CacheSessionStore {
	return &CacheSessionStore{
		cache: c,
		key:   cache.Key("session", broker),
		now:   time.Now,
	}
}

var _ domrepo.SessionStore = (*CacheSessionStore)(nil)

func (s *CacheSessionStore) Load(ctx context.Context) (*models.Session, error) {
	var sess models.Session
	if err := s.cache.Get(ctx, s.key, &sess); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &sess, nil
}

// Save stores s until it expires. An already expired session is removed.
func (s *CacheSessionStore) Save(ctx context.Context, sess *models.Session) error {
	ttl := sess.Remaining(s.now())
	if ttl <= 0 {
		return s.Delete(ctx)
	}
	if err := s.cache.Set(ctx, s.key, sess, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *CacheSessionStore) Delete(ctx context.Context) error {
	return s.cache.Delete(ctx, s.key)
}

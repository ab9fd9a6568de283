package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	domsvc "StockPulse/internal/domain/service"
	"StockPulse/pkg/logger"
)

type SessionOption func(*SessionManager)

func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

// WithRefreshBefore sets how long before expiry Run refreshes the token.
func WithRefreshBefore(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.refreshBefore = d
		}
	}
}

func WithCheckInterval(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.checkEvery = d
		}
	}
}

// WithRefreshBackoff bounds the delay between failed refresh attempts.
func WithRefreshBackoff(lo, hi time.Duration) SessionOption {
	return func(m *SessionManager) {
		if lo > 0 && hi >= lo {
			m.retryMin, m.retryMax = lo, hi
		}
	}
}

// SessionManager owns the single broker session.
type SessionManager struct {
	auth    domsvc.Authenticator
	store   domrepo.SessionStore
	metrics domrepo.Metrics
	log     *logger.Logger

	now           func() time.Time
	refreshBefore time.Duration
	checkEvery    time.Duration
	retryMin      time.Duration
	retryMax      time.Duration

	sf singleflight.Group

	mu        sync.RWMutex
	sess      *models.Session
	listeners []func(models.SessionStatus)

	// refresh retry state, touched only by Run
	failures  int
	nextRetry time.Time
}

func NewSessionManager(auth domsvc.Authenticator, store domrepo.SessionStore, metrics domrepo.Metrics, log *logger.Logger, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		auth:          auth,
		store:         store,
		metrics:       metrics,
		log:           log,
		now:           time.Now,
		refreshBefore: time.Hour,
		checkEvery:    30 * time.Second,
		retryMin:      5 * time.Second,
		retryMax:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SessionManager) LoginURL(state string) string {
	return m.auth.LoginURL(state)
}

// OnChange registers fn to run after every session transition.
func (m *SessionManager) OnChange(fn func(models.SessionStatus)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Connect exchanges authCode for a new session, replacing any current one.
func (m *SessionManager) Connect(ctx context.Context, authCode string) (models.SessionStatus, error) {
	authCode = strings.TrimSpace(authCode)
	if authCode == "" {
		return models.SessionStatus{}, ErrAuthCodeRequired
	}
	s, err := m.auth.Exchange(ctx, authCode)
	if err != nil {
		m.metrics.RecordError("session_exchange")
		return models.SessionStatus{}, fmt.Errorf("connect: %w", err)
	}
	if !s.Usable(m.now()) {
		return models.SessionStatus{}, fmt.Errorf("connect: %w", ErrSessionExpired)
	}

	m.install(ctx, s)
	m.log.Info("broker session established",
		logger.String("broker", s.Broker),
		logger.Time("expires_at", s.ExpiresAt),
	)
	return m.Status(), nil
}

// Refresh renews the current session. Concurrent callers share one request.
func (m *SessionManager) Refresh(ctx context.Context) (models.SessionStatus, error) {
	_, err, _ := m.sf.Do("refresh", func() (interface{}, error) {
		return nil, m.refresh(ctx)
	})
	if err != nil {
		return models.SessionStatus{}, err
	}
	return m.Status(), nil
}

func (m *SessionManager) refresh(ctx context.Context) error {
	m.mu.RLock()
	cur := m.sess
	m.mu.RUnlock()

	if cur == nil {
		return ErrNotAuthenticated
	}
	if cur.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	next, err := m.auth.Refresh(ctx, cur)
	if err != nil {
		m.metrics.RecordError("session_refresh")
		return fmt.Errorf("refresh: %w", err)
	}
	if next.ID == "" {
		next.ID = cur.ID
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}

	m.mu.Lock()
	// a Disconnect or Connect raced us
	if m.sess != cur {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.sess = next
	m.mu.Unlock()

	m.persist(ctx, next)
	m.log.Info("broker session refreshed", logger.Time("expires_at", next.ExpiresAt))
	return nil
}

// Disconnect drops the session. It is a no-op without one.
func (m *SessionManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	had := m.sess != nil
	m.sess = nil
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx); err != nil {
			return fmt.Errorf("disconnect: %w", err)
		}
	}
	if had {
		m.log.Info("broker session closed")
		m.notify()
	}
	return nil
}

// AccessToken returns the bearer token of a usable session. An expired
// session is dropped on access.
func (m *SessionManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	s := m.sess
	m.mu.RUnlock()

	if s == nil {
		return "", ErrNotAuthenticated
	}
	if !s.Usable(m.now()) {
		m.expire(ctx, s)
		return "", ErrSessionExpired
	}
	return s.AccessToken, nil
}

// Usable reports whether a token could be handed out right now.
func (m *SessionManager) Usable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess.Usable(m.now())
}

func (m *SessionManager) Status() models.SessionStatus {
	m.mu.RLock()
	s := m.sess
	m.mu.RUnlock()
	return s.Status(m.now())
}

// Restore loads a persisted session. Expired sessions are discarded.
func (m *SessionManager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	s, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if s == nil {
		return nil
	}
	if !s.Usable(m.now()) {
		m.log.Info("discarding expired stored session", logger.Time("expired_at", s.ExpiresAt))
		return m.store.Delete(ctx)
	}

	m.mu.Lock()
	m.sess = s
	m.mu.Unlock()
	m.log.Info("broker session restored", logger.Time("expires_at", s.ExpiresAt))
	m.notify()
	return nil
}

// Run keeps the session fresh until ctx is done.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.checkEvery)
	defer ticker.Stop()
	for {
		m.Maintain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Maintain runs one refresh/expiry check.
func (m *SessionManager) Maintain(ctx context.Context) {
	m.mu.RLock()
	s := m.sess
	m.mu.RUnlock()

	now := m.now()
	m.metrics.RecordSessionRemaining(s.Remaining(now).Seconds())
	if s == nil {
		m.failures = 0
		return
	}
	if !s.Usable(now) {
		m.expire(ctx, s)
		return
	}
	if s.Remaining(now) >= m.refreshBefore || s.RefreshToken == "" || now.Before(m.nextRetry) {
		return
	}

	if _, err := m.Refresh(ctx); err != nil {
		m.failures++
		delay := m.retryMin << (m.failures - 1)
		if delay > m.retryMax || delay <= 0 {
			delay = m.retryMax
		}
		m.nextRetry = now.Add(delay)
		m.log.Warn("session refresh failed",
			logger.Int("attempt", m.failures),
			logger.Duration("retry_in", delay),
			logger.Error(err),
		)
		return
	}
	m.failures = 0
	m.nextRetry = time.Time{}
}

func (m *SessionManager) install(ctx context.Context, s *models.Session) {
	m.mu.Lock()
	m.sess = s
	m.mu.Unlock()
	m.persist(ctx, s)
}

func (m *SessionManager) persist(ctx context.Context, s *models.Session) {
	if m.store != nil {
		if err := m.store.Save(ctx, s); err != nil {
			m.metrics.RecordError("session_store")
			m.log.Warn("persist session failed", logger.Error(err))
		}
	}
	m.metrics.RecordSessionRemaining(s.Remaining(m.now()).Seconds())
	m.notify()
}

// expire clears s if it is still the current session.
func (m *SessionManager) expire(ctx context.Context, s *models.Session) {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.Delete(ctx)
	}
	m.log.Warn("broker session expired", logger.Time("expired_at", s.ExpiresAt))
	m.notify()
}

func (m *SessionManager) notify() {
	st := m.Status()
	m.mu.RLock()
	fns := append([]func(models.SessionStatus){}, m.listeners...)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(st)
	}
}

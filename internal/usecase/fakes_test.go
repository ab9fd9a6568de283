package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type fakeMetrics struct {
	mu      sync.Mutex
	dropped map[string]int
	errs    map[string]int
	sent    int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{dropped: map[string]int{}, errs: map[string]int{}}
}

func (m *fakeMetrics) RecordMessageSent(string, string) {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errs[kind]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordDropped(reason string) {
	m.mu.Lock()
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordLastPrice(string, float64) {}
func (m *fakeMetrics) RecordLatency(string, float64) {}
func (m *fakeMetrics) RecordScore(string, float64) {}
func (m *fakeMetrics) RecordSessionRemaining(float64) {}
func (m *fakeMetrics) RecordConnections(int) {}

func (m *fakeMetrics) droppedFor(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func tickAt(sym string, ts time.Time, price, vol float64) *models.Tick {
	return &models.Tick{Symbol: sym, Timestamp: ts, Price: price, Volume: vol}
}

type sinkRecorder struct {
	mu    sync.Mutex
	ticks []*models.Tick
	err   error
}

func (s *sinkRecorder) Ingest(_ context.Context, t *models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, t)
	return s.err
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

type fakePublisher struct {
	mu     sync.Mutex
	ticks  []*models.Tick
	scores []*models.Score
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, t *models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ticks = append(p.ticks, t)
	return nil
}

func (p *fakePublisher) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	for _, t := range ticks {
		if err := p.Publish(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakePublisher) PublishScore(_ context.Context, s *models.Score) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scores = append(p.scores, s)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *fakePublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ticks)
}

type fakeStorage struct {
	mu      sync.Mutex
	batches [][]*models.Tick
	stored  []*models.Tick
	err     error
}

func (s *fakeStorage) Init(context.Context) error { return nil }

func (s *fakeStorage) Store(_ context.Context, t *models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, t)
	return nil
}

func (s *fakeStorage) StoreBatch(_ context.Context, ticks []*models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, ticks)
	return nil
}

func (s *fakeStorage) Query(context.Context, string, time.Time, time.Time, int) ([]*models.Tick, error) {
	return nil, nil
}

func (s *fakeStorage) Health(context.Context) error { return nil }
func (s *fakeStorage) Close() error { return nil }

func (s *fakeStorage) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *fakeStorage) storedTicks() []*models.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Tick
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func (s *fakeStorage) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type fakeCandleStore struct {
	mu   sync.Mutex
	bars []models.Candle
}

func (s *fakeCandleStore) SaveCandles(_ context.Context, bars []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = append(s.bars, bars...)
	return nil
}

func (s *fakeCandleStore) GetCandles(_ context.Context, symbol string, from, to time.Time, _ drepo.Timeframe) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Candle
	for _, b := range s.bars {
		if b.Symbol == symbol && !b.Bucket.Before(from) && !b.Bucket.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf drepo.Timeframe) ([]models.Candle, error) {
	all, _ := s.GetCandles(ctx, symbol, time.Time{}, time.Now().Add(24*time.Hour), tf)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (s *fakeCandleStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bars)
}

type fakeTokens struct {
	mu    sync.Mutex
	token string
	err   error
	// onAccess runs on every call, like session callbacks fired by a refresh.
	onAccess func()
}

func (f *fakeTokens) AccessToken(context.Context) (string, error) {
	f.mu.Lock()
	token, err, hook := f.token, f.err, f.onAccess
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return token, err
}

func (f *fakeTokens) set(token string, err error) {
	f.mu.Lock()
	f.token, f.err = token, err
	f.mu.Unlock()
}

// fakeStream delivers its ticks once connected and then idles until the
// context ends. dialErr fails Connect while it is non-nil.
type fakeStream struct {
	ticks   []*models.Tick
	dialErr error
	readErr error

	connected atomic.Bool
	symbols   []string
}

func (s *fakeStream) Connect(_ context.Context, token string) error {
	if s.dialErr != nil {
		return s.dialErr
	}
	if token == "" {
		return errors.New("empty token")
	}
	s.connected.Store(true)
	return nil
}

func (s *fakeStream) Subscribe(_ context.Context, symbols []string) error {
	s.symbols = symbols
	return nil
}

func (s *fakeStream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick)
	errs := make(chan error, 1)
	go func() {
		for _, t := range s.ticks {
			select {
			case ticks <- t:
			case <-ctx.Done():
				return
			}
		}
		if s.readErr != nil {
			errs <- s.readErr
			return
		}
		<-ctx.Done()
	}()
	return ticks, errs
}

func (s *fakeStream) Close() error {
	s.connected.Store(false)
	return nil
}

func (s *fakeStream) IsConnected() bool { return s.connected.Load() }

type fakeAuth struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	exchanges  int
	refreshes  int
	refreshErr error
	block      chan struct{}
}

func (a *fakeAuth) Name() string { return "fake" }

func (a *fakeAuth) LoginURL(state string) string { return "https://broker.test/auth?state=" + state }

func (a *fakeAuth) Exchange(_ context.Context, code string) (*models.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if code == "bad" {
		return nil, errors.New("invalid_grant")
	}
	a.exchanges++
	now := a.now()
	return &models.Session{
		ID:           "sess-1",
		Broker:       "fake",
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		IssuedAt:     now,
		ExpiresAt:    now.Add(a.ttl),
	}, nil
}

func (a *fakeAuth) Refresh(_ context.Context, s *models.Session) (*models.Session, error) {
	if a.block != nil {
		<-a.block
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes++
	if a.refreshErr != nil {
		return nil, a.refreshErr
	}
	now := a.now()
	return &models.Session{
		Broker:      s.Broker,
		AccessToken: "access-refreshed",
		IssuedAt:    now,
		ExpiresAt:   now.Add(a.ttl),
	}, nil
}

func (a *fakeAuth) refreshCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshes
}

type memSessionStore struct {
	mu   sync.Mutex
	sess *models.Session
}

func (s *memSessionStore) Load(context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, nil
	}
	c := *s.sess
	return &c, nil
}

func (s *memSessionStore) Save(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *sess
	s.sess = &c
	return nil
}

func (s *memSessionStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = nil
	return nil
}

func (s *memSessionStore) stored() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

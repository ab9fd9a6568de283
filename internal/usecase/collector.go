package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
	mid "StockPulse/internal/middleware"
	"StockPulse/pkg/events"
	"StockPulse/pkg/logger"
)

var errStreamClosed = errors.New("stream closed")

// TokenSource hands out the broker access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type CollectorConfig struct {
	Symbols              []string
	SymbolsPerConnection int
	MaxConnections       int
	BackoffMin           time.Duration
	BackoffMax           time.Duration
	// a connection that stayed up this long resets the backoff
	HealthyAfter time.Duration
	Backfill     bool
	BackfillBars int
}

type CollectorOption func(*Collector)

// WithHistory enables warming the engine from the broker REST history.
func WithHistory(h drepo.HistoryProvider) CollectorOption {
	return func(c *Collector) { c.history = h }
}

func WithCollectorBus(bus *events.Bus) CollectorOption {
	return func(c *Collector) { c.bus = bus }
}

func WithCollectorClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// Collector runs the pool of broker stream connections.
type Collector struct {
	cfg       CollectorConfig
	newStream drepo.StreamFactory
	session   TokenSource
	pipe      *mid.RealtimePipeline
	proc      *TickProcessor
	engine    *ScoringEngine
	history   drepo.HistoryProvider
	metrics   drepo.Metrics
	log       *logger.Logger
	bus       *events.Bus
	now       func() time.Time

	// serializes Start and Stop
	runMu sync.Mutex

	mu        sync.Mutex
	state     models.CollectionState
	cancel    context.CancelFunc
	done      chan struct{}
	chunks    [][]string
	startedAt time.Time
	lastErr   string

	conns      atomic.Int32
	ticksTotal atomic.Int64
	lastTick   atomic.Int64
	rate       *rateWindow
}

func NewCollector(
	cfg CollectorConfig,
	newStream drepo.StreamFactory,
	session TokenSource,
	pipe *mid.RealtimePipeline,
	proc *TickProcessor,
	engine *ScoringEngine,
	metrics drepo.Metrics,
	log *logger.Logger,
	opts ...CollectorOption,
) *Collector {
	if cfg.SymbolsPerConnection <= 0 {
		cfg.SymbolsPerConnection = 50
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 5
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.HealthyAfter <= 0 {
		cfg.HealthyAfter = 30 * time.Second
	}
	c := &Collector{
		cfg:       cfg,
		newStream: newStream,
		session:   session,
		pipe:      pipe,
		proc:      proc,
		engine:    engine,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
		state:     models.CollectionIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rate = newRateWindow(c.now)
	return c
}

// Partition dedupes and validates symbols and splits them into connection
// chunks of at most per symbols.
func Partition(symbols []string, per, maxConns int) ([][]string, error) {
	syms, err := models.ParseSymbols(symbols)
	if err != nil {
		return nil, err
	}
	n := (len(syms) + per - 1) / per
	if n > maxConns {
		return nil, fmt.Errorf("%w: %d symbols need %d connections, max %d", ErrUniverseTooLarge, len(syms), n, maxConns)
	}
	chunks := make([][]string, 0, n)
	for i := 0; i < len(syms); i += per {
		end := i + per
		if end > len(syms) {
			end = len(syms)
		}
		chunk := make([]string, 0, end-i)
		for _, s := range syms[i:end] {
			chunk = append(chunk, s.String())
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Start launches one worker per symbol chunk. Workers outlive ctx; they stop
// on Stop or when the session is lost.
func (c *Collector) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	// runMu serializes Start and Stop. mu is only held for field access, since
	// AccessToken may fire session callbacks that read the state.
	if c.Running() {
		return ErrAlreadyCollecting
	}
	if _, err := c.session.AccessToken(ctx); err != nil {
		return err
	}
	chunks, err := Partition(c.cfg.Symbols, c.cfg.SymbolsPerConnection, c.cfg.MaxConnections)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: empty universe", models.ErrInvalidSymbol)
	}

	var all []string
	for _, ch := range chunks {
		all = append(all, ch...)
	}
	c.engine.Track(all)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.chunks = chunks
	c.state = models.CollectionCollecting
	c.startedAt = c.now()
	c.lastErr = ""
	c.mu.Unlock()

	c.pipe.Start(runCtx)
	c.proc.Start(runCtx)

	var wg sync.WaitGroup
	if c.cfg.Backfill && c.history != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.backfill(runCtx, all)
		}()
	}
	for i, chunk := range chunks {
		wg.Add(1)
		go func(id int, symbols []string) {
			defer wg.Done()
			c.worker(runCtx, id, symbols)
		}(i, chunk)
	}
	go func() {
		wg.Wait()
		close(done)
		c.workersExited(done)
	}()

	c.log.Info("collection started",
		logger.Int("symbols", len(all)),
		logger.Int("connections", len(chunks)),
	)
	c.publishStatus()
	return nil
}

// Stop cancels all workers and waits for them. It is a no-op when idle.
func (c *Collector) Stop(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	if c.state == models.CollectionCollecting {
		c.state = models.CollectionIdle
	}
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.drain(ctx)
	c.log.Info("collection stopped")
	c.publishStatus()
	return nil
}

// drain stops the retry loop and writes pending batches.
func (c *Collector) drain(ctx context.Context) {
	c.pipe.Stop()
	if err := c.proc.Close(ctx); err != nil {
		c.log.Warn("flush on stop failed", logger.Error(err))
	}
}

// HandleSession stops collection once the broker session is gone. Register
// it with SessionManager.OnChange.
func (c *Collector) HandleSession(st models.SessionStatus) {
	if st.Authenticated || !c.Running() {
		return
	}
	c.setErr(ErrNotAuthenticated)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	}()
}

func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == models.CollectionCollecting
}

// workersExited moves a run whose workers all gave up into the error state.
// Runs ended by Stop are already detached and left alone.
func (c *Collector) workersExited(done chan struct{}) {
	c.mu.Lock()
	if c.done != done {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.cancel, c.done = nil, nil
	c.state = models.CollectionError
	if c.lastErr == "" {
		c.lastErr = "all stream workers exited"
	}
	c.mu.Unlock()

	cancel()
	ctx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	c.drain(ctx)
	c.log.Warn("collection halted", logger.String("reason", c.Status().LastError))
	c.publishStatus()
}

func (c *Collector) worker(ctx context.Context, id int, symbols []string) {
	log := c.log.Named(fmt.Sprintf("conn-%d", id))
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		token, err := c.session.AccessToken(ctx)
		if err != nil {
			c.setErr(err)
			log.Warn("stream worker stopping", logger.Error(err))
			return
		}

		began := c.now()
		err = c.runStream(ctx, token, symbols)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.setErr(err)

		if c.now().Sub(began) >= c.cfg.HealthyAfter {
			attempt = 0
		}
		attempt++
		delay := reconnectDelay(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)
		log.Warn("stream disconnected",
			logger.Error(err),
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", delay),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Collector) runStream(ctx context.Context, token string, symbols []string) error {
	stream := c.newStream()
	defer stream.Close()

	if err := stream.Connect(ctx, token); err != nil {
		return err
	}
	if err := stream.Subscribe(ctx, symbols); err != nil {
		return err
	}
	c.metrics.RecordConnections(int(c.conns.Add(1)))
	defer func() { c.metrics.RecordConnections(int(c.conns.Add(-1))) }()

	ticks, errs := stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
			errs = nil
		case t, ok := <-ticks:
			if !ok {
				return errStreamClosed
			}
			c.onTick(ctx, t)
		}
	}
}

func (c *Collector) onTick(ctx context.Context, t *models.Tick) {
	c.ticksTotal.Add(1)
	c.lastTick.Store(c.now().UnixNano())
	c.rate.add(1)
	// failures are buffered by the pipeline and counted in metrics
	_ = c.pipe.Process(ctx, t)
}

// backfill seeds the engine with the bars of the current window per symbol.
func (c *Collector) backfill(ctx context.Context, symbols []string) {
	tf := c.engine.Timeframe()
	bars := c.cfg.BackfillBars
	if bars <= 0 {
		bars = c.engine.Window()
	}
	now := c.now()
	// last completed bucket only; the forming one comes from the stream
	to := now.Truncate(tf.Duration()).Add(-time.Second)
	// markets are closed most of the day, so ask for more calendar time than bars
	from := now.Add(-time.Duration(bars) * tf.Duration() * 5)

	for _, sym := range symbols {
		if ctx.Err() != nil {
			return
		}
		token, err := c.session.AccessToken(ctx)
		if err != nil {
			return
		}
		candles, err := c.history.History(ctx, token, sym, tf, from, to)
		if err != nil {
			c.metrics.RecordError("backfill")
			c.log.Warn("backfill failed", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		if len(candles) > bars {
			candles = candles[len(candles)-bars:]
		}
		n, _ := c.engine.Seed(ctx, sym, candles)
		c.log.Debug("backfilled", logger.String("symbol", sym), logger.Int("bars", n))
	}
}

func (c *Collector) setErr(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// Status reports the collection state and counters.
func (c *Collector) Status() models.CollectionStatus {
	c.mu.Lock()
	st := models.CollectionStatus{
		State:                 c.state,
		ConfiguredConnections: len(c.chunks),
		LastError:             c.lastErr,
	}
	for _, ch := range c.chunks {
		st.SymbolsTracked += len(ch)
	}
	if !c.startedAt.IsZero() {
		t := c.startedAt
		st.StartedAt = &t
	}
	c.mu.Unlock()

	st.Connections = int(c.conns.Load())
	st.MessagesPerSec = float64(c.rate.count())
	st.TicksTotal = c.ticksTotal.Load()
	if ns := c.lastTick.Load(); ns > 0 {
		t := time.Unix(0, ns)
		st.LastTickAt = &t
	}
	ps := c.proc.Stats()
	st.DuplicatesDropped = ps.Duplicates
	st.LateDropped = ps.Late
	return st
}

func (c *Collector) publishStatus() {
	if c.bus != nil {
		c.bus.Publish(events.TopicCollectionStatus, c.Status())
	}
}

// reconnectDelay doubles from lo up to hi and subtracts up to half as jitter.
func reconnectDelay(lo, hi time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := hi
	if attempt < 32 {
		if exp := lo << (attempt - 1); exp > 0 && exp < hi {
			d = exp
		}
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

// rateWindow counts events over the trailing second in 100ms slots.
type rateWindow struct {
	mu    sync.Mutex
	now   func() time.Time
	slots [10]int64
	stamp [10]int64
}

func newRateWindow(now func() time.Time) *rateWindow {
	return &rateWindow{now: now}
}

func (r *rateWindow) add(n int64) {
	slot := r.now().UnixMilli() / 100
	i := slot % 10
	r.mu.Lock()
	if r.stamp[i] != slot {
		r.stamp[i] = slot
		r.slots[i] = 0
	}
	r.slots[i] += n
	r.mu.Unlock()
}

func (r *rateWindow) count() int64 {
	slot := r.now().UnixMilli() / 100
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for i := range r.slots {
		if slot-r.stamp[i] < 10 {
			total += r.slots[i]
		}
	}
	return total
}

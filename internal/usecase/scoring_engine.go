package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/services/candles"
	"StockPulse/internal/services/indicators"
	"StockPulse/internal/services/scoring"
	"StockPulse/pkg/events"
	"StockPulse/pkg/logger"
)

// EngineConfig sizes the scoring engine.
type EngineConfig struct {
	Timeframe         domrepo.Timeframe
	Window            int
	RecomputeInterval time.Duration
	Location          *time.Location
}

type EngineOption func(*ScoringEngine)

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *ScoringEngine) { e.now = now }
}

// WithEventBus publishes score updates on bus.
func WithEventBus(bus *events.Bus) EngineOption {
	return func(e *ScoringEngine) { e.bus = bus }
}

// WithScorePublisher forwards score updates to an external sink.
func WithScorePublisher(p domrepo.ScorePublisher) EngineOption {
	return func(e *ScoringEngine) { e.scorePub = p }
}

// WithCandleStore persists every sealed bar.
func WithCandleStore(s domrepo.CandleStore) EngineOption {
	return func(e *ScoringEngine) { e.store = s }
}

// ScoringEngine keeps per-symbol bars, indicators and scores in memory.
type ScoringEngine struct {
	tf       domrepo.Timeframe
	window   int
	interval time.Duration
	loc      *time.Location
	scorer   *scoring.Scorer
	metrics  domrepo.Metrics
	log      *logger.Logger
	now      func() time.Time
	bus      *events.Bus
	scorePub domrepo.ScorePublisher
	store    domrepo.CandleStore

	mu      sync.RWMutex
	symbols map[string]*symbolState
}

type symbolState struct {
	mu sync.Mutex

	agg  *candles.Aggregator
	calc *indicators.Calculator

	ltp       float64
	oi        float64
	day       time.Time
	dayOpen   float64
	dayVolume float64
	updatedAt time.Time

	set   *models.IndicatorSet
	score *models.Score
	dirty bool
}

func NewScoringEngine(cfg EngineConfig, scorer *scoring.Scorer, metrics domrepo.Metrics, log *logger.Logger, opts ...EngineOption) *ScoringEngine {
	if !domrepo.IsValidTimeframe(cfg.Timeframe) {
		cfg.Timeframe = domrepo.DefaultTimeframe()
	}
	if cfg.Window <= 0 {
		cfg.Window = indicators.DefaultWindow
	}
	if cfg.RecomputeInterval <= 0 {
		cfg.RecomputeInterval = time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	e := &ScoringEngine{
		tf:       cfg.Timeframe,
		window:   cfg.Window,
		interval: cfg.RecomputeInterval,
		loc:      cfg.Location,
		scorer:   scorer,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
		symbols:  make(map[string]*symbolState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeframe is the base bar resolution of the engine.
func (e *ScoringEngine) Timeframe() domrepo.Timeframe { return e.tf }

// Track registers symbols so they are known before their first tick.
func (e *ScoringEngine) Track(symbols []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range symbols {
		if _, ok := e.symbols[s]; !ok {
			e.symbols[s] = e.newState(s)
		}
	}
}

func (e *ScoringEngine) newState(symbol string) *symbolState {
	return &symbolState{
		agg:  candles.NewAggregator(symbol, e.tf, e.loc),
		calc: indicators.NewCalculator(e.window),
	}
}

func (e *ScoringEngine) state(symbol string, create bool) *symbolState {
	e.mu.RLock()
	st, ok := e.symbols[symbol]
	e.mu.RUnlock()
	if ok || !create {
		return st
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok = e.symbols[symbol]; !ok {
		st = e.newState(symbol)
		e.symbols[symbol] = st
	}
	return st
}

// Seed warms a symbol with historical bars at the engine timeframe. Bars that
// do not advance the sealed window or break the bounds invariant are skipped.
func (e *ScoringEngine) Seed(ctx context.Context, symbol string, bars []models.Candle) (int, error) {
	st := e.state(symbol, true)

	sorted := make([]models.Candle, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Bucket.Before(sorted[j].Bucket) })

	st.mu.Lock()
	var last time.Time
	if b := st.calc.Bars(); len(b) > 0 {
		last = b[len(b)-1].Bucket
	}
	accepted := 0
	for _, bar := range sorted {
		if bar.Timeframe != "" && bar.Timeframe != string(e.tf) {
			continue
		}
		if bar.Validate() != nil || !bar.Bucket.After(last) {
			continue
		}
		bar.Symbol = symbol
		bar.Timeframe = string(e.tf)
		bar.Sealed = true
		bar.Restore()
		st.calc.Push(bar)
		st.agg.MarkSealed(bar.Bucket)
		last = bar.Bucket
		accepted++

		if st.ltp == 0 || st.updatedAt.Before(bar.Bucket) {
			st.ltp = bar.Close
			st.updatedAt = bar.Bucket
		}
	}
	var sc *models.Score
	if accepted > 0 {
		sc = e.recomputeLocked(symbol, st)
	}
	st.mu.Unlock()

	if sc != nil {
		e.publish(ctx, sc)
	}
	return accepted, nil
}

// Ingest applies a tick. A late tick is rejected with candles.ErrLateTick and
// leaves the symbol untouched.
func (e *ScoringEngine) Ingest(ctx context.Context, t *models.Tick) error {
	if err := t.Validate(); err != nil {
		return err
	}
	start := time.Now()
	st := e.state(t.Symbol, true)

	st.mu.Lock()
	sealed, err := st.agg.Apply(t)
	if err != nil {
		st.mu.Unlock()
		if errors.Is(err, candles.ErrLateTick) {
			e.metrics.RecordDropped("late")
		}
		return fmt.Errorf("ingest %s: %w", t.Symbol, err)
	}

	day := domrepo.TF1d.Truncate(t.Timestamp, e.loc)
	if !day.Equal(st.day) {
		st.day = day
		st.dayOpen = t.Price
		st.dayVolume = 0
	}
	st.dayVolume += t.Volume
	st.ltp = t.Price
	if t.OpenInterest != nil {
		st.oi = *t.OpenInterest
	}
	st.updatedAt = t.Timestamp
	st.dirty = true

	var sc *models.Score
	if sealed != nil {
		st.calc.Push(*sealed)
		sc = e.recomputeLocked(t.Symbol, st)
	}
	st.mu.Unlock()

	e.metrics.RecordLastPrice(t.Symbol, t.Price)
	if sealed != nil {
		e.persist(ctx, []models.Candle{*sealed})
	}
	if sc != nil {
		e.publish(ctx, sc)
	}
	e.metrics.RecordLatency("engine_ingest", time.Since(start).Seconds())
	return nil
}

// Run recomputes dirty symbols every recompute interval until ctx is done.
func (e *ScoringEngine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Flush(ctx)
		}
	}
}

// Flush seals bars whose bucket has ended and rescores every dirty symbol.
func (e *ScoringEngine) Flush(ctx context.Context) {
	now := e.now()

	e.mu.RLock()
	names := make([]string, 0, len(e.symbols))
	states := make([]*symbolState, 0, len(e.symbols))
	for name, st := range e.symbols {
		names = append(names, name)
		states = append(states, st)
	}
	e.mu.RUnlock()

	var sealedBars []models.Candle
	var scores []*models.Score
	for i, st := range states {
		st.mu.Lock()
		if bar := st.agg.SealExpired(now); bar != nil {
			st.calc.Push(*bar)
			sealedBars = append(sealedBars, *bar)
			st.dirty = true
		}
		if st.dirty {
			if sc := e.recomputeLocked(names[i], st); sc != nil {
				scores = append(scores, sc)
			}
		}
		st.mu.Unlock()
	}

	if len(sealedBars) > 0 {
		e.persist(ctx, sealedBars)
	}
	for _, sc := range scores {
		e.publish(ctx, sc)
	}
}

func (e *ScoringEngine) recomputeLocked(symbol string, st *symbolState) *models.Score {
	st.dirty = false
	set, err := st.calc.Compute(symbol, string(e.tf), st.agg.Forming())
	if err != nil {
		return nil
	}
	sc := e.scorer.Score(set)
	if ts := st.updatedAt; !ts.IsZero() {
		sc.Timestamp = ts
	}
	st.set = &set
	st.score = &sc
	out := sc
	return &out
}

func (e *ScoringEngine) publish(ctx context.Context, sc *models.Score) {
	e.metrics.RecordScore(sc.Symbol, sc.Value)
	if e.bus != nil {
		e.bus.Publish(events.TopicScoreUpdated, sc)
	}
	if e.scorePub != nil {
		if err := e.scorePub.PublishScore(ctx, sc); err != nil {
			e.metrics.RecordError("score_publish")
			e.log.Warn("publish score failed", logger.String("symbol", sc.Symbol), logger.Error(err))
		}
	}
}

func (e *ScoringEngine) persist(ctx context.Context, bars []models.Candle) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveCandles(ctx, bars); err != nil {
		e.metrics.RecordError("candle_store")
		e.log.Warn("persist candles failed", logger.Int("bars", len(bars)), logger.Error(err))
	}
}

// Symbols lists every tracked symbol in ascending order.
func (e *ScoringEngine) Symbols() []string {
	e.mu.RLock()
	out := make([]string, 0, len(e.symbols))
	for s := range e.symbols {
		out = append(out, s)
	}
	e.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Snapshot returns the market row of symbol.
func (e *ScoringEngine) Snapshot(symbol string) (models.MarketRow, error) {
	st := e.state(symbol, false)
	if st == nil {
		return models.MarketRow{}, ErrUnknownSymbol
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ltp == 0 {
		return models.MarketRow{}, ErrNoBars
	}
	return e.rowLocked(symbol, st), nil
}

func (e *ScoringEngine) rowLocked(symbol string, st *symbolState) models.MarketRow {
	row := models.MarketRow{
		Symbol:    symbol,
		LTP:       st.ltp,
		Volume:    st.dayVolume,
		OI:        st.oi,
		Signal:    models.SignalNeutral,
		UpdatedAt: st.updatedAt,
	}
	if st.dayOpen > 0 {
		row.Change = round2(st.ltp - st.dayOpen)
		row.ChangePct = round2((st.ltp - st.dayOpen) / st.dayOpen * 100)
	}
	if st.score != nil {
		row.Score = st.score.Value
		row.Confidence = st.score.Confidence
		row.Signal = st.score.Signal
	}
	if st.set != nil {
		row.VWAP = round2(st.set.VWAP.Value)
		row.RSI = round2(st.set.RSI)
	}
	return row
}

// Rows returns one market row per symbol that has a price.
func (e *ScoringEngine) Rows() []models.MarketRow {
	e.mu.RLock()
	names := make([]string, 0, len(e.symbols))
	states := make([]*symbolState, 0, len(e.symbols))
	for name, st := range e.symbols {
		names = append(names, name)
		states = append(states, st)
	}
	e.mu.RUnlock()

	rows := make([]models.MarketRow, 0, len(states))
	for i, st := range states {
		st.mu.Lock()
		if st.ltp > 0 {
			rows = append(rows, e.rowLocked(names[i], st))
		}
		st.mu.Unlock()
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	return rows
}

// Candles returns up to limit bars of symbol at tf, including the forming bar.
// Timeframes coarser than the engine's are resampled.
func (e *ScoringEngine) Candles(symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	if tf == "" {
		tf = e.tf
	}
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("timeframe %q: %w", tf, ErrUnsupportedTimeframe)
	}
	if tf.Duration() < e.tf.Duration() {
		return nil, fmt.Errorf("%s < %s: %w", tf, e.tf, ErrUnsupportedTimeframe)
	}
	st := e.state(symbol, false)
	if st == nil {
		return nil, ErrUnknownSymbol
	}

	st.mu.Lock()
	bars := st.calc.Bars()
	if f := st.agg.Forming(); f != nil {
		bars = append(bars, *f)
	}
	st.mu.Unlock()

	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	if tf != e.tf {
		bars = candles.Resample(bars, tf, e.loc)
	}
	return candles.Tail(bars, limit), nil
}

// Indicators returns the latest IndicatorSet of symbol.
func (e *ScoringEngine) Indicators(symbol string) (models.IndicatorSet, error) {
	st := e.state(symbol, false)
	if st == nil {
		return models.IndicatorSet{}, ErrUnknownSymbol
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.set == nil {
		return models.IndicatorSet{}, ErrNoBars
	}
	return *st.set, nil
}

// Score returns the latest Score of symbol.
func (e *ScoringEngine) Score(symbol string) (models.Score, error) {
	st := e.state(symbol, false)
	if st == nil {
		return models.Score{}, ErrUnknownSymbol
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.score == nil {
		return models.Score{}, ErrNoBars
	}
	return *st.score, nil
}

// LastBar returns the bucket of the newest sealed bar, used to size backfills.
func (e *ScoringEngine) LastBar(symbol string) (time.Time, bool) {
	st := e.state(symbol, false)
	if st == nil {
		return time.Time{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	bars := st.calc.Bars()
	if len(bars) == 0 {
		return time.Time{}, false
	}
	return bars[len(bars)-1].Bucket, true
}

// Window is the number of sealed bars kept per symbol.
func (e *ScoringEngine) Window() int { return e.window }

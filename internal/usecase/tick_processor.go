package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/services/candles"
	"StockPulse/pkg/logger"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"

	DefaultDedupeWindow = 4096

	// maxPendingBatches bounds how many failed batches are held for retry.
	maxPendingBatches = 10
)

// TickSink receives every accepted tick; the scoring engine implements it.
type TickSink interface {
	Ingest(ctx context.Context, t *models.Tick) error
}

// ProcessorStats counts what happened to incoming ticks.
type ProcessorStats struct {
	Accepted   int64
	Duplicates int64
	Late       int64
}

// TickProcessor dedupes ticks, feeds the engine and routes them to the
// configured backend.
type TickProcessor struct {
	engine  TickSink
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	log     *logger.Logger
	backend string
	window  int
	batchSz int
	batchTO time.Duration

	seenMu sync.Mutex
	seen   map[string]*keyRing

	batchMu sync.Mutex
	batch   []*models.Tick

	accepted   atomic.Int64
	duplicates atomic.Int64
	late       atomic.Int64

	runMu  sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewTickProcessor(
	engine TickSink,
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	log *logger.Logger,
	backend string,
	dedupeWindow int,
	batchSz int,
	batchTO time.Duration,
) (*TickProcessor, error) {
	switch backend {
	case BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("backend %s: publisher required", backend)
		}
	case BackendClickHouse:
		if store == nil {
			return nil, fmt.Errorf("backend %s: storage required", backend)
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
	if dedupeWindow <= 0 {
		dedupeWindow = DefaultDedupeWindow
	}
	if batchSz <= 0 {
		batchSz = 500
	}
	if batchTO <= 0 {
		batchTO = time.Second
	}
	return &TickProcessor{
		engine:  engine,
		pub:     pub,
		store:   store,
		metrics: metrics,
		log:     log,
		backend: backend,
		window:  dedupeWindow,
		batchSz: batchSz,
		batchTO: batchTO,
		seen:    make(map[string]*keyRing),
	}, nil
}

// Start flushes the ClickHouse batch every batch timeout until Close. It may
// be called again after Close.
func (p *TickProcessor) Start(ctx context.Context) {
	if p.backend != BackendClickHouse {
		return
	}
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.stopCh != nil {
		return
	}
	stop := make(chan struct{})
	p.stopCh = stop
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.batchTO)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := p.Flush(ctx); err != nil {
					p.log.Warn("tick batch flush failed", logger.Error(err))
				}
			}
		}
	}()
}

// Process handles one tick. Replays are ignored; the engine update is kept
// even when the backend fails, and Redeliver retries only the backend step.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if err := t.Validate(); err != nil {
		p.metrics.RecordError("invalid_tick")
		return err
	}
	if !p.firstSeen(t) {
		p.duplicates.Add(1)
		p.metrics.RecordDropped("duplicate")
		return nil
	}

	start := time.Now()
	if err := p.engine.Ingest(ctx, t); err != nil {
		if !errors.Is(err, candles.ErrLateTick) {
			p.metrics.RecordError("engine")
			return fmt.Errorf("process tick: %w", err)
		}
		p.late.Add(1)
	}
	p.accepted.Add(1)

	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, t)
	case BackendClickHouse:
		err = p.enqueue(ctx, t)
	}
	if err != nil {
		p.metrics.RecordError("backend_" + p.backend)
		return fmt.Errorf("process tick: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, t.Symbol)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// Redeliver retries the backend write of a tick Process already accepted.
// A ClickHouse tick is still held in the pending batch, so only the flush is
// repeated.
func (p *TickProcessor) Redeliver(ctx context.Context, t *models.Tick) error {
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, t)
	case BackendClickHouse:
		err = p.Flush(ctx)
	}
	if err != nil {
		p.metrics.RecordError("backend_" + p.backend)
		return fmt.Errorf("redeliver tick: %w", err)
	}
	p.metrics.RecordMessageSent(p.backend, t.Symbol)
	return nil
}

func (p *TickProcessor) firstSeen(t *models.Tick) bool {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	r, ok := p.seen[t.Symbol]
	if !ok {
		r = newKeyRing(p.window)
		p.seen[t.Symbol] = r
	}
	return r.add(t.Key())
}

func (p *TickProcessor) enqueue(ctx context.Context, t *models.Tick) error {
	p.batchMu.Lock()
	p.batch = append(p.batch, t)
	full := len(p.batch) >= p.batchSz
	p.batchMu.Unlock()
	if full {
		return p.Flush(ctx)
	}
	return nil
}

// Flush writes the pending ClickHouse batch. A failed batch is put back in
// front of newer ticks; beyond maxPendingBatches batches the oldest ticks are
// dropped.
func (p *TickProcessor) Flush(ctx context.Context) error {
	p.batchMu.Lock()
	batch := p.batch
	p.batch = nil
	p.batchMu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	if err := p.store.StoreBatch(ctx, batch); err != nil {
		p.metrics.RecordError("process_batch")
		p.restore(batch)
		return fmt.Errorf("flush %d ticks: %w", len(batch), err)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

func (p *TickProcessor) restore(failed []*models.Tick) {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	p.batch = append(failed, p.batch...)
	if limit := p.batchSz * maxPendingBatches; len(p.batch) > limit {
		over := len(p.batch) - limit
		for i := 0; i < over; i++ {
			p.metrics.RecordDropped("batch_overflow")
		}
		p.batch = append([]*models.Tick(nil), p.batch[over:]...)
	}
}

// Pending is the number of ticks waiting for the next ClickHouse flush.
func (p *TickProcessor) Pending() int {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	return len(p.batch)
}

func (p *TickProcessor) Stats() ProcessorStats {
	return ProcessorStats{
		Accepted:   p.accepted.Load(),
		Duplicates: p.duplicates.Load(),
		Late:       p.late.Load(),
	}
}

func (p *TickProcessor) Backend() string { return p.backend }

// Close stops the flush loop and writes what is pending. The sinks are shared
// and closed by their owner.
func (p *TickProcessor) Close(ctx context.Context) error {
	p.runMu.Lock()
	stop := p.stopCh
	p.stopCh = nil
	p.runMu.Unlock()
	if stop != nil {
		close(stop)
		p.wg.Wait()
	}
	if p.backend == BackendClickHouse {
		return p.Flush(ctx)
	}
	return nil
}

// keyRing remembers the last n keys in insertion order.
type keyRing struct {
	keys map[string]struct{}
	ring []string
	next int
}

func newKeyRing(n int) *keyRing {
	return &keyRing{keys: make(map[string]struct{}, n), ring: make([]string, n)}
}

// add reports whether k was new, evicting the oldest key when full.
func (r *keyRing) add(k string) bool {
	if _, ok := r.keys[k]; ok {
		return false
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.keys, old)
	}
	r.ring[r.next] = k
	r.keys[k] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
	return true
}

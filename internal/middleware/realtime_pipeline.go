package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// Redeliverer is implemented by processors whose Process has side effects
// that must not repeat. Buffered ticks are retried through Redeliver instead.
type Redeliverer interface {
	Redeliver(ctx context.Context, t *models.Tick) error
}

// RealtimePipeline sits between the broker streams and the TickProcessor.
// It validates, throttles per symbol, optionally transforms, and buffers
// ticks for retry while downstream is failing.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics

	maxRPS  float64
	burst   int
	bufSize int
	bufCh   chan *models.Tick

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	started  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	transform func(*models.Tick) *models.Tick
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps ticks per second per symbol. Zero disables throttling.
func WithMaxRPS(n float64, burst int) PipelineOption {
	return func(p *RealtimePipeline) {
		p.maxRPS = n
		if burst > 0 {
			p.burst = burst
		}
	}
}

// WithBufferSize sets the retry buffer size used when downstream fails.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook that rewrites ticks before they are forwarded.
func WithTransform(fn func(*models.Tick) *models.Tick) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   50,
		burst:    50,
		bufSize:  1000,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Tick, p.bufSize)
	return p
}

// Start launches the retry loop for buffered ticks.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.mu.Unlock()

	p.wg.Add(1)
	go p.retryLoop(ctx, stop)
}

// retryLoop re-sends buffered ticks, backing off from 50ms up to 2s while
// downstream keeps failing.
func (p *RealtimePipeline) retryLoop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()
	const minBackoff, maxBackoff = 50 * time.Millisecond, 2 * time.Second
	backoff := minBackoff
	for {
		var t *models.Tick
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case t = <-p.bufCh:
		}

		if err := p.retry(ctx, t); err == nil {
			backoff = minBackoff
			continue
		}
		p.metrics.RecordError("pipeline_flush")
		p.enqueue(t)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (p *RealtimePipeline) retry(ctx context.Context, t *models.Tick) error {
	if r, ok := p.proc.(Redeliverer); ok {
		return r.Redeliver(ctx, t)
	}
	return p.proc.Process(ctx, t)
}

// enqueue parks t for retry, dropping it when the buffer is full.
func (p *RealtimePipeline) enqueue(t *models.Tick) {
	select {
	case p.bufCh <- t:
	default:
		p.metrics.RecordDropped("buffer_full")
	}
}

// Stop ends the retry loop. Buffered ticks stay queued for the next Start.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// Buffered is the number of ticks waiting for retry.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles, and forwards t, buffering it on downstream
// errors.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Tick) error {
	start := time.Now()
	if err := t.Validate(); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := t.Validate(); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(t.Symbol) {
		p.metrics.RecordDropped("throttled")
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.enqueue(t)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *RealtimePipeline) allow(symbol string) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	l, ok := p.limiters[symbol]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.maxRPS), p.burst)
		p.limiters[symbol] = l
	}
	p.mu.Unlock()
	return l.Allow()
}

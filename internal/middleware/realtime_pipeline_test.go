package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/domain/models"
)

type nopMetrics struct {
	mu      sync.Mutex
	dropped map[string]int
}

func (m *nopMetrics) RecordMessageSent(string, string) {}
func (m *nopMetrics) RecordError(string) {}
func (m *nopMetrics) RecordLastPrice(string, float64) {}
func (m *nopMetrics) RecordLatency(string, float64) {}
func (m *nopMetrics) RecordScore(string, float64) {}
func (m *nopMetrics) RecordSessionRemaining(float64) {}
func (m *nopMetrics) RecordConnections(int) {}
func (m *nopMetrics) RecordDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropped == nil {
		m.dropped = map[string]int{}
	}
	m.dropped[reason]++
}

type recorder struct {
	mu    sync.Mutex
	fail  int
	ticks []*models.Tick
}

func (r *recorder) Process(_ context.Context, t *models.Tick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("downstream unavailable")
	}
	r.ticks = append(r.ticks, t)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func tk(sym string, price float64) *models.Tick {
	return &models.Tick{Symbol: sym, Timestamp: time.Now(), Price: price, Volume: 1}
}

func TestPipelineRejectsInvalid(t *testing.T) {
	rec := &recorder{}
	p := NewRealtimePipeline(rec, &nopMetrics{})

	err := p.Process(context.Background(), &models.Tick{Symbol: "NSE:SBIN-EQ", Timestamp: time.Now(), Price: -1})
	assert.ErrorIs(t, err, models.ErrInvalidTick)
	assert.Zero(t, rec.count())
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	rec := &recorder{}
	m := &nopMetrics{}
	p := NewRealtimePipeline(rec, m, WithMaxRPS(1, 2))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Process(context.Background(), tk("NSE:SBIN-EQ", 100)))
	}
	require.NoError(t, p.Process(context.Background(), tk("NSE:TCS-EQ", 100)))

	assert.Equal(t, 3, rec.count(), "burst of 2 for SBIN plus TCS")
	assert.Equal(t, 3, m.dropped["throttled"])
}

func TestPipelineBuffersAndRetries(t *testing.T) {
	rec := &recorder{fail: 2}
	p := NewRealtimePipeline(rec, &nopMetrics{}, WithMaxRPS(0, 0))

	err := p.Process(context.Background(), tk("NSE:SBIN-EQ", 100))
	assert.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	assert.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, p.Buffered())
}

func TestPipelineTransform(t *testing.T) {
	rec := &recorder{}
	p := NewRealtimePipeline(rec, &nopMetrics{}, WithTransform(func(t *models.Tick) *models.Tick {
		c := *t
		c.Price = c.Price / 100
		return &c
	}))
	require.NoError(t, p.Process(context.Background(), tk("NSE:SBIN-EQ", 61250)))
	require.Equal(t, 1, rec.count())
	assert.Equal(t, 612.5, rec.ticks[0].Price)
}

// redeliverRecorder counts first deliveries and retries separately.
type redeliverRecorder struct {
	recorder
	retried int
}

func (r *redeliverRecorder) Redeliver(_ context.Context, t *models.Tick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retried++
	r.ticks = append(r.ticks, t)
	return nil
}

func TestPipelineRetriesThroughRedeliver(t *testing.T) {
	rec := &redeliverRecorder{recorder: recorder{fail: 1}}
	p := NewRealtimePipeline(rec, &nopMetrics{})

	assert.Error(t, p.Process(context.Background(), tk("NSE:SBIN-EQ", 100)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.retried, "buffered ticks skip Process on retry")
}

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/domain/models"
	mid "StockPulse/internal/middleware"
	"StockPulse/pkg/logger"
)

func TestNewTickProcessorValidatesBackend(t *testing.T) {
	m := newFakeMetrics()
	_, err := NewTickProcessor(&sinkRecorder{}, nil, nil, m, logger.Nop(), "s3", 0, 0, 0)
	assert.Error(t, err)
	_, err = NewTickProcessor(&sinkRecorder{}, nil, nil, m, logger.Nop(), BackendKafka, 0, 0, 0)
	assert.Error(t, err)
	_, err = NewTickProcessor(&sinkRecorder{}, nil, nil, m, logger.Nop(), BackendClickHouse, 0, 0, 0)
	assert.Error(t, err)
}

func TestTickProcessorDedupes(t *testing.T) {
	sink := &sinkRecorder{}
	m := newFakeMetrics()
	p, err := NewTickProcessor(sink, nil, nil, m, logger.Nop(), BackendMemory, 2, 0, 0)
	require.NoError(t, err)
	ctx := context.Background()
	ts := time.Date(2024, 6, 10, 9, 15, 0, 0, ist)

	a := tickAt(sbin, ts, 100, 1)
	b := tickAt(sbin, ts.Add(time.Second), 100, 1)
	c := tickAt(sbin, ts.Add(2*time.Second), 100, 1)

	require.NoError(t, p.Process(ctx, a))
	require.NoError(t, p.Process(ctx, tickAt(sbin, ts, 100, 1)))
	assert.Equal(t, 1, sink.count(), "replay of the same event is ignored")

	require.NoError(t, p.Process(ctx, b))
	require.NoError(t, p.Process(ctx, c))
	// a fell out of the two-key window
	require.NoError(t, p.Process(ctx, a))
	assert.Equal(t, 4, sink.count())

	st := p.Stats()
	assert.Equal(t, int64(4), st.Accepted)
	assert.Equal(t, int64(1), st.Duplicates)
	assert.Equal(t, 1, m.droppedFor("duplicate"))
}

func TestTickProcessorSeqKey(t *testing.T) {
	sink := &sinkRecorder{}
	p, err := NewTickProcessor(sink, nil, nil, newFakeMetrics(), logger.Nop(), BackendMemory, 0, 0, 0)
	require.NoError(t, err)
	ts := time.Date(2024, 6, 10, 9, 15, 0, 0, ist)

	one := &models.Tick{Symbol: sbin, Timestamp: ts, Price: 100, Volume: 1, Seq: 1}
	two := &models.Tick{Symbol: sbin, Timestamp: ts, Price: 100, Volume: 1, Seq: 2}
	require.NoError(t, p.Process(context.Background(), one))
	require.NoError(t, p.Process(context.Background(), two))
	assert.Equal(t, 2, sink.count(), "distinct sequence numbers are distinct events")
}

func TestTickProcessorKafka(t *testing.T) {
	sink := &sinkRecorder{}
	pub := &fakePublisher{}
	m := newFakeMetrics()
	p, err := NewTickProcessor(sink, pub, nil, m, logger.Nop(), BackendKafka, 0, 0, 0)
	require.NoError(t, err)
	ctx := context.Background()
	ts := time.Date(2024, 6, 10, 9, 15, 0, 0, ist)

	require.NoError(t, p.Process(ctx, tickAt(sbin, ts, 100, 1)))
	assert.Len(t, pub.ticks, 1)

	pub.err = errors.New("broker unavailable")
	err = p.Process(ctx, tickAt(sbin, ts.Add(time.Second), 101, 1))
	assert.Error(t, err)
	assert.Equal(t, 2, sink.count(), "engine update is kept when the backend fails")
	assert.Equal(t, 1, m.errs["backend_kafka"])
}

func TestTickProcessorClickHouseBatches(t *testing.T) {
	sink := &sinkRecorder{}
	store := &fakeStorage{}
	p, err := NewTickProcessor(sink, nil, store, newFakeMetrics(), logger.Nop(), BackendClickHouse, 0, 2, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	p.Start(ctx)
	ts := time.Date(2024, 6, 10, 9, 15, 0, 0, ist)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Process(ctx, tickAt(sbin, ts.Add(time.Duration(i)*time.Second), 100, 1)))
	}
	assert.Equal(t, 1, store.batchCount())

	require.NoError(t, p.Close(ctx))
	assert.Equal(t, 2, store.batchCount(), "close flushes the remainder")
	assert.Len(t, store.batches[1], 1)

	// restartable after close
	p.Start(ctx)
	require.NoError(t, p.Close(ctx))
}

func TestTickProcessorLateTicksStillRouted(t *testing.T) {
	open := time.Date(2024, 6, 10, 9, 15, 0, 0, ist)
	e, _ := newTestEngine(t, newClock(open))
	pub := &fakePublisher{}
	p, err := NewTickProcessor(e, pub, nil, newFakeMetrics(), logger.Nop(), BackendKafka, 0, 0, 0)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, tickAt(sbin, open, 100, 1)))
	require.NoError(t, p.Process(ctx, tickAt(sbin, open.Add(5*time.Minute), 101, 1)))
	require.NoError(t, p.Process(ctx, tickAt(sbin, open.Add(time.Minute), 99, 1)))

	assert.Equal(t, int64(1), p.Stats().Late)
	assert.Len(t, pub.ticks, 3)
}

func TestTickProcessorKafkaRetryAfterOutage(t *testing.T) {
	sink := &sinkRecorder{}
	pub := &fakePublisher{}
	m := newFakeMetrics()
	p, err := NewTickProcessor(sink, pub, nil, m, logger.Nop(), BackendKafka, 0, 0, 0)
	require.NoError(t, err)
	pipe := mid.NewRealtimePipeline(p, m)
	ctx := context.Background()
	ts := time.Date(2024, 6, 10, 9, 15, 0, 0, ist)

	pub.setErr(errors.New("broker unavailable"))
	assert.Error(t, pipe.Process(ctx, tickAt(sbin, ts, 100, 1)))
	assert.Equal(t, 1, pipe.Buffered())

	pub.setErr(nil)
	pipe.Start(ctx)
	defer pipe.Stop()

	require.Eventually(t, func() bool {
		return pub.published() == 1 && pipe.Buffered() == 0
	}, 2*time.Second, 10*time.Millisecond)
	st := p.Stats()
	assert.Equal(t, int64(0), st.Duplicates, "a retried tick is not a replay")
	assert.Equal(t, int64(1), st.Accepted)
	assert.Equal(t, 1, sink.count(), "the engine sees the tick once")
}

func TestTickProcessorClickHouseRetryAfterOutage(t *testing.T) {
	sink := &sinkRecorder{}
	store := &fakeStorage{}
	m := newFakeMetrics()
	p, err := NewTickProcessor(sink, nil, store, m, logger.Nop(), BackendClickHouse, 0, 1, time.Hour)
	require.NoError(t, err)
	pipe := mid.NewRealtimePipeline(p, m)
	ctx := context.Background()
	ts := time.Date(2024, 6, 10, 9, 15, 0, 0, ist)

	store.setErr(errors.New("clickhouse down"))
	assert.Error(t, pipe.Process(ctx, tickAt(sbin, ts, 100, 1)))
	assert.Equal(t, 1, p.Pending(), "failed batch is kept")
	assert.Equal(t, 1, pipe.Buffered())

	store.setErr(nil)
	pipe.Start(ctx)
	defer pipe.Stop()

	require.Eventually(t, func() bool {
		return len(store.storedTicks()) == 1 && pipe.Buffered() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, int64(0), p.Stats().Duplicates)
	assert.Equal(t, 1, sink.count())
}

func TestTickProcessorFlushKeepsFailedBatch(t *testing.T) {
	store := &fakeStorage{}
	m := newFakeMetrics()
	p, err := NewTickProcessor(&sinkRecorder{}, nil, store, m, logger.Nop(), BackendClickHouse, 0, 1, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	ts := time.Date(2024, 6, 10, 9, 15, 0, 0, ist)

	store.setErr(errors.New("clickhouse down"))
	for i := 0; i < 12; i++ {
		assert.Error(t, p.Process(ctx, tickAt(sbin, ts.Add(time.Duration(i)*time.Second), 100, 1)))
	}
	assert.Equal(t, 10, p.Pending(), "held ticks are capped")
	assert.Equal(t, 2, m.droppedFor("batch_overflow"))

	store.setErr(nil)
	require.NoError(t, p.Flush(ctx))
	got := store.storedTicks()
	require.Len(t, got, 10)
	assert.Equal(t, ts.Add(2*time.Second), got[0].Timestamp, "oldest ticks go first")
	assert.Equal(t, ts.Add(11*time.Second), got[9].Timestamp)
	assert.Equal(t, 0, p.Pending())
}

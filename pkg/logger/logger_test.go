package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) snapshot() (string, [][]AggregatedLogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.topic, append([][]AggregatedLogEntry(nil), p.batches...)
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "debug", Format: "json", Writer: &buf})
	require.NoError(t, err)

	l.Named("engine").Info("score updated",
		String("symbol", "NSE:SBIN-EQ"),
		Float64("score", 4.2),
		Int("bars", 60),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "NSE:SBIN-EQ", entry["symbol"])
	assert.Equal(t, 4.2, entry["score"])
	assert.Equal(t, float64(1500), entry["took"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	_, err = New(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "stockpulse.logs", Publisher: pub})

	for i := 0; i < 5; i++ {
		l.Error("stream read failed", String("conn", "0"))
	}
	l.Error("stream read failed", String("conn", "1"))
	l.Warn("not collected")
	assert.Equal(t, 2, l.collector.Pending())

	l.RemoveCollector()

	topic, batches := pub.snapshot()
	assert.Equal(t, "stockpulse.logs", topic)
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	total := 0
	for _, e := range batches[0] {
		total += e.Count
		assert.Equal(t, "error", e.Level)
		assert.Contains(t, e.Caller, "logger_test.go")
	}
	assert.Equal(t, 6, total)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "stockpulse.logs", Publisher: pub, IncludeWarnings: true})
	defer l.RemoveCollector()

	l.Warn("reconnecting", String("conn", "0"))
	l.Error("reconnect failed", Error(errors.New("eof")))

	assert.Eventually(t, func() bool {
		_, batches := pub.snapshot()
		return len(batches) == 1
	}, time.Second, 10*time.Millisecond)

	_, batches := pub.snapshot()
	levels := map[string]interface{}{}
	for _, e := range batches[0] {
		levels[e.Level] = e.Fields
	}
	assert.Contains(t, levels, "warn")
	assert.Equal(t, map[string]interface{}{"error": "eof"}, levels["error"])
}

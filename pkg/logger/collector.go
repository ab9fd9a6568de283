package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Publisher ships aggregated log batches, e.g. to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval    time.Duration // flush interval
	CountThreshold  int           // unique entries that force a flush
	Topic           string
	Publisher       Publisher
	IncludeWarnings bool
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated entries into counted aggregates and publishes
// them from a single goroutine, so a storm of identical errors becomes one
// message with a count.
type LogCollector struct {
	config *CollectionConfig

	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry

	kick      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	c := &LogCollector{
		config:  config,
		entries: make(map[string]*AggregatedLogEntry),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		entry.Count++
		entry.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	full := len(c.entries) >= c.config.CountThreshold
	c.mu.Unlock()

	if full {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// Pending is the number of unique entries waiting for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// entryKey identifies an entry by everything except its timing.
func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", level, caller, message)
	b, _ := json.Marshal(fields) // map keys are sorted
	h.Write(b)
	return string(h.Sum(nil))
}

func (c *LogCollector) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-c.kick:
		case <-c.done:
			c.publish(c.take())
			return
		}
		c.publish(c.take())
	}
}

// take swaps out the pending entries. Without a publisher they are kept.
func (c *LogCollector) take() []AggregatedLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 || c.config.Publisher == nil {
		return nil
	}
	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[string]*AggregatedLogEntry)
	return batch
}

func (c *LogCollector) publish(batch []AggregatedLogEntry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// the logger cannot log its own shipping failures
	if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, batch); err != nil {
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries to %s: %v\n", len(batch), c.config.Topic, err)
	}
}

// Close publishes what is pending and stops the collector. It is idempotent.
func (c *LogCollector) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

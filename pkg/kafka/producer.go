package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer wraps a kafka-go writer.
type Producer struct {
	writer *kafka.Writer
	comp   string
}

// Message is a keyed payload. Values other than []byte and string are JSON
// encoded.
type Message struct {
	Key   []byte
	Value interface{}
}

// ProducerConfig configures the writer. Zero sizes and timeouts fall back to
// defaults; RequiredAcks is taken as given (-1 waits for all replicas).
type ProducerConfig struct {
	Brokers          []string
	RequiredAcks     int
	Compression      string
	MaxAttempts      int
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	BatchSize        int
	BatchBytes       int
	Linger           time.Duration
	Async            bool
	AutoCreateTopics bool

	// KeyedOrdering hashes keys to partitions so one symbol stays ordered.
	KeyedOrdering bool
}

func (c *ProducerConfig) setDefaults() {
	if c.Compression == "" {
		c.Compression = "gzip"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchBytes <= 0 {
		c.BatchBytes = 1 << 20
	}
	if c.Linger <= 0 {
		c.Linger = time.Second
	}
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	cfg.setDefaults()

	bal := kafka.Balancer(&kafka.LeastBytes{})
	if cfg.KeyedOrdering {
		bal = &kafka.Hash{}
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               bal,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            parseCompression(cfg.Compression),
		MaxAttempts:            cfg.MaxAttempts,
		WriteTimeout:           cfg.WriteTimeout,
		ReadTimeout:            cfg.ReadTimeout,
		BatchSize:              cfg.BatchSize,
		BatchBytes:             int64(cfg.BatchBytes),
		BatchTimeout:           cfg.Linger,
		Async:                  cfg.Async,
		AllowAutoTopicCreation: cfg.AutoCreateTopics,
	}

	initMetrics()
	return &Producer{writer: writer, comp: cfg.Compression}, nil
}

// Publish sends one message to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage sends an unkeyed payload. It lets the producer ship
// aggregated logs for pkg/logger.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// PublishBatch sends messages to topic in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := time.Now()
	now := start
	msgs := make([]kafka.Message, 0, len(messages))
	var total int64
	for _, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: now})
		total += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	observeProducer(topic, p.comp, total, len(msgs), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"StockPulse/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	StartOffset int64
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *logger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.GroupID = groupID
	}
}

// WithConsumerStartOffset picks where a new group starts: "earliest" or
// "latest".
func WithConsumerStartOffset(reset string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if reset == "latest" {
			c.StartOffset = kafka.LastOffset
		} else {
			c.StartOffset = kafka.FirstOffset
		}
	}
}

// WithConsumerWorkers sets number of worker goroutines.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(attempts int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = attempts
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ sets a Kafka topic name for DLQ.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Logger = l
	}
}

// Consumer reads registered topics into a worker pool. Messages of one
// partition are handled one at a time; failed messages are retried with
// jittered backoff and then sent to the DLQ.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      *kafka.Writer

	msgChan  chan *message
	stopChan chan struct{}
	stopOnce sync.Once
	readWG   sync.WaitGroup
	workWG   sync.WaitGroup

	partMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex
}

type message struct {
	topic string
	km    kafka.Message
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "stockpulse",
		StartOffset: kafka.FirstOffset,
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	c := &Consumer{
		cfg:       cfg,
		log:       log.Named("kafka-consumer"),
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		hook:      NoopHook{},
		msgChan:   make(chan *message, cfg.BufferSize),
		stopChan:  make(chan struct{}),
		partLocks: make(map[string]map[int]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	initMetrics()
	return c, nil
}

// RegisterHandler registers handler for its topic. A second handler for the
// same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets the lifecycle hook. Call before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and launches the workers.
// Handlers receive ctx.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			StartOffset: c.cfg.StartOffset,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
		})
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWG.Add(1)
		go c.worker(ctx)
	}
	for topic, reader := range c.readers {
		c.readWG.Add(1)
		go c.consume(topic, reader)
	}
	c.log.Info("started", logger.Int("topics", len(c.readers)), logger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop stops reading, drains the queue and closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		// readers are the only senders on msgChan
		stopErr = waitGroup(ctx, &c.readWG)
		if stopErr == nil {
			close(c.msgChan)
			stopErr = waitGroup(ctx, &c.workWG)
		}
		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("close reader failed", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("close dlq writer failed", logger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("stopped")
		}
	})
	return stopErr
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) consume(topic string, reader *kafka.Reader) {
	defer c.readWG.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.stopChan
		cancel()
	}()

	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				c.log.Warn("fetch failed", logger.String("topic", topic), logger.Error(err))
			}
			select {
			case <-time.After(backoffWithJitter(100*time.Millisecond, time.Second, 1)):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case c.msgChan <- &message{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-c.stopChan:
			return
		}
	}
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.workWG.Done()
	for msg := range c.msgChan {
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panic", logger.String("topic", msg.topic), logger.Any("panic", r))
		}
		consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}()

	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	var err error
	attempts := 0
	for {
		attempts++
		hctx, hmsg, data, berr := c.hook.BeforeHandle(ctx, msg.topic, msg.km, msg.km.Value)
		if berr != nil {
			err = berr
			break
		}
		err = handler.Handle(hctx, data)
		c.hook.AfterHandle(hctx, msg.topic, hmsg, data, err)
		if err == nil || attempts > c.cfg.RetryMax {
			break
		}
		c.hook.OnError(hctx, msg.topic, hmsg, data, err)
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-ctx.Done():
			return
		}
	}

	if err != nil {
		c.log.Error("message failed",
			logger.String("topic", msg.topic),
			logger.Int("partition", msg.km.Partition),
			logger.Int64("offset", msg.km.Offset),
			logger.Int("attempts", attempts),
			logger.Error(err),
		)
		if !c.toDLQ(msg, err) {
			// leave uncommitted so the group redelivers it
			return
		}
	}
	if reader := c.readers[msg.topic]; reader != nil {
		_ = c.commitWithRetry(reader, msg.km, 3)
	}
}

// toDLQ reports whether the message was parked in the dead letter topic.
func (c *Consumer) toDLQ(msg *message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.km.Key,
		Value: msg.km.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error("dlq write failed", logger.String("dlq", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	consumerDLQTotal.WithLabelValues(msg.topic).Inc()
	return true
}

func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, attempts int) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Warn("commit failed", logger.String("topic", km.Topic), logger.Int64("offset", km.Offset), logger.Error(err))
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()
	m, ok := c.partLocks[topic]
	if !ok {
		m = make(map[int]*sync.Mutex)
		c.partLocks[topic] = m
	}
	l, ok := m[partition]
	if !ok {
		l = &sync.Mutex{}
		m[partition] = l
	}
	return l
}

// backoffWithJitter doubles lo per attempt up to hi and takes off up to half.
func backoffWithJitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := hi
	if attempt < 32 {
		if d := lo << uint(attempt-1); d > 0 && d < hi {
			exp = d
		}
	}
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}

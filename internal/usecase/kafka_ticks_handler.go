package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	pkgkafka "StockPulse/pkg/kafka"
)

// KafkaTicksHandler consumes published ticks and writes them to storage.
type KafkaTicksHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// Handle decodes one models.Tick JSON message. Invalid payloads are returned
// as errors so the consumer routes them to the DLQ.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var t models.Tick
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	if err := t.Validate(); err != nil {
		h.metrics.RecordError("consumer_invalid")
		return err
	}
	h.metrics.RecordLatency("ingest_e2e", time.Since(t.Timestamp).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &t)
	h.metrics.RecordLatency("ch_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent(BackendClickHouse, t.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)

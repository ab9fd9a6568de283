package repository

import (
	"context"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/domain/repository"
	pkgkafka "StockPulse/pkg/kafka"
)

// KafkaPublisher sends ticks and scores as JSON keyed by symbol, so one
// symbol stays on one partition.
type KafkaPublisher struct {
	producer    *pkgkafka.Producer
	ticksTopic  string
	scoresTopic string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, ticksTopic, scoresTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, ticksTopic: ticksTopic, scoresTopic: scoresTopic}
}

var (
	_ repository.Publisher      = (*KafkaPublisher)(nil)
	_ repository.ScorePublisher = (*KafkaPublisher)(nil)
)

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.producer.Publish(ctx, p.ticksTopic, []byte(t.Symbol), t)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ticks))
	for i, t := range ticks {
		msgs[i] = pkgkafka.Message{Key: []byte(t.Symbol), Value: t}
	}
	return p.producer.PublishBatch(ctx, p.ticksTopic, msgs)
}

// PublishScore is a no-op without a scores topic.
func (p *KafkaPublisher) PublishScore(ctx context.Context, s *models.Score) error {
	if p.scoresTopic == "" {
		return nil
	}
	return p.producer.Publish(ctx, p.scoresTopic, []byte(s.Symbol), s)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

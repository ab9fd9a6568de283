package repository

import (
	"context"
	"time"

	"StockPulse/internal/domain/models"
)

// MarketStream is one broker WebSocket connection carrying a symbol chunk.
type MarketStream interface {
	Connect(ctx context.Context, accessToken string) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Close() error
	IsConnected() bool
}

// StreamFactory opens a fresh MarketStream per pooled connection.
type StreamFactory func() MarketStream

// HistoryProvider serves historical bars used to warm the scoring engine.
type HistoryProvider interface {
	History(ctx context.Context, accessToken, symbol string, tf Timeframe, from, to time.Time) ([]models.Candle, error)
}

type Publisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

type ScorePublisher interface {
	PublishScore(ctx context.Context, s *models.Score) error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// CandleStore persists sealed bars and serves them back by range.
type CandleStore interface {
	SaveCandles(ctx context.Context, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}

// SessionStore keeps the broker session across restarts. Load returns
// (nil, nil) when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context) error
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordScore(symbol string, value float64)
	RecordSessionRemaining(seconds float64)
	RecordConnections(n int)
	RecordDropped(reason string)
}

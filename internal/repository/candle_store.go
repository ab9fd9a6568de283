package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	applogger "StockPulse/pkg/logger"
)

// CHCandleStore persists sealed bars in ClickHouse.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(db *sql.DB, database string, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{db: db, table: database + "." + CandlesTable, l: l}
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

func (s *CHCandleStore) SaveCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	values := make([]string, 0, len(candles))
	args := make([]interface{}, 0, len(candles)*10)
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			s.l.Warn("skip invalid candle", applogger.Error(err))
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, c.Bucket.UTC(), c.Symbol, c.Timeframe, c.Open, c.High, c.Low, c.Close, c.Volume, c.VWAP, uint32(c.Trades))
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (bucket, symbol, tf, open, high, low, close, volume, vwap, trades) VALUES %s",
		s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save candles: %w", err)
	}
	return nil
}

const candleColumns = "bucket, symbol, tf, open, high, low, close, volume, vwap, trades"

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL
        WHERE symbol = ? AND tf = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC`, candleColumns, s.table)
	out, err := s.query(ctx, q, symbol, string(tf), from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse get_candles failed",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	s.l.Debug("clickhouse get_candles ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// GetLatestNCandles returns the newest n bars in ascending order.
func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL
        WHERE symbol = ? AND tf = ?
        ORDER BY bucket DESC
        LIMIT ?`, candleColumns, s.table)
	out, err := s.query(ctx, q, symbol, string(tf), n)
	if err != nil {
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *CHCandleStore) query(ctx context.Context, q string, args ...interface{}) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		var c models.Candle
		var trades uint32
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Timeframe, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.VWAP, &trades); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Trades = int(trades)
		c.Sealed = true
		c.Restore()
		out = append(out, c)
	}
	return out, rows.Err()
}

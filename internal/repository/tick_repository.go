package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/domain/repository"
)

const insertChunk = 2000

// ClickHouseStorage stores raw ticks in ClickHouse.
type ClickHouseStorage struct {
	db     *sql.DB
	table  string
	source string
	schema []string
}

// NewClickHouseStorage writes to database.ticks. schema, when given, is run by
// Init.
func NewClickHouseStorage(db *sql.DB, database, source string, schema []string) *ClickHouseStorage {
	return &ClickHouseStorage{
		db:     db,
		table:  database + "." + TicksTable,
		source: source,
		schema: schema,
	}
}

var _ repository.Storage = (*ClickHouseStorage)(nil)

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	for _, stmt := range s.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return s.Health(ctx)
}

func (s *ClickHouseStorage) Store(ctx context.Context, t *models.Tick) error {
	return s.StoreBatch(ctx, []*models.Tick{t})
}

// StoreBatch inserts ticks as multi-row VALUES in chunks.
func (s *ClickHouseStorage) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	for start := 0; start < len(ticks); start += insertChunk {
		end := start + insertChunk
		if end > len(ticks) {
			end = len(ticks)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, t := range ticks[start:end] {
			if t.Validate() != nil {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, tickArgs(t, s.source)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, oi, seq, event_id, source) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert ticks: %w", err)
		}
	}
	return nil
}

// tickArgs flattens t in column order. event_id is a name-based UUID of the
// tick key, so replays collapse on merge.
func tickArgs(t *models.Tick, source string) []interface{} {
	var oi interface{}
	if t.OpenInterest != nil {
		oi = *t.OpenInterest
	}
	return []interface{}{
		t.Timestamp.UTC(),
		t.Symbol,
		t.Price,
		t.Volume,
		oi,
		t.Seq,
		EventID(t),
		source,
	}
}

func EventID(t *models.Tick) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(t.Key())).String()
}

// Query returns ticks of symbol in [from, to], newest first.
func (s *ClickHouseStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error) {
	if limit <= 0 {
		limit = 1000
	}
	q := fmt.Sprintf("SELECT symbol, ts, price, volume, oi, seq FROM %s FINAL WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []*models.Tick
	for rows.Next() {
		var t models.Tick
		var oi sql.NullFloat64
		if err := rows.Scan(&t.Symbol, &t.Timestamp, &t.Price, &t.Volume, &oi, &t.Seq); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		if oi.Valid {
			v := oi.Float64
			t.OpenInterest = &v
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseStorage) Close() error { return nil }

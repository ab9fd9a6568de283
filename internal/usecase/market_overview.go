package usecase

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/pkg/cache"
	"StockPulse/pkg/logger"
)

const marketCachePrefix = "market"

// RowSource yields the current market rows.
type RowSource interface {
	Rows() []models.MarketRow
}

// MarketOverviewUseCase serves the filtered, sorted market table.
type MarketOverviewUseCase struct {
	rows  RowSource
	cache cache.Service
	ttl   time.Duration
	log   *logger.Logger
}

// NewMarketOverviewUseCase caches responses in c for ttl. A nil cache or a
// non-positive ttl disables caching.
func NewMarketOverviewUseCase(rows RowSource, c cache.Service, ttl time.Duration, log *logger.Logger) *MarketOverviewUseCase {
	return &MarketOverviewUseCase{rows: rows, cache: c, ttl: ttl, log: log}
}

type MarketQuery struct {
	Q     string
	Sort  string
	Order string
	Limit int
}

type MarketResult struct {
	Total int                `json:"total"`
	Count int                `json:"count"`
	Rows  []models.MarketRow `json:"rows"`
}

func (uc *MarketOverviewUseCase) List(ctx context.Context, q MarketQuery) (*MarketResult, error) {
	if q.Sort == "" {
		q.Sort = "score"
	}
	if q.Order == "" {
		q.Order = "desc"
	}
	key := cache.Key(marketCachePrefix, q.Sort, q.Order, q.Limit, cache.Fingerprint(strings.ToLower(q.Q)))

	if uc.cacheEnabled() {
		var cached MarketResult
		if err := uc.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	all := uc.rows.Rows()
	rows := FilterRows(all, q.Q)
	SortRows(rows, q.Sort, q.Order == "desc")
	total := len(rows)
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	res := &MarketResult{Total: total, Count: len(rows), Rows: rows}

	if uc.cacheEnabled() {
		if err := uc.cache.Set(ctx, key, res, uc.ttl); err != nil {
			uc.log.Warn("market cache set failed", logger.Error(err))
		}
	}
	return res, nil
}

// Invalidate drops every cached market response.
func (uc *MarketOverviewUseCase) Invalidate(ctx context.Context) error {
	if uc.cache == nil {
		return nil
	}
	return uc.cache.DeleteByPattern(ctx, cache.PrefixPattern(marketCachePrefix+":"))
}

func (uc *MarketOverviewUseCase) cacheEnabled() bool {
	return uc.cache != nil && uc.ttl > 0
}

// FilterRows keeps rows whose symbol contains q, ignoring case.
func FilterRows(rows []models.MarketRow, q string) []models.MarketRow {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]models.MarketRow, 0, len(rows))
	for _, r := range rows {
		if q == "" || strings.Contains(strings.ToLower(r.Symbol), q) {
			out = append(out, r)
		}
	}
	return out
}

// SortRows orders rows by field. Ties fall back to symbol ascending whatever
// the direction, so the order is stable across refreshes.
func SortRows(rows []models.MarketRow, field string, desc bool) {
	key := rowKey(field)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if field == "symbol" {
			if desc {
				return a.Symbol > b.Symbol
			}
			return a.Symbol < b.Symbol
		}
		ka, kb := key(a), key(b)
		if ka != kb {
			if desc {
				return ka > kb
			}
			return ka < kb
		}
		return a.Symbol < b.Symbol
	})
}

func rowKey(field string) func(models.MarketRow) float64 {
	switch field {
	case "ltp":
		return func(r models.MarketRow) float64 { return r.LTP }
	case "change":
		return func(r models.MarketRow) float64 { return r.Change }
	case "change_pct":
		return func(r models.MarketRow) float64 { return r.ChangePct }
	case "volume":
		return func(r models.MarketRow) float64 { return r.Volume }
	case "oi":
		return func(r models.MarketRow) float64 { return r.OI }
	case "confidence":
		return func(r models.MarketRow) float64 { return float64(r.Confidence) }
	case "vwap":
		return func(r models.MarketRow) float64 { return r.VWAP }
	case "rsi":
		return func(r models.MarketRow) float64 { return r.RSI }
	default:
		return func(r models.MarketRow) float64 { return r.Score }
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

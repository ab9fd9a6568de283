package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/domain/models"
	"StockPulse/pkg/cache"
	"StockPulse/pkg/logger"
)

type staticRows struct {
	mu   sync.Mutex
	rows []models.MarketRow
}

func (s *staticRows) Rows() []models.MarketRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MarketRow, len(s.rows))
	copy(out, s.rows)
	return out
}

func sampleRows() []models.MarketRow {
	return []models.MarketRow{
		{Symbol: "NSE:TCS-EQ", LTP: 3500, Change: 12, Score: 2.5},
		{Symbol: "NSE:SBIN-EQ", LTP: 612.5, Change: -3, Score: 6.1},
		{Symbol: "NSE:SBICARD-EQ", LTP: 720, Change: 12, Score: -1.2},
		{Symbol: "NSE:INFY-EQ", LTP: 1500, Change: 0, Score: 6.1},
	}
}

func symbolsOf(rows []models.MarketRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Symbol
	}
	return out
}

func TestSortRowsTiesBySymbol(t *testing.T) {
	rows := sampleRows()
	SortRows(rows, "score", true)
	assert.Equal(t, []string{"NSE:INFY-EQ", "NSE:SBIN-EQ", "NSE:TCS-EQ", "NSE:SBICARD-EQ"}, symbolsOf(rows))

	SortRows(rows, "change", false)
	assert.Equal(t, []string{"NSE:SBIN-EQ", "NSE:INFY-EQ", "NSE:SBICARD-EQ", "NSE:TCS-EQ"}, symbolsOf(rows))

	SortRows(rows, "symbol", true)
	assert.Equal(t, []string{"NSE:TCS-EQ", "NSE:SBIN-EQ", "NSE:SBICARD-EQ", "NSE:INFY-EQ"}, symbolsOf(rows))
}

func TestFilterRowsIgnoresCase(t *testing.T) {
	got := FilterRows(sampleRows(), " sbi ")
	assert.Equal(t, []string{"NSE:SBIN-EQ", "NSE:SBICARD-EQ"}, symbolsOf(got))
	assert.Len(t, FilterRows(sampleRows(), ""), 4)
}

func TestMarketListDefaultsAndLimit(t *testing.T) {
	uc := NewMarketOverviewUseCase(&staticRows{rows: sampleRows()}, nil, 0, logger.Nop())
	res, err := uc.List(context.Background(), MarketQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"NSE:INFY-EQ", "NSE:SBIN-EQ"}, symbolsOf(res.Rows))
}

func TestMarketListCaches(t *testing.T) {
	src := &staticRows{rows: sampleRows()}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	uc := NewMarketOverviewUseCase(src, mc, time.Minute, logger.Nop())
	ctx := context.Background()

	first, err := uc.List(ctx, MarketQuery{Q: "SBI"})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Count)

	src.mu.Lock()
	src.rows = src.rows[:1]
	src.mu.Unlock()

	cached, err := uc.List(ctx, MarketQuery{Q: "sbi"})
	require.NoError(t, err)
	assert.Equal(t, 2, cached.Count, "query case does not change the cache key")

	require.NoError(t, uc.Invalidate(ctx))
	fresh, err := uc.List(ctx, MarketQuery{Q: "sbi"})
	require.NoError(t, err)
	assert.Zero(t, fresh.Count)
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/services/candles"
)

const maxCandleLimit = 5000

// CandleSource serves the in-memory window; the scoring engine implements it.
type CandleSource interface {
	Timeframe() domrepo.Timeframe
	Candles(symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error)
}

// CandlesUseCase serves chart bars from the engine window or, for explicit
// ranges, from the candle store.
type CandlesUseCase struct {
	live  CandleSource
	store domrepo.CandleStore
	loc   *time.Location
}

func NewCandlesUseCase(live CandleSource, store domrepo.CandleStore, loc *time.Location) *CandlesUseCase {
	if loc == nil {
		loc = time.UTC
	}
	return &CandlesUseCase{live: live, store: store, loc: loc}
}

type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	From      *time.Time      `json:"from,omitempty"`
	To        *time.Time      `json:"to,omitempty"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	sym, err := models.ParseSymbol(p.Symbol)
	if err != nil {
		return nil, err
	}
	if p.Timeframe == "" {
		p.Timeframe = uc.live.Timeframe()
	}
	if p.Limit <= 0 {
		p.Limit = 75
	}
	if p.Limit > maxCandleLimit {
		p.Limit = maxCandleLimit
	}

	res := &GetCandlesResult{Symbol: sym.String(), Timeframe: string(p.Timeframe)}
	var bars []models.Candle
	if ranged := !p.From.IsZero() || !p.To.IsZero(); ranged && uc.store != nil {
		bars, err = uc.stored(ctx, sym.String(), p)
		if err != nil {
			return nil, err
		}
		res.From, res.To = &p.From, &p.To
	} else {
		bars, err = uc.live.Candles(sym.String(), p.Timeframe, p.Limit)
		if err != nil {
			return nil, err
		}
	}

	res.Candles = bars
	res.Count = len(bars)
	return res, nil
}

// stored reads base-timeframe bars in [From, To] and resamples them.
func (uc *CandlesUseCase) stored(ctx context.Context, symbol string, p GetCandlesParams) ([]models.Candle, error) {
	base := uc.live.Timeframe()
	if !domrepo.IsValidTimeframe(p.Timeframe) || p.Timeframe.Duration() < base.Duration() {
		return nil, fmt.Errorf("%s: %w", p.Timeframe, ErrUnsupportedTimeframe)
	}
	if p.To.IsZero() {
		p.To = time.Now()
	}
	if p.From.After(p.To) {
		return nil, ErrInvalidRange
	}

	bars, err := uc.store.GetCandles(ctx, symbol, p.From, p.To, base)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if p.Timeframe != base {
		bars = candles.Resample(bars, p.Timeframe, uc.loc)
	}
	return candles.Tail(bars, p.Limit), nil
}

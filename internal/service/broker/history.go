package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
	pkghttp "StockPulse/pkg/http"
)

var ErrHistory = errors.New("broker history error")

type HistoryConfig struct {
	BaseURL  string
	RPS      float64
	Burst    int
	Location *time.Location
	Timeout  time.Duration
}

// HistoryClient fetches bars over the broker REST API. Requests share one
// token bucket because the broker limits per app, not per symbol.
type HistoryClient struct {
	baseURL string
	client  *pkghttp.Client
	limiter *rate.Limiter
	loc     *time.Location
}

func NewHistoryClient(cfg HistoryConfig, opts ...pkghttp.ClientOption) *HistoryClient {
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout > 0 {
		opts = append([]pkghttp.ClientOption{pkghttp.WithTimeout(cfg.Timeout)}, opts...)
	}
	return &HistoryClient{
		baseURL: cfg.BaseURL,
		client:  pkghttp.NewClient(opts...),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		loc:     cfg.Location,
	}
}

type historyResponse struct {
	S       string      `json:"s"`
	Message string      `json:"message"`
	Candles [][]float64 `json:"candles"`
}

// History returns sealed bars of symbol in [from, to], oldest first.
func (h *HistoryClient) History(ctx context.Context, accessToken, symbol string, tf drepo.Timeframe, from, to time.Time) ([]models.Candle, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("history rate limit: %w", err)
	}

	var resp historyResponse
	err := h.client.Do(ctx, &pkghttp.Request{
		URL:    h.baseURL + "/data/history",
		Header: map[string]string{"Authorization": "Bearer " + accessToken},
		Query: url.Values{
			"symbol":     {symbol},
			"resolution": {tf.Resolution()},
			"range_from": {strconv.FormatInt(from.Unix(), 10)},
			"range_to":   {strconv.FormatInt(to.Unix(), 10)},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", symbol, err)
	}
	if resp.S != "ok" {
		return nil, fmt.Errorf("%w: %s: %s", ErrHistory, symbol, resp.Message)
	}

	out := make([]models.Candle, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		if len(row) < 6 {
			continue
		}
		c := models.Candle{
			Symbol:    symbol,
			Timeframe: string(tf),
			Bucket:    tf.Truncate(time.Unix(int64(row[0]), 0), h.loc),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
			Trades:    1,
			Sealed:    true,
		}
		c.Restore()
		if c.Validate() != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

var _ drepo.HistoryProvider = (*HistoryClient)(nil)

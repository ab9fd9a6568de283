package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrCandleBounds = errors.New("candle high/low do not bound open/close")

// Candle is an OHLCV bar for one symbol over one timeframe bucket.
type Candle struct {
	Symbol    string    `json:"symbol" csv:"symbol"`
	Timeframe string    `json:"tf" csv:"tf"`
	Bucket    time.Time `json:"bucket" csv:"bucket"`
	Open      float64   `json:"open" csv:"open"`
	High      float64   `json:"high" csv:"high"`
	Low       float64   `json:"low" csv:"low"`
	Close     float64   `json:"close" csv:"close"`
	Volume    float64   `json:"volume" csv:"volume"`
	VWAP      float64   `json:"vwap" csv:"vwap"`
	Trades    int       `json:"trades" csv:"trades"`
	Sealed    bool      `json:"sealed" csv:"sealed"`

	// running sum of price*volume, used to derive VWAP while the bar is open
	pv float64
}

// NewCandle opens a bar from its first tick.
func NewCandle(symbol, tf string, bucket time.Time, price, volume float64) Candle {
	c := Candle{
		Symbol:    symbol,
		Timeframe: tf,
		Bucket:    bucket,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
	}
	c.Add(price, volume)
	c.Trades = 1
	return c
}

// Apply folds a tick price/volume into an open bar.
func (c *Candle) Apply(price, volume float64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Add(price, volume)
	c.Trades++
}

// Add accumulates volume without touching prices.
func (c *Candle) Add(price, volume float64) {
	c.Volume += volume
	c.pv += price * volume
	c.VWAP = c.vwap()
}

func (c *Candle) vwap() float64 {
	if c.Volume <= 0 {
		return c.TypicalPrice()
	}
	return c.pv / c.Volume
}

// TypicalPrice is (H+L+C)/3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Validate enforces Low <= min(Open, Close) <= max(Open, Close) <= High.
func (c Candle) Validate() error {
	if c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) || c.Low > c.High {
		return fmt.Errorf("%w: %s %s o=%g h=%g l=%g c=%g", ErrCandleBounds, c.Symbol, c.Bucket.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close)
	}
	return nil
}

// Merge folds a later bar of the same symbol into c (used for resampling).
func (c *Candle) Merge(o Candle) {
	if o.High > c.High {
		c.High = o.High
	}
	if o.Low < c.Low {
		c.Low = o.Low
	}
	c.Close = o.Close
	c.Trades += o.Trades
	c.Volume += o.Volume
	c.pv += o.VWAP * o.Volume
	c.VWAP = c.vwap()
	c.Sealed = c.Sealed && o.Sealed
}

// Restore recomputes the running price*volume sum for bars loaded from storage.
func (c *Candle) Restore() {
	if c.VWAP == 0 {
		c.VWAP = c.TypicalPrice()
	}
	c.pv = c.VWAP * c.Volume
}

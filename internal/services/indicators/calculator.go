package indicators

import (
	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/features"
)

const (
	DefaultWindow = 200
	RSIPeriod     = 14
	volWindow     = 20
)

// Calculator keeps the incremental indicator state of one symbol. EMA and RSI
// advance only on sealed bars; the forming bar is previewed through Peek so
// reading never disturbs the sealed state. Not safe for concurrent use.
type Calculator struct {
	window int
	bars   []models.Candle
	ema9   *EMA
	ema20  *EMA
	ema50  *EMA
	rsi    *RSI
}

func NewCalculator(window int) *Calculator {
	if window < 1 {
		window = DefaultWindow
	}
	return &Calculator{
		window: window,
		bars:   make([]models.Candle, 0, window),
		ema9:   NewEMA(9),
		ema20:  NewEMA(20),
		ema50:  NewEMA(50),
		rsi:    NewRSI(RSIPeriod),
	}
}

// Push appends a sealed bar.
func (c *Calculator) Push(bar models.Candle) {
	c.ema9.Update(bar.Close)
	c.ema20.Update(bar.Close)
	c.ema50.Update(bar.Close)
	c.rsi.Update(bar.Close)

	c.bars = append(c.bars, bar)
	if over := len(c.bars) - c.window; over > 0 {
		c.bars = append(c.bars[:0], c.bars[over:]...)
	}
}

// Bars returns a copy of the sealed window.
func (c *Calculator) Bars() []models.Candle {
	out := make([]models.Candle, len(c.bars))
	copy(out, c.bars)
	return out
}

func (c *Calculator) Len() int { return len(c.bars) }

// Compute derives the IndicatorSet over the sealed window plus the forming bar
// when one is given.
func (c *Calculator) Compute(symbol, tf string, forming *models.Candle) (models.IndicatorSet, error) {
	bars := c.bars
	if forming != nil {
		bars = make([]models.Candle, 0, len(c.bars)+1)
		bars = append(bars, c.bars...)
		bars = append(bars, *forming)
	}
	if len(bars) == 0 {
		return models.IndicatorSet{}, models.ErrEmptyWindow
	}
	last := bars[len(bars)-1]
	price := last.Close

	var e9, e20, e50, rsi float64
	if forming != nil {
		e9, e20, e50 = c.ema9.Peek(price), c.ema20.Peek(price), c.ema50.Peek(price)
		rsi = c.rsi.Peek(price)
	} else {
		e9, e20, e50 = c.ema9.Value(), c.ema20.Value(), c.ema50.Value()
		rsi = c.rsi.Value()
	}

	rets := features.ComputeLogReturns(bars)
	w := volWindow
	if len(rets) < w {
		w = len(rets)
	}

	return models.IndicatorSet{
		Symbol:    symbol,
		Timeframe: tf,
		Timestamp: last.Bucket,
		Close:     price,
		RSI:       rsi,
		EMA: models.EMAStack{
			EMA9:  e9,
			EMA20: e20,
			EMA50: e50,
			Trend: Trend(e9, e20, e50),
		},
		VWAP:          VWAPIndicator(bars, price),
		Fibonacci:     Fibonacci(bars, price),
		VolumeProfile: VolumeProfile(bars, price, ProfileBins),
		RealizedVol:   features.RealizedVolatility(rets, w, features.BarsPerYearForTF(tf)),
		Bars:          len(bars),
		Warm:          len(bars) >= models.WarmBars,
	}, nil
}

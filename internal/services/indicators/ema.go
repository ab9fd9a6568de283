package indicators

import "StockPulse/internal/domain/models"

// EMA is an incrementally maintained exponential moving average. Until
// period closes have been seen it reports the simple mean of what it has,
// and the SMA of the first period closes seeds the exponential phase.
type EMA struct {
	period int
	alpha  float64
	n      int
	sum    float64
	value  float64
}

func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{period: period, alpha: 2 / float64(period+1)}
}

// Update folds a sealed close into the average.
func (e *EMA) Update(close float64) float64 {
	e.value = e.next(close)
	if e.n < e.period {
		e.sum += close
	}
	e.n++
	return e.value
}

// Peek previews the average with a forming close without mutating state.
func (e *EMA) Peek(close float64) float64 { return e.next(close) }

func (e *EMA) next(close float64) float64 {
	if e.n < e.period {
		return (e.sum + close) / float64(e.n+1)
	}
	return e.alpha*close + (1-e.alpha)*e.value
}

func (e *EMA) Value() float64 { return e.value }

func (e *EMA) Ready() bool { return e.n >= e.period }

// Trend classifies an EMA 9/20/50 stack.
func Trend(ema9, ema20, ema50 float64) models.Trend {
	switch {
	case ema9 > ema20 && ema20 > ema50:
		return models.TrendRising
	case ema9 < ema20 && ema20 < ema50:
		return models.TrendFalling
	default:
		return models.TrendSideways
	}
}

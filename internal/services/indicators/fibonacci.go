package indicators

import (
	"math"

	"StockPulse/internal/domain/models"
)

var FibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// keyFibRatios are the retracements treated as support/resistance.
var keyFibRatios = []float64{0.382, 0.5, 0.618}

// fibProximityBand is the share of the swing range within which close counts
// as sitting on a key level.
const fibProximityBand = 0.1

// Fibonacci computes retracement levels of the window swing and scores close
// by its position in the range and its proximity to the key levels.
func Fibonacci(bars []models.Candle, close float64) models.Fibonacci {
	if len(bars) == 0 {
		return models.Fibonacci{}
	}
	hiIdx, loIdx := 0, 0
	for i, b := range bars {
		if b.High > bars[hiIdx].High {
			hiIdx = i
		}
		if b.Low < bars[loIdx].Low {
			loIdx = i
		}
	}
	high, low := bars[hiIdx].High, bars[loIdx].Low
	dir := 1
	if loIdx > hiIdx {
		dir = -1
	}

	out := models.Fibonacci{SwingHigh: high, SwingLow: low, Direction: dir}
	rng := high - low
	out.Levels = make([]models.FibLevel, len(FibRatios))
	for i, r := range FibRatios {
		out.Levels[i] = models.FibLevel{Ratio: r, Price: fibPrice(high, low, dir, r)}
	}
	if rng <= 0 {
		out.Nearest = high
		return out
	}

	dist := math.Inf(1)
	for _, r := range keyFibRatios {
		lvl := fibPrice(high, low, dir, r)
		if d := math.Abs(close - lvl); d < dist {
			dist = d
			out.Nearest = lvl
		}
	}
	proximity := math.Max(0, 1-dist/(fibProximityBand*rng))
	pos := clamp((close-low)/rng, 0, 1)
	out.Signal = clamp((pos-0.5)*10+float64(dir)*5*proximity, -10, 10)
	return out
}

// fibPrice measures an up swing's retracement down from the high and a down
// swing's retracement up from the low.
func fibPrice(high, low float64, dir int, ratio float64) float64 {
	if dir > 0 {
		return high - (high-low)*ratio
	}
	return low + (high-low)*ratio
}

package scoring

import (
	"fmt"
	"math"

	"StockPulse/internal/domain/models"
)

// highVolatility is the annualized realized volatility flagged as a risk.
const highVolatility = 0.45

// Insights summarizes an IndicatorSet as human readable strengths, neutral
// observations and risks.
func Insights(set models.IndicatorSet, score float64) models.Insights {
	var in models.Insights
	in.Strengths = []string{}
	in.Neutral = []string{}
	in.Risks = []string{}

	switch set.EMA.Trend {
	case models.TrendRising:
		in.Strengths = append(in.Strengths, "EMA 9/20/50 stacked bullish")
	case models.TrendFalling:
		in.Risks = append(in.Risks, "EMA 9/20/50 stacked bearish")
	default:
		in.Neutral = append(in.Neutral, "EMAs not aligned")
	}

	switch {
	case set.VWAP.Value <= 0:
	case set.Close > set.VWAP.Value:
		in.Strengths = append(in.Strengths, fmt.Sprintf("Price %.2f%% above VWAP", set.VWAP.DevPct))
	case set.Close < set.VWAP.Value:
		in.Risks = append(in.Risks, fmt.Sprintf("Price %.2f%% below VWAP", -set.VWAP.DevPct))
	default:
		in.Neutral = append(in.Neutral, "Price at VWAP")
	}

	vp := set.VolumeProfile
	switch {
	case vp.VAH <= vp.VAL:
	case set.Close > vp.VAH:
		in.Strengths = append(in.Strengths, "Breakout above value area")
	case set.Close < vp.VAL:
		in.Risks = append(in.Risks, "Breakdown below value area")
	default:
		in.Neutral = append(in.Neutral, "Trading inside value area")
	}

	fib := set.Fibonacci
	if rng := fib.SwingHigh - fib.SwingLow; rng > 0 && math.Abs(set.Close-fib.Nearest) <= 0.02*rng {
		msg := fmt.Sprintf("Holding Fibonacci level %.2f", fib.Nearest)
		if fib.Direction > 0 {
			in.Strengths = append(in.Strengths, msg)
		} else {
			in.Risks = append(in.Risks, fmt.Sprintf("Rejected at Fibonacci level %.2f", fib.Nearest))
		}
	}

	switch {
	case set.RSI > 70:
		in.Risks = append(in.Risks, fmt.Sprintf("RSI overbought (%.0f)", set.RSI))
	case set.RSI < 30:
		in.Risks = append(in.Risks, fmt.Sprintf("RSI oversold (%.0f)", set.RSI))
	default:
		in.Neutral = append(in.Neutral, "RSI in neutral zone")
	}

	if set.RealizedVol >= highVolatility {
		in.Risks = append(in.Risks, fmt.Sprintf("Elevated realized volatility (%.0f%%)", set.RealizedVol*100))
	}
	if !set.Warm {
		in.Neutral = append(in.Neutral, fmt.Sprintf("Limited history (%d bars)", set.Bars))
	}
	if math.Abs(score) <= 1 {
		in.Neutral = append(in.Neutral, "No directional edge")
	}
	return in
}

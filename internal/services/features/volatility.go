package features

import (
	"math"

	"github.com/montanaflynn/stats"

	"StockPulse/internal/domain/models"
)

// Trading session shape used to annualize: 252 sessions of 375 minutes.
const (
	sessionsPerYear   = 252
	minutesPerSession = 375
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the last
// window returns. Returns 0 when there is not enough data.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sd, err := stats.StandardDeviationSample(logReturns[len(logReturns)-window:])
	if err != nil {
		return 0
	}
	return sd * math.Sqrt(barsPerYear)
}

// BarsPerYearForTF returns the approximate number of bars per year for a timeframe.
func BarsPerYearForTF(tf string) float64 {
	switch tf {
	case "1m":
		return sessionsPerYear * minutesPerSession
	case "5m":
		return sessionsPerYear * minutesPerSession / 5
	case "15m":
		return sessionsPerYear * minutesPerSession / 15
	case "1h":
		return sessionsPerYear * minutesPerSession / 60.0
	case "1d":
		return sessionsPerYear
	default:
		return sessionsPerYear * minutesPerSession
	}
}

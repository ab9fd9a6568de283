package indicators

import (
	"github.com/montanaflynn/stats"

	"StockPulse/internal/domain/models"
)

// vwapSaturationPct is the deviation from VWAP at which the signal saturates.
const vwapSaturationPct = 2.0

// VWAP is the volume weighted typical price of the window. A window without
// volume falls back to the mean typical price.
func VWAP(bars []models.Candle) float64 {
	if len(bars) == 0 {
		return 0
	}
	typical := make(stats.Float64Data, len(bars))
	var pv, vol float64
	for i, b := range bars {
		tp := b.TypicalPrice()
		typical[i] = tp
		pv += tp * b.Volume
		vol += b.Volume
	}
	if vol <= 0 {
		m, _ := typical.Mean()
		return m
	}
	return pv / vol
}

// VWAPIndicator scores close against the window VWAP.
func VWAPIndicator(bars []models.Candle, close float64) models.VWAPIndicator {
	v := VWAP(bars)
	out := models.VWAPIndicator{Value: v}
	if v <= 0 {
		return out
	}
	out.DevPct = (close - v) / v * 100
	out.Signal = clamp(10*out.DevPct/vwapSaturationPct, -10, 10)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

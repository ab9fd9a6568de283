package indicators

import (
	"github.com/montanaflynn/stats"

	"StockPulse/internal/domain/models"
)

const (
	ProfileBins      = 24
	ValueAreaPercent = 0.70
)

// VolumeProfile bins window volume by typical price and derives the point of
// control and the value area holding ValueAreaPercent of volume.
func VolumeProfile(bars []models.Candle, close float64, bins int) models.VolumeProfile {
	if len(bars) == 0 {
		return models.VolumeProfile{}
	}
	if bins < 1 {
		bins = ProfileBins
	}
	low, high := bars[0].Low, bars[0].High
	for _, b := range bars[1:] {
		if b.Low < low {
			low = b.Low
		}
		if b.High > high {
			high = b.High
		}
	}
	if high <= low {
		return models.VolumeProfile{POC: high, VAH: high, VAL: low}
	}

	width := (high - low) / float64(bins)
	vols := make(stats.Float64Data, bins)
	counts := make(stats.Float64Data, bins)
	for _, b := range bars {
		idx := int((b.TypicalPrice() - low) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		vols[idx] += b.Volume
		counts[idx]++
	}
	total, _ := vols.Sum()
	if total <= 0 {
		// no traded volume in the window: profile by bar count instead
		vols = counts
		total, _ = vols.Sum()
	}

	poc := 0
	for i, v := range vols {
		if v > vols[poc] {
			poc = i
		}
	}
	lo, hi := poc, poc
	acc := vols[poc]
	for acc < ValueAreaPercent*total {
		up, down := -1.0, -1.0
		if hi+1 < bins {
			up = vols[hi+1]
		}
		if lo-1 >= 0 {
			down = vols[lo-1]
		}
		if up < 0 && down < 0 {
			break
		}
		if up >= down {
			hi++
			acc += up
		} else {
			lo--
			acc += down
		}
	}

	out := models.VolumeProfile{
		POC: low + (float64(poc)+0.5)*width,
		VAL: low + float64(lo)*width,
		VAH: low + float64(hi+1)*width,
	}
	out.Signal = profileSignal(out, close)
	return out
}

func profileSignal(vp models.VolumeProfile, close float64) float64 {
	va := vp.VAH - vp.VAL
	if va <= 0 {
		return 0
	}
	switch {
	case close > vp.VAH:
		return 5 + 5*clamp((close-vp.VAH)/va, 0, 1)
	case close < vp.VAL:
		return -5 - 5*clamp((vp.VAL-close)/va, 0, 1)
	default:
		return clamp(10*(close-vp.POC)/va, -5, 5)
	}
}

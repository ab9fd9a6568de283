package candles

import (
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
)

// Resample folds ascending bars into the coarser timeframe tf.
func Resample(bars []models.Candle, tf domrepo.Timeframe, loc *time.Location) []models.Candle {
	out := make([]models.Candle, 0, len(bars))
	for _, b := range bars {
		bucket := tf.Truncate(b.Bucket, loc)
		if n := len(out); n > 0 && out[n-1].Bucket.Equal(bucket) {
			out[n-1].Merge(b)
			continue
		}
		nb := b
		nb.Timeframe = string(tf)
		nb.Bucket = bucket
		nb.Restore()
		out = append(out, nb)
	}
	return out
}

// Tail returns at most the last n bars.
func Tail(bars []models.Candle, n int) []models.Candle {
	if n <= 0 || len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

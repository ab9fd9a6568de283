package repository

import "time"

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF1d  Timeframe = "1d"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h, TF1d:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF5m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration is the bucket width.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Resolution is the broker history resolution code (minutes, or "D").
func (tf Timeframe) Resolution() string {
	switch tf {
	case TF1m:
		return "1"
	case TF5m:
		return "5"
	case TF15m:
		return "15"
	case TF1h:
		return "60"
	default:
		return "D"
	}
}

// Truncate returns the start of the bucket holding t. Buckets are aligned to
// wall-clock boundaries in loc, so 1d starts at local midnight.
func (tf Timeframe) Truncate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	if tf == TF1d {
		y, m, d := lt.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	_, off := lt.Zone()
	shift := time.Duration(off) * time.Second
	return lt.Add(shift).Truncate(tf.Duration()).Add(-shift)
}

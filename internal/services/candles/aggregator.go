package candles

import (
	"errors"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
)

var ErrLateTick = errors.New("tick belongs to a sealed bucket")

// Aggregator folds one symbol's ticks into bars of a single timeframe. A bar
// is sealed once a tick for a later bucket arrives or its bucket has ended.
// Ticks for sealed buckets are rejected. Not safe for concurrent use.
type Aggregator struct {
	symbol     string
	tf         domrepo.Timeframe
	loc        *time.Location
	open       *models.Candle
	lastSealed time.Time
}

func NewAggregator(symbol string, tf domrepo.Timeframe, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{symbol: symbol, tf: tf, loc: loc}
}

// Apply folds t into the forming bar. When t opens a new bucket the previous
// bar is sealed and returned.
func (a *Aggregator) Apply(t *models.Tick) (*models.Candle, error) {
	bucket := a.tf.Truncate(t.Timestamp, a.loc)

	if a.open == nil {
		if !a.lastSealed.IsZero() && !bucket.After(a.lastSealed) {
			return nil, ErrLateTick
		}
		a.start(bucket, t)
		return nil, nil
	}

	switch {
	case bucket.Equal(a.open.Bucket):
		a.open.Apply(t.Price, t.Volume)
		return nil, nil
	case bucket.After(a.open.Bucket):
		sealed := a.seal()
		a.start(bucket, t)
		return sealed, nil
	default:
		return nil, ErrLateTick
	}
}

// SealExpired seals the forming bar once now has passed the end of its bucket.
func (a *Aggregator) SealExpired(now time.Time) *models.Candle {
	if a.open == nil || now.Before(a.open.Bucket.Add(a.tf.Duration())) {
		return nil
	}
	return a.seal()
}

// Forming returns a copy of the open bar, or nil.
func (a *Aggregator) Forming() *models.Candle {
	if a.open == nil {
		return nil
	}
	c := *a.open
	return &c
}

// MarkSealed records that bars up to and including bucket are already sealed,
// e.g. after warming up from history.
func (a *Aggregator) MarkSealed(bucket time.Time) {
	if bucket.After(a.lastSealed) {
		a.lastSealed = bucket
	}
	if a.open != nil && !a.open.Bucket.After(a.lastSealed) {
		a.open = nil
	}
}

func (a *Aggregator) start(bucket time.Time, t *models.Tick) {
	c := models.NewCandle(a.symbol, string(a.tf), bucket, t.Price, t.Volume)
	a.open = &c
}

func (a *Aggregator) seal() *models.Candle {
	c := *a.open
	c.Sealed = true
	a.lastSealed = c.Bucket
	a.open = nil
	return &c
}

package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var ErrInvalidTick = errors.New("invalid tick")

// Tick is a single normalized market update for one symbol.
type Tick struct {
	Symbol       string    `json:"symbol"`
	Timestamp    time.Time `json:"ts"`
	Price        float64   `json:"price"`
	Volume       float64   `json:"volume"`
	OpenInterest *float64  `json:"oi,omitempty"`
	Seq          int64     `json:"seq,omitempty"`
}

// Validate checks the fields a tick needs before it may enter the engine.
func (t *Tick) Validate() error {
	switch {
	case t == nil:
		return fmt.Errorf("%w: nil", ErrInvalidTick)
	case t.Symbol == "":
		return fmt.Errorf("%w: symbol empty", ErrInvalidTick)
	case t.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp missing", ErrInvalidTick)
	case t.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidTick)
	case t.Volume < 0:
		return fmt.Errorf("%w: negative volume", ErrInvalidTick)
	case t.OpenInterest != nil && *t.OpenInterest < 0:
		return fmt.Errorf("%w: negative open interest", ErrInvalidTick)
	}
	return nil
}

// Key identifies the market event behind a tick. Replayed ticks share a key.
func (t *Tick) Key() string {
	ns := strconv.FormatInt(t.Timestamp.UnixNano(), 10)
	if t.Seq > 0 {
		return t.Symbol + "|" + ns + "|" + strconv.FormatInt(t.Seq, 10)
	}
	return t.Symbol + "|" + ns + "|" +
		strconv.FormatFloat(t.Price, 'f', -1, 64) + "|" +
		strconv.FormatFloat(t.Volume, 'f', -1, 64)
}

// OI returns the open interest or zero when the feed did not carry one.
func (t *Tick) OI() float64 {
	if t.OpenInterest == nil {
		return 0
	}
	return *t.OpenInterest
}

package models

import (
	"errors"
	"time"
)

var ErrEmptyWindow = errors.New("indicator window is empty")

// Trend is the EMA stack alignment.
type Trend string

const (
	TrendRising   Trend = "RISING"
	TrendFalling  Trend = "FALLING"
	TrendSideways Trend = "SIDEWAYS"
)

// WarmBars is the window length after which every indicator is fully seeded.
const WarmBars = 50

type EMAStack struct {
	EMA9  float64 `json:"ema9"`
	EMA20 float64 `json:"ema20"`
	EMA50 float64 `json:"ema50"`
	Trend Trend   `json:"trend"`
}

type VWAPIndicator struct {
	Value  float64 `json:"value"`
	DevPct float64 `json:"dev_pct"`
	Signal float64 `json:"signal"`
}

type FibLevel struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
}

type Fibonacci struct {
	SwingHigh float64    `json:"swing_high"`
	SwingLow  float64    `json:"swing_low"`
	Direction int        `json:"direction"` // +1 up swing, -1 down swing
	Levels    []FibLevel `json:"levels"`
	Nearest   float64    `json:"nearest"`
	Signal    float64    `json:"signal"`
}

type VolumeProfile struct {
	POC    float64 `json:"poc"`
	VAH    float64 `json:"vah"`
	VAL    float64 `json:"val"`
	Signal float64 `json:"signal"`
}

// IndicatorSet is the derived state of one symbol at one point in time.
type IndicatorSet struct {
	Symbol        string        `json:"symbol"`
	Timeframe     string        `json:"tf"`
	Timestamp     time.Time     `json:"ts"`
	Close         float64       `json:"close"`
	RSI           float64       `json:"rsi"`
	EMA           EMAStack      `json:"ema"`
	VWAP          VWAPIndicator `json:"vwap"`
	Fibonacci     Fibonacci     `json:"fibonacci"`
	VolumeProfile VolumeProfile `json:"volume_profile"`
	RealizedVol   float64       `json:"realized_vol"` // annualized, from log returns
	Bars          int           `json:"bars"`
	Warm          bool          `json:"warm"`
}

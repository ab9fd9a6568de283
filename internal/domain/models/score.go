package models

import (
	"errors"
	"fmt"
	"time"
)

const (
	ScoreMin = -10.0
	ScoreMax = 10.0
)

var ErrScoreRange = errors.New("score out of range")

// SignalClass buckets a score into a discrete call.
type SignalClass string

const (
	SignalStrongBullish SignalClass = "STRONG_BULLISH"
	SignalBullish       SignalClass = "BULLISH"
	SignalNeutral       SignalClass = "NEUTRAL"
	SignalBearish       SignalClass = "BEARISH"
	SignalStrongBearish SignalClass = "STRONG_BEARISH"
)

// ClassifySignal maps a score value to its class.
func ClassifySignal(v float64) SignalClass {
	switch {
	case v > 5:
		return SignalStrongBullish
	case v > 1:
		return SignalBullish
	case v < -5:
		return SignalStrongBearish
	case v < -1:
		return SignalBearish
	default:
		return SignalNeutral
	}
}

// Components are the intermediate terms of the weighting function.
type Components struct {
	VWScore         float64  `json:"vw_score"`
	TrendMultiplier float64  `json:"trend_multiplier"`
	VWAPSignal      float64  `json:"vwap_signal"`
	VPSignal        float64  `json:"vp_signal"`
	FibSignal       float64  `json:"fib_signal"`
	RSIPenalty      *float64 `json:"rsi_penalty"`
}

// FactorScore is one weighted contribution to the composite score.
type FactorScore struct {
	Name     string  `json:"name"`
	Raw      float64 `json:"raw"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
	Percent  float64 `json:"percent"`
}

type Insights struct {
	Strengths []string `json:"strengths"`
	Neutral   []string `json:"neutral"`
	Risks     []string `json:"risks"`
}

// Score is the bounded composite rating of a symbol.
type Score struct {
	Symbol     string        `json:"symbol"`
	Timestamp  time.Time     `json:"ts"`
	Value      float64       `json:"value"`
	Confidence int           `json:"confidence"`
	Signal     SignalClass   `json:"signal"`
	Components Components    `json:"components"`
	Factors    []FactorScore `json:"factors"`
	Insights   Insights      `json:"insights"`
}

// Validate enforces the value and confidence ranges.
func (s *Score) Validate() error {
	if s.Value < ScoreMin || s.Value > ScoreMax {
		return fmt.Errorf("%w: value %g", ErrScoreRange, s.Value)
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("%w: confidence %d", ErrScoreRange, s.Confidence)
	}
	return nil
}

// ClampScore bounds v to [ScoreMin, ScoreMax].
func ClampScore(v float64) float64 {
	if v < ScoreMin {
		return ScoreMin
	}
	if v > ScoreMax {
		return ScoreMax
	}
	return v
}

package scoring

import (
	"math"

	"github.com/montanaflynn/stats"

	"StockPulse/internal/domain/models"
)

// Weights of the volume weighted score components. They sum to 1.
type Weights struct {
	VWAP          float64
	VolumeProfile float64
	Fibonacci     float64
}

func DefaultWeights() Weights {
	return Weights{VWAP: 0.40, VolumeProfile: 0.35, Fibonacci: 0.25}
}

// Option configures Scorer.
type Option func(*Scorer)

// WithWeights overrides the component weights.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

// WithTrendMultipliers sets the boost applied when the EMA trend agrees with
// the score direction and the damping applied when it opposes it.
func WithTrendMultipliers(agree, oppose float64) Option {
	return func(s *Scorer) {
		s.agree = agree
		s.oppose = oppose
	}
}

// WithRSIBands sets the overbought/oversold thresholds.
func WithRSIBands(oversold, overbought float64) Option {
	return func(s *Scorer) {
		s.oversold = oversold
		s.overbought = overbought
	}
}

// Scorer turns an IndicatorSet into a bounded composite Score. It is a pure
// function of its input and safe for concurrent use.
type Scorer struct {
	weights    Weights
	agree      float64
	oppose     float64
	oversold   float64
	overbought float64
	maxPenalty float64
}

func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		weights:    DefaultWeights(),
		agree:      1.3,
		oppose:     0.7,
		oversold:   30,
		overbought: 70,
		maxPenalty: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score rates set. Value lands in [-10, 10] and Confidence in [0, 100].
func (s *Scorer) Score(set models.IndicatorSet) models.Score {
	c := models.Components{
		VWAPSignal: set.VWAP.Signal,
		VPSignal:   set.VolumeProfile.Signal,
		FibSignal:  set.Fibonacci.Signal,
	}
	c.VWScore = s.weights.VWAP*c.VWAPSignal + s.weights.VolumeProfile*c.VPSignal + s.weights.Fibonacci*c.FibSignal
	c.TrendMultiplier = s.trendMultiplier(set.EMA.Trend, c.VWScore)

	raw := c.VWScore * c.TrendMultiplier
	if p, ok := s.rsiPenalty(set.RSI, raw); ok {
		c.RSIPenalty = &p
		raw += p
	}
	value := round2(models.ClampScore(raw))

	return models.Score{
		Symbol:     set.Symbol,
		Timestamp:  set.Timestamp,
		Value:      value,
		Confidence: s.confidence(set, c),
		Signal:     models.ClassifySignal(value),
		Components: c,
		Factors:    s.factors(set, c),
		Insights:   Insights(set, value),
	}
}

func (s *Scorer) trendMultiplier(trend models.Trend, vw float64) float64 {
	if vw == 0 {
		return 1
	}
	switch {
	case trend == models.TrendRising && vw > 0, trend == models.TrendFalling && vw < 0:
		return s.agree
	case trend == models.TrendRising && vw < 0, trend == models.TrendFalling && vw > 0:
		return s.oppose
	default:
		return 1
	}
}

// rsiPenalty pulls an extended score back toward zero when the oscillator is
// stretched in the same direction.
func (s *Scorer) rsiPenalty(rsi, score float64) (float64, bool) {
	switch {
	case rsi > s.overbought && score > 0:
		return -(rsi - s.overbought) / (100 - s.overbought) * s.maxPenalty, true
	case rsi < s.oversold && score < 0:
		return (s.oversold - rsi) / s.oversold * s.maxPenalty, true
	default:
		return 0, false
	}
}

func trendSignal(t models.Trend) float64 {
	switch t {
	case models.TrendRising:
		return 5
	case models.TrendFalling:
		return -5
	default:
		return 0
	}
}

// confidence grows with history depth and with agreement among the signals,
// and shrinks as they disperse.
func (s *Scorer) confidence(set models.IndicatorSet, c models.Components) int {
	signals := stats.Float64Data{c.VWAPSignal, c.VPSignal, c.FibSignal, trendSignal(set.EMA.Trend)}
	signs := make(stats.Float64Data, len(signals))
	for i, v := range signals {
		signs[i] = sign(v)
	}
	meanSign, _ := signs.Mean()
	agreement := math.Abs(meanSign)
	sd, _ := signals.StandardDeviationPopulation()
	dispersion := math.Min(sd/10, 1)
	warm := math.Min(float64(set.Bars)/models.WarmBars, 1)

	conf := int(math.Round(100 * warm * (0.5 + 0.5*agreement) * (1 - 0.5*dispersion)))
	if conf < 0 {
		return 0
	}
	if conf > 100 {
		return 100
	}
	return conf
}

func (s *Scorer) factors(set models.IndicatorSet, c models.Components) []models.FactorScore {
	out := []models.FactorScore{
		factor("VWAP", c.VWAPSignal, s.weights.VWAP),
		factor("Volume Profile", c.VPSignal, s.weights.VolumeProfile),
		factor("Fibonacci", c.FibSignal, s.weights.Fibonacci),
	}
	trend := factor("EMA Trend", trendSignal(set.EMA.Trend), c.TrendMultiplier)
	trend.Weighted = round2(c.VWScore * (c.TrendMultiplier - 1))
	out = append(out, trend)
	if c.RSIPenalty != nil {
		rsi := factor("RSI", *c.RSIPenalty, 1)
		out = append(out, rsi)
	}
	return out
}

func factor(name string, raw, weight float64) models.FactorScore {
	return models.FactorScore{
		Name:     name,
		Raw:      round2(raw),
		Weight:   weight,
		Weighted: round2(raw * weight),
		Percent:  round2((models.ClampScore(raw) - models.ScoreMin) / (models.ScoreMax - models.ScoreMin) * 100),
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

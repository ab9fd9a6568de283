package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/domain/models"
)

func set(vwap, vp, fib float64, trend models.Trend, rsi float64, bars int) models.IndicatorSet {
	return models.IndicatorSet{
		Symbol:        "NSE:RELIANCE-EQ",
		Close:         100,
		RSI:           rsi,
		EMA:           models.EMAStack{Trend: trend},
		VWAP:          models.VWAPIndicator{Value: 99, Signal: vwap},
		VolumeProfile: models.VolumeProfile{POC: 98, VAH: 99, VAL: 97, Signal: vp},
		Fibonacci:     models.Fibonacci{Signal: fib},
		Bars:          bars,
		Warm:          bars >= models.WarmBars,
	}
}

func TestScoreAlignedBullishSaturates(t *testing.T) {
	s := NewScorer().Score(set(10, 10, 10, models.TrendRising, 60, 60))

	assert.Equal(t, models.ScoreMax, s.Value)
	assert.Equal(t, models.SignalStrongBullish, s.Signal)
	assert.InDelta(t, 10, s.Components.VWScore, 1e-9)
	assert.Equal(t, 1.3, s.Components.TrendMultiplier)
	assert.Nil(t, s.Components.RSIPenalty)
	assert.Equal(t, 89, s.Confidence)
	require.NoError(t, s.Validate())
}

func TestScoreOverboughtPenalty(t *testing.T) {
	s := NewScorer().Score(set(5, 5, 5, models.TrendSideways, 85, 60))

	require.NotNil(t, s.Components.RSIPenalty)
	assert.InDelta(t, -1.5, *s.Components.RSIPenalty, 1e-9)
	assert.InDelta(t, 3.5, s.Value, 1e-9)
	assert.Equal(t, models.SignalBullish, s.Signal)
}

func TestScoreOpposingTrendDamps(t *testing.T) {
	s := NewScorer().Score(set(4, 4, 4, models.TrendFalling, 50, 60))
	assert.Equal(t, 0.7, s.Components.TrendMultiplier)
	assert.InDelta(t, 2.8, s.Value, 1e-9)
}

func TestScoreOversoldBearish(t *testing.T) {
	s := NewScorer().Score(set(-4, -4, -4, models.TrendFalling, 15, 60))
	require.NotNil(t, s.Components.RSIPenalty)
	assert.InDelta(t, 1.5, *s.Components.RSIPenalty, 1e-9)
	assert.InDelta(t, -3.7, s.Value, 1e-9)
	assert.Equal(t, models.SignalBearish, s.Signal)
}

func TestScoreAlwaysInRange(t *testing.T) {
	sc := NewScorer(WithTrendMultipliers(2, 0.5))
	levels := []float64{-10, -3, 0, 3, 10}
	trends := []models.Trend{models.TrendRising, models.TrendFalling, models.TrendSideways}
	for _, a := range levels {
		for _, b := range levels {
			for _, c := range levels {
				for _, tr := range trends {
					for _, rsi := range []float64{0, 50, 100} {
						s := sc.Score(set(a, b, c, tr, rsi, 200))
						assert.NoError(t, s.Validate(), "a=%v b=%v c=%v %s rsi=%v", a, b, c, tr, rsi)
					}
				}
			}
		}
	}
}

func TestConfidenceGrowsWithHistory(t *testing.T) {
	sc := NewScorer()
	cold := sc.Score(set(6, 6, 6, models.TrendRising, 55, 5))
	warm := sc.Score(set(6, 6, 6, models.TrendRising, 55, 50))
	assert.LessOrEqual(t, cold.Confidence, 10)
	assert.Greater(t, warm.Confidence, cold.Confidence)

	mixed := sc.Score(set(8, -8, 2, models.TrendSideways, 55, 50))
	assert.Less(t, mixed.Confidence, warm.Confidence)
}

func TestFactors(t *testing.T) {
	s := NewScorer().Score(set(10, -10, 0, models.TrendSideways, 50, 60))
	require.Len(t, s.Factors, 4)
	assert.Equal(t, "VWAP", s.Factors[0].Name)
	assert.Equal(t, 100.0, s.Factors[0].Percent)
	assert.Equal(t, 0.0, s.Factors[1].Percent)
	assert.Equal(t, 50.0, s.Factors[2].Percent)
	assert.InDelta(t, 4.0, s.Factors[0].Weighted, 1e-9)
}

func TestInsights(t *testing.T) {
	in := Insights(set(5, 8, 0, models.TrendRising, 75, 10), 6)
	assert.Contains(t, in.Strengths, "EMA 9/20/50 stacked bullish")
	assert.Contains(t, in.Strengths, "Breakout above value area")
	assert.Contains(t, in.Risks, "RSI overbought (75)")
	assert.Contains(t, in.Neutral, "Limited history (10 bars)")

	bear := Insights(set(-5, -8, 0, models.TrendFalling, 50, 60), -6)
	assert.Contains(t, bear.Risks, "EMA 9/20/50 stacked bearish")
	assert.Contains(t, bear.Neutral, "RSI in neutral zone")
}

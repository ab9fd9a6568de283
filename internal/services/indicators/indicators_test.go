package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/domain/models"
)

const equalityThreshold = 1e-2

func flatBar(ts time.Time, price, volume float64) models.Candle {
	return models.Candle{Symbol: "NSE:TEST-EQ", Timeframe: "5m", Bucket: ts, Open: price, High: price, Low: price, Close: price, Volume: volume, VWAP: price, Sealed: true}
}

func TestRSIWilder(t *testing.T) {
	closes := []float64{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41, 46.22, 45.64}
	expected := []float64{70.46, 66.25, 66.48, 69.35, 66.29, 57.92}

	r := NewRSI(14)
	var got []float64
	for i, c := range closes {
		r.Update(c)
		if i < 14 {
			assert.False(t, r.Ready())
			assert.Equal(t, RSINeutral, r.Value())
			continue
		}
		got = append(got, r.Value())
	}
	require.Len(t, got, len(expected))
	for i := range expected {
		assert.InDelta(t, expected[i], got[i], equalityThreshold, "rsi[%d]", i)
	}
}

func TestRSIPeekDoesNotMutate(t *testing.T) {
	r := NewRSI(3)
	for _, c := range []float64{1, 2, 3, 4} {
		r.Update(c)
	}
	assert.Equal(t, 100.0, r.Value())
	before := r.Value()
	peek := r.Peek(1)
	assert.Less(t, peek, before)
	assert.Equal(t, before, r.Value())
}

func TestRSIFlatClosesStayNeutral(t *testing.T) {
	r := NewRSI(3)
	for i := 0; i < 6; i++ {
		r.Update(100)
	}
	require.True(t, r.Ready())
	assert.Equal(t, RSINeutral, r.Value())

	r.Update(101)
	assert.Equal(t, 100.0, r.Value(), "only gains once prices move up")
}

func TestEMASeedAndSmoothing(t *testing.T) {
	e := NewEMA(3)
	assert.InDelta(t, 1.0, e.Update(1), 1e-9)
	assert.InDelta(t, 1.5, e.Update(2), 1e-9)
	assert.False(t, e.Ready())
	assert.InDelta(t, 2.0, e.Update(3), 1e-9)
	assert.True(t, e.Ready())

	assert.InDelta(t, 3.0, e.Peek(4), 1e-9)
	assert.InDelta(t, 2.0, e.Value(), 1e-9, "peek must not advance state")
	assert.InDelta(t, 3.0, e.Update(4), 1e-9)
}

func TestTrend(t *testing.T) {
	assert.Equal(t, models.TrendRising, Trend(3, 2, 1))
	assert.Equal(t, models.TrendFalling, Trend(1, 2, 3))
	assert.Equal(t, models.TrendSideways, Trend(2, 3, 1))
}

func TestVWAP(t *testing.T) {
	ts := time.Now()
	bars := []models.Candle{flatBar(ts, 100, 1), flatBar(ts, 110, 3)}
	assert.InDelta(t, 107.5, VWAP(bars), 1e-9)

	noVol := []models.Candle{flatBar(ts, 100, 0), flatBar(ts, 110, 0)}
	assert.InDelta(t, 105.0, VWAP(noVol), 1e-9)

	ind := VWAPIndicator([]models.Candle{flatBar(ts, 100, 10)}, 101)
	assert.InDelta(t, 1.0, ind.DevPct, 1e-9)
	assert.InDelta(t, 5.0, ind.Signal, 1e-9)

	ind = VWAPIndicator([]models.Candle{flatBar(ts, 100, 10)}, 90)
	assert.Equal(t, -10.0, ind.Signal)
}

func TestFibonacciUpSwingGoldenRatio(t *testing.T) {
	ts := time.Now()
	bars := []models.Candle{
		{Open: 101, High: 102, Low: 100, Close: 101},
		{Open: 150, High: 170, Low: 140, Close: 160},
		{Open: 190, High: 200, Low: 180, Close: 195, Bucket: ts},
	}
	fib := Fibonacci(bars, 138.2)
	assert.Equal(t, 1, fib.Direction)
	assert.Equal(t, 200.0, fib.SwingHigh)
	assert.Equal(t, 100.0, fib.SwingLow)
	require.Len(t, fib.Levels, len(FibRatios))
	assert.InDelta(t, 138.2, fib.Levels[4].Price, 1e-9)
	assert.InDelta(t, 138.2, fib.Nearest, 1e-9)
	assert.InDelta(t, 3.82, fib.Signal, 1e-9)
}

func TestFibonacciDownSwingAndFlat(t *testing.T) {
	bars := []models.Candle{
		{Open: 195, High: 200, Low: 190, Close: 195},
		{Open: 105, High: 110, Low: 100, Close: 102},
	}
	fib := Fibonacci(bars, 102)
	assert.Equal(t, -1, fib.Direction)
	assert.Less(t, fib.Signal, 0.0)

	flat := Fibonacci([]models.Candle{flatBar(time.Now(), 50, 1)}, 50)
	assert.Zero(t, flat.Signal)
}

func TestVolumeProfile(t *testing.T) {
	ts := time.Now()
	var bars []models.Candle
	for p := 100.0; p <= 110; p++ {
		bars = append(bars, flatBar(ts, p, 1))
	}
	bars = append(bars, flatBar(ts, 105, 100))

	width := 10.0 / ProfileBins
	vp := VolumeProfile(bars, 105, ProfileBins)
	assert.InDelta(t, 105, vp.POC, width)
	assert.LessOrEqual(t, vp.VAL, 105.0)
	assert.GreaterOrEqual(t, vp.VAH, 105.0)
	assert.InDelta(t, 0, VolumeProfile(bars, vp.POC, ProfileBins).Signal, 1e-9)

	assert.Equal(t, 10.0, VolumeProfile(bars, 111, ProfileBins).Signal)
	assert.Equal(t, -10.0, VolumeProfile(bars, 90, ProfileBins).Signal)
}

func TestVolumeProfileValueAreaCoversSeventyPercent(t *testing.T) {
	ts := time.Now()
	var bars []models.Candle
	for i := 0; i < 40; i++ {
		bars = append(bars, flatBar(ts, 100+float64(i%10), float64(1+i%10)))
	}
	vp := VolumeProfile(bars, 105, ProfileBins)

	var in, total float64
	for _, b := range bars {
		total += b.Volume
		if b.Close >= vp.VAL && b.Close <= vp.VAH {
			in += b.Volume
		}
	}
	assert.GreaterOrEqual(t, in/total, ValueAreaPercent)
}

func TestCalculator(t *testing.T) {
	c := NewCalculator(5)
	_, err := c.Compute("NSE:TEST-EQ", "5m", nil)
	assert.ErrorIs(t, err, models.ErrEmptyWindow)

	base := time.Date(2024, 6, 10, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		c.Push(flatBar(base.Add(time.Duration(i)*5*time.Minute), 100+float64(i), 10))
	}
	assert.Equal(t, 5, c.Len(), "window trims to its size")
	assert.Equal(t, 155.0, c.Bars()[0].Close)

	set, err := c.Compute("NSE:TEST-EQ", "5m", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, set.Bars)
	assert.False(t, set.Warm)
	assert.Equal(t, 159.0, set.Close)
	assert.Equal(t, models.TrendRising, set.EMA.Trend)

	forming := flatBar(base.Add(300*time.Minute), 90, 10)
	live, err := c.Compute("NSE:TEST-EQ", "5m", &forming)
	require.NoError(t, err)
	assert.Equal(t, 6, live.Bars)
	assert.Equal(t, 90.0, live.Close)
	assert.Less(t, live.EMA.EMA9, set.EMA.EMA9)

	again, err := c.Compute("NSE:TEST-EQ", "5m", nil)
	require.NoError(t, err)
	assert.Equal(t, set.EMA, again.EMA, "preview leaves sealed state untouched")
}

package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimeframe(t *testing.T) {
	assert.Equal(t, TF5m, NormalizeTimeframe(""))
	assert.Equal(t, TF5m, NormalizeTimeframe("7m"))
	assert.Equal(t, TF1h, NormalizeTimeframe("1h"))
	assert.Equal(t, TF1d, NormalizeTimeframe("1d"))
}

func TestTruncateAlignsToLocalClock(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2024, 6, 10, 9, 47, 31, 0, ist)

	assert.True(t, time.Date(2024, 6, 10, 9, 45, 0, 0, ist).Equal(TF5m.Truncate(ts, ist)))
	assert.True(t, time.Date(2024, 6, 10, 9, 45, 0, 0, ist).Equal(TF15m.Truncate(ts, ist)))
	assert.True(t, time.Date(2024, 6, 10, 9, 0, 0, 0, ist).Equal(TF1h.Truncate(ts, ist)))
	assert.True(t, time.Date(2024, 6, 10, 0, 0, 0, 0, ist).Equal(TF1d.Truncate(ts, ist)))

	// the same instant expressed in UTC lands in the same bucket
	assert.True(t, TF1h.Truncate(ts.UTC(), ist).Equal(TF1h.Truncate(ts, ist)))
}

func TestResolution(t *testing.T) {
	assert.Equal(t, "1", TF1m.Resolution())
	assert.Equal(t, "60", TF1h.Resolution())
	assert.Equal(t, "D", TF1d.Resolution())
}

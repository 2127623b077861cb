package regime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *featureEngine {
	t.Helper()
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	return newFeatureEngine(cfg)
}

func feedFlatBars(e *featureEngine, n int, close, rng, volume float64) {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		bar := Bar{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      close,
			High:      close + rng,
			Low:       close - rng,
			Close:     close,
			Volume:    volume,
		}
		e.observe(bar, close)
	}
}

func TestFeaturesColdStartNeutral(t *testing.T) {
	e := newTestEngine(t)
	bar := Bar{Close: 100, High: 101, Low: 99, Volume: 1000}
	e.observe(bar, 100)
	f := e.compute(bar)

	assert.Equal(t, 0.0, f.VWAPSlope)
	assert.Equal(t, 0.5, f.ATRPercentile)
	assert.Equal(t, 1.0, f.VolatilityRatio)
	assert.Equal(t, 0.0, f.PriceMomentum)
	assert.Equal(t, 0.0, f.VolumeTrend)
}

func TestVWAPSlopeRequiresFullWindow(t *testing.T) {
	e := newTestEngine(t)
	feedFlatBars(e, 19, 100, 1, 1000)
	assert.Equal(t, 0.0, e.vwapSlope())

	feedFlatBars(e, 1, 100, 1, 1000)
	assert.InDelta(t, 0.0, e.vwapSlope(), 1e-12)
}

func TestPriceMomentumWindow(t *testing.T) {
	e := newTestEngine(t)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		close := 100.0 + float64(i)
		e.observe(Bar{Timestamp: ts, Close: close, High: close + 1, Low: close - 1, Volume: 1000}, close)
	}
	// oldest of the 20-bar window is 100, current close 119
	assert.InDelta(t, 0.19, e.priceMomentum(119), 1e-9)
}

func TestVolumeTrendAgainstPriorMean(t *testing.T) {
	e := newTestEngine(t)
	feedFlatBars(e, 9, 100, 1, 100)
	assert.Equal(t, 0.0, e.volumeTrend(200))

	// 10th bar doubles the prior average of 100
	e.observe(Bar{Close: 100, High: 101, Low: 99, Volume: 200}, 100)
	assert.InDelta(t, 1.0, e.volumeTrend(200), 1e-9)
}

func TestVolumeTrendZeroMean(t *testing.T) {
	e := newTestEngine(t)
	feedFlatBars(e, 10, 100, 1, 0)
	assert.Equal(t, 0.0, e.volumeTrend(0))
}

func TestATRPercentileNeutralUnderTenSamples(t *testing.T) {
	e := newTestEngine(t)
	// ATR history starts at bar 15; 23 bars gives only 9 samples.
	feedFlatBars(e, 23, 100, 1, 1000)
	assert.Equal(t, 0.5, e.atrPercentile())
}

func TestATRPercentileConstantRange(t *testing.T) {
	e := newTestEngine(t)
	feedFlatBars(e, 30, 100, 1, 1000)
	// every prior ATR equals the current one
	assert.InDelta(t, 1.0, e.atrPercentile(), 1e-9)
}

func TestATRPercentileShrinkingRange(t *testing.T) {
	e := newTestEngine(t)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		rng := 2.0 - 0.04*float64(i)
		e.observe(Bar{Timestamp: ts, Close: 100, High: 100 + rng, Low: 100 - rng, Volume: 1000}, 100)
	}
	assert.Equal(t, 0.0, e.atrPercentile())
}

func TestVolatilityRatioNeutralUnderTenSamples(t *testing.T) {
	e := newTestEngine(t)
	feedFlatBars(e, 28, 100, 1, 1000)
	assert.Equal(t, 1.0, e.volatilityRatio())
}

func TestOLSSlope(t *testing.T) {
	tests := []struct {
		name string
		y    []float64
		want float64
	}{
		{"linear", []float64{1, 2, 3, 4}, 1.0},
		{"flat", []float64{5, 5, 5, 5}, 0.0},
		{"declining", []float64{10, 8, 6, 4}, -2.0},
		{"short", []float64{1}, 0.0},
		{"empty", nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, olsSlope(tt.y), 1e-9)
		})
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	vol, ok := annualizedVolatility([]float64{100, 100, 100, 100})
	require.True(t, ok)
	assert.Equal(t, 0.0, vol)

	vol, ok = annualizedVolatility([]float64{100, 110, 100, 110})
	require.True(t, ok)
	assert.Greater(t, vol, 0.0)
	assert.False(t, math.IsNaN(vol))

	_, ok = annualizedVolatility([]float64{100})
	assert.False(t, ok)

	_, ok = annualizedVolatility([]float64{100, 0, 100})
	assert.False(t, ok)
}

func TestEngineHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	e := newFeatureEngine(cfg)
	feedFlatBars(e, cfg.MaxHistoryBars+500, 100, 1, 1000)
	assert.Equal(t, cfg.MaxHistoryBars, e.prices.Len())
	assert.Equal(t, cfg.MaxHistoryBars, e.vwaps.Len())
	assert.LessOrEqual(t, e.historicalATR.Len(), cfg.MaxHistoryBars)
	assert.LessOrEqual(t, e.historicalVol.Len(), cfg.MaxHistoryBars)
}

func TestEngineReset(t *testing.T) {
	e := newTestEngine(t)
	feedFlatBars(e, 30, 100, 1, 1000)
	e.reset()
	assert.Equal(t, 0, e.barCount())
	assert.Equal(t, int64(0), e.estimatedBytes())
}

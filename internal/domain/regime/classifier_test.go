package regime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier("BTCUSDT", DefaultConfig(), zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	return c
}

func barAt(i int, close, rng, volume float64) Bar {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return Bar{
		Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
		Open:      close,
		High:      close + rng,
		Low:       close - rng,
		Close:     close,
		Volume:    volume,
	}
}

// uptrendBars is a steady climb with a slowly tightening daily range.
func uptrendBars(n int) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		close := 100.0 + float64(i)*0.3
		rng := 0.5 - 0.004*float64(i)
		bars[i] = barAt(i, close, rng, 1000)
	}
	return bars
}

// oscillatingBars drifts sideways around 100 with an opening volume surge and
// quieting ranges.
func oscillatingBars(n int) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		close := 100.0 + 0.3*math.Sin(float64(i)*0.2)
		rng := 0.3 - 0.003*float64(i)
		volume := 1000.0
		if i < 10 {
			volume = 50000.0
		}
		bars[i] = barAt(i, close, rng, volume)
	}
	return bars
}

// whipsawBars alternates violent swings with widening ranges.
func whipsawBars(n int) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		swing := 3.0 * (1.0 + 0.05*float64(i))
		if i%2 == 1 {
			swing = -swing
		}
		close := 100.0 + swing
		rng := 1.0 + 0.1*float64(i)
		bars[i] = barAt(i, close, rng, 1000)
	}
	return bars
}

func TestColdStartReturnsTransition(t *testing.T) {
	c := newTestClassifier(t)
	res := c.Update(barAt(0, 100, 1, 1000))
	assert.Equal(t, RegimeTransition, res.Regime)
	assert.False(t, res.Degraded)
	assert.Equal(t, RegimeTransition, c.CurrentRegime())
}

func TestUptrendClassifiesTrending(t *testing.T) {
	c := newTestClassifier(t)
	var res UpdateResult
	for _, bar := range uptrendBars(50) {
		res = c.Update(bar)
	}
	assert.Equal(t, RegimeTrending, res.Regime)
	assert.Greater(t, res.Confidence, 0.5)
	assert.GreaterOrEqual(t, math.Abs(res.Features.VWAPSlope), 0.001)
	assert.GreaterOrEqual(t, math.Abs(res.Features.PriceMomentum), 0.02)
}

func TestOscillationClassifiesRanging(t *testing.T) {
	c := newTestClassifier(t)
	var res UpdateResult
	for _, bar := range oscillatingBars(50) {
		res = c.Update(bar)
	}
	assert.Equal(t, RegimeRanging, res.Regime)
	assert.LessOrEqual(t, math.Abs(res.Features.VWAPSlope), 0.0005)
	assert.LessOrEqual(t, math.Abs(res.Features.PriceMomentum), 0.005)
}

func TestWhipsawClassifiesHighVolatility(t *testing.T) {
	c := newTestClassifier(t)
	var res UpdateResult
	for _, bar := range whipsawBars(50) {
		res = c.Update(bar)
	}
	assert.Equal(t, RegimeHighVolatility, res.Regime)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
}

func TestDeterminism(t *testing.T) {
	a := newTestClassifier(t)
	b := newTestClassifier(t)
	bars := append(uptrendBars(30), whipsawBars(30)...)
	for _, bar := range bars {
		ra := a.Update(bar)
		rb := b.Update(bar)
		assert.Equal(t, ra.Regime, rb.Regime)
		assert.Equal(t, ra.Confidence, rb.Confidence)
		assert.Equal(t, ra.Features, rb.Features)
	}
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	c := newTestClassifier(t)
	bars := append(append(uptrendBars(60), whipsawBars(60)...), oscillatingBars(60)...)
	for _, bar := range bars {
		res := c.Update(bar)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
	}
}

func TestHistoryBuffersCapped(t *testing.T) {
	c := newTestClassifier(t)
	for i := 0; i < classificationHistoryCap+200; i++ {
		c.Update(barAt(i, 100+math.Sin(float64(i)), 1, 1000))
	}
	assert.LessOrEqual(t, c.history.Len(), classificationHistoryCap)
	assert.LessOrEqual(t, c.timings.Len(), performanceHistoryCap)
	assert.Greater(t, c.EstimatedMemoryBytes(), int64(0))
}

func TestRegimeStabilityBounds(t *testing.T) {
	c := newTestClassifier(t)

	// No samples yet.
	assert.Equal(t, 0.0, c.RegimeStability(time.Hour))

	c.Update(barAt(0, 100, 1, 1000))
	assert.Equal(t, 0.0, c.RegimeStability(time.Hour))

	for i, bar := range uptrendBars(50) {
		if i == 0 {
			continue
		}
		c.Update(bar)
	}
	stability := c.RegimeStability(time.Hour)
	assert.GreaterOrEqual(t, stability, 0.0)
	assert.LessOrEqual(t, stability, 1.0)
}

func TestRegimeStabilityFromHistory(t *testing.T) {
	c := newTestClassifier(t)
	now := time.Now()

	for i := 0; i < 5; i++ {
		c.history.Append(ClassificationRecord{Timestamp: now, Regime: RegimeRanging, Confidence: 0.7})
	}
	assert.Equal(t, 1.0, c.RegimeStability(time.Hour))

	c.history.Reset()
	regimes := []RegimeType{RegimeRanging, RegimeTrending, RegimeRanging, RegimeTrending}
	for _, r := range regimes {
		c.history.Append(ClassificationRecord{Timestamp: now, Regime: r, Confidence: 0.6})
	}
	assert.Equal(t, 0.0, c.RegimeStability(time.Hour))
}

func TestTransitionMetadata(t *testing.T) {
	c := newTestClassifier(t)
	var changes int
	var lastChange UpdateResult
	for _, bar := range uptrendBars(50) {
		res := c.Update(bar)
		if res.Changed {
			changes++
			lastChange = res
		}
	}
	require.Greater(t, changes, 0)
	assert.Equal(t, RegimeTrending, lastChange.Regime)
	assert.NotEqual(t, lastChange.PreviousRegime, lastChange.Regime)
}

func TestDegradedHoldsPreviousRegime(t *testing.T) {
	c := newTestClassifier(t)
	for _, bar := range uptrendBars(50) {
		c.Update(bar)
	}
	require.Equal(t, RegimeTrending, c.CurrentRegime())

	// Break the engine to force an internal fault on the next update.
	c.engine = nil
	res := c.Update(barAt(50, 115, 0.3, 1000))
	assert.True(t, res.Degraded)
	assert.Equal(t, RegimeTrending, res.Regime)
}

func TestDegradedBeforeAnyClassification(t *testing.T) {
	c := newTestClassifier(t)
	c.engine = nil
	res := c.Update(barAt(0, 100, 1, 1000))
	assert.True(t, res.Degraded)
	assert.Equal(t, RegimeTransition, res.Regime)
}

func TestClassificationHistoryWindow(t *testing.T) {
	c := newTestClassifier(t)
	for _, bar := range uptrendBars(10) {
		c.Update(bar)
	}
	records := c.ClassificationHistory(time.Hour)
	assert.Len(t, records, 10)
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].Timestamp.Before(records[i-1].Timestamp))
	}
	assert.Empty(t, c.ClassificationHistory(0))
}

func TestReset(t *testing.T) {
	c := newTestClassifier(t)
	for _, bar := range uptrendBars(50) {
		c.Update(bar)
	}
	c.Reset()

	assert.Equal(t, RegimeTransition, c.CurrentRegime())
	assert.Equal(t, 0.0, c.Confidence())
	_, ok := c.LastClassificationTime()
	assert.False(t, ok)
	_, ok = c.Features()
	assert.False(t, ok)
	assert.Empty(t, c.ClassificationHistory(time.Hour))
	assert.Equal(t, int64(0), c.EstimatedMemoryBytes())

	res := c.Update(barAt(0, 100, 1, 1000))
	assert.Equal(t, RegimeTransition, res.Regime)
}

func TestPerformanceSummary(t *testing.T) {
	c := newTestClassifier(t)
	assert.Equal(t, PerformanceSummary{}, c.PerformanceSummary())

	for _, bar := range uptrendBars(20) {
		c.Update(bar)
	}
	summary := c.PerformanceSummary()
	assert.Equal(t, 20, summary.Samples)
	assert.GreaterOrEqual(t, summary.MaxMs, summary.AvgMs)
	assert.GreaterOrEqual(t, summary.AvgMs, summary.MinMs)
	assert.GreaterOrEqual(t, summary.MinMs, 0.0)
}

func TestInvalidConfigRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero trending slope", func(c *Config) { c.VWAPSlopeTrendingThreshold = 0 }},
		{"ranging slope above trending", func(c *Config) { c.VWAPSlopeRangingThreshold = 0.01 }},
		{"slope window too small", func(c *Config) { c.VWAPSlopeWindow = 1 }},
		{"atr percentile above one", func(c *Config) { c.ATRHighVolatilityPercentile = 1.5 }},
		{"atr low above high", func(c *Config) { c.ATRLowVolatilityPercentile = 0.9 }},
		{"negative vol ratio", func(c *Config) { c.VolatilityRatioHigh = -1 }},
		{"momentum ranging above trending", func(c *Config) { c.MomentumRangingThreshold = 0.05 }},
		{"zero volume trend", func(c *Config) { c.VolumeTrendThreshold = 0 }},
		{"history below windows", func(c *Config) { c.MaxHistoryBars = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewClassifier("X", cfg, zap.NewNop().Sugar(), nil)
			assert.Error(t, err)
		})
	}
}

func TestReasoningMentionsRegime(t *testing.T) {
	c := newTestClassifier(t)
	var res UpdateResult
	for _, bar := range uptrendBars(50) {
		res = c.Update(bar)
	}
	assert.Contains(t, res.Reasoning, "trending")
}

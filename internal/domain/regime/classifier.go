package regime

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"chronos/pkg/errors"
)

const (
	classificationHistoryCap = 1000
	performanceHistoryCap    = 100

	// A single bar carries no directional information yet.
	minClassifyBars = 2
)

// Classifier is the per-symbol regime state machine. It is not safe for
// concurrent use; the registry service serializes access per symbol.
type Classifier struct {
	symbol string
	cfg    Config

	vwap   *VWAPAccumulator
	engine *featureEngine

	hasClassified bool
	current       RegimeType
	confidence    float64
	lastFeatures  Features
	lastTime      time.Time

	history *Ring[ClassificationRecord]
	timings *Ring[float64]

	log     *zap.SugaredLogger
	tracker errors.Tracker
	now     func() time.Time
}

// NewClassifier builds a classifier for one symbol. Returns an error only on
// a malformed config.
func NewClassifier(symbol string, cfg Config, log *zap.SugaredLogger, tracker errors.Tracker) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		symbol:  symbol,
		cfg:     cfg,
		vwap:    NewVWAPAccumulator(),
		engine:  newFeatureEngine(cfg),
		history: NewRing[ClassificationRecord](classificationHistoryCap),
		timings: NewRing[float64](performanceHistoryCap),
		log:     log.With("symbol", symbol),
		tracker: tracker,
		now:     time.Now,
	}, nil
}

// Update folds one bar into the classifier and returns the classification
// outcome. It never panics outward: an internal fault degrades to the
// previous regime (Transition before any classification) with Degraded set.
func (c *Classifier) Update(bar Bar) (result UpdateResult) {
	start := c.now()

	defer func() {
		if r := recover(); r != nil {
			err := errors.Wrapf(errors.ErrClassificationFault, "update %s: %v", c.symbol, r)
			c.log.Errorw("regime classification fault, holding previous regime",
				"error", err, "bar_time", bar.Timestamp)
			if c.tracker != nil {
				_ = c.tracker.CaptureError(context.Background(), err, map[string]string{
					"symbol":   c.symbol,
					"bar_time": bar.Timestamp.String(),
				})
			}
			result = c.degradedResult(bar, start)
		}
	}()

	vwap := c.vwap.Update(bar)
	c.engine.observe(bar, vwap)

	featStart := c.now()
	features := c.engine.compute(bar)
	featureMs := msSince(c.now(), featStart)

	classifyStart := c.now()
	regime := c.classify(features)
	classifyMs := msSince(c.now(), classifyStart)

	confidence := c.confidenceFor(features, regime)

	previous := c.current
	previousConfidence := c.confidence
	changed := c.hasClassified && regime != previous

	dwellMinutes := 0.0
	if changed {
		if last, ok := c.history.Last(); ok {
			dwellMinutes = c.now().Sub(last.Timestamp).Minutes()
		}
		c.log.Infow("regime changed",
			"from", previous.String(), "to", regime.String(),
			"confidence", confidence, "dwell_minutes", dwellMinutes)
	}

	c.current = regime
	c.confidence = confidence
	c.lastFeatures = features
	c.lastTime = c.now()
	c.hasClassified = true

	c.history.Append(ClassificationRecord{
		Timestamp:  c.lastTime,
		Regime:     regime,
		Confidence: confidence,
	})

	totalMs := msSince(c.now(), start)
	c.timings.Append(totalMs)

	reasoning := c.reasoning(features, regime)
	c.log.Debugw("regime classified",
		"regime", regime.String(), "confidence", confidence, "reasoning", reasoning)

	return UpdateResult{
		Symbol:             c.symbol,
		Regime:             regime,
		Confidence:         confidence,
		Features:           features,
		Reasoning:          reasoning,
		Changed:            changed,
		PreviousRegime:     previous,
		PreviousConfidence: previousConfidence,
		DwellMinutes:       dwellMinutes,
		BarTimestamp:       bar.Timestamp,
		FeatureCalcMs:      featureMs,
		ClassifyMs:         classifyMs,
		TotalMs:            totalMs,
	}
}

// classify applies the transition rules in strict priority order. Volatility
// dominates trend and range signals because extreme moves invalidate slope and
// momentum interpretation.
func (c *Classifier) classify(f Features) RegimeType {
	if c.engine.barCount() < minClassifyBars {
		return RegimeTransition
	}
	if f.ATRPercentile >= c.cfg.ATRHighVolatilityPercentile ||
		f.VolatilityRatio >= c.cfg.VolatilityRatioHigh {
		return RegimeHighVolatility
	}
	if math.Abs(f.VWAPSlope) >= c.cfg.VWAPSlopeTrendingThreshold &&
		math.Abs(f.PriceMomentum) >= c.cfg.MomentumTrendingThreshold {
		return RegimeTrending
	}
	if math.Abs(f.VWAPSlope) <= c.cfg.VWAPSlopeRangingThreshold &&
		math.Abs(f.PriceMomentum) <= c.cfg.MomentumRangingThreshold {
		return RegimeRanging
	}
	return RegimeTransition
}

// confidenceFor scores the classification from feature strength, clamped to
// [0, 1]. Transition keeps the 0.5 base.
func (c *Classifier) confidenceFor(f Features, regime RegimeType) float64 {
	confidence := 0.5

	switch regime {
	case RegimeHighVolatility:
		if f.ATRPercentile >= c.cfg.ATRHighVolatilityPercentile {
			confidence += 0.3
		}
		if f.VolatilityRatio >= c.cfg.VolatilityRatioHigh {
			confidence += 0.2
		}
	case RegimeTrending:
		slopeStrength := math.Min(math.Abs(f.VWAPSlope)/c.cfg.VWAPSlopeTrendingThreshold, 2.0)
		momentumStrength := math.Min(math.Abs(f.PriceMomentum)/c.cfg.MomentumTrendingThreshold, 2.0)
		confidence += (slopeStrength + momentumStrength) * 0.15
	case RegimeRanging:
		slopeStability := 1.0 - math.Min(math.Abs(f.VWAPSlope)/c.cfg.VWAPSlopeRangingThreshold, 1.0)
		momentumStability := 1.0 - math.Min(math.Abs(f.PriceMomentum)/c.cfg.MomentumRangingThreshold, 1.0)
		confidence += (slopeStability + momentumStability) * 0.15
	case RegimeTransition:
	}

	return math.Max(0.0, math.Min(1.0, confidence))
}

// reasoning renders a human-readable explanation of the decision.
func (c *Classifier) reasoning(f Features, regime RegimeType) string {
	var parts []string
	switch regime {
	case RegimeHighVolatility:
		if f.ATRPercentile >= c.cfg.ATRHighVolatilityPercentile {
			parts = append(parts, fmt.Sprintf("ATR percentile %.2f >= %.2f", f.ATRPercentile, c.cfg.ATRHighVolatilityPercentile))
		}
		if f.VolatilityRatio >= c.cfg.VolatilityRatioHigh {
			parts = append(parts, fmt.Sprintf("volatility ratio %.2f >= %.2f", f.VolatilityRatio, c.cfg.VolatilityRatioHigh))
		}
	case RegimeTrending:
		parts = append(parts,
			fmt.Sprintf("|VWAP slope| %.6f >= %.6f", math.Abs(f.VWAPSlope), c.cfg.VWAPSlopeTrendingThreshold),
			fmt.Sprintf("|momentum| %.4f >= %.4f", math.Abs(f.PriceMomentum), c.cfg.MomentumTrendingThreshold))
	case RegimeRanging:
		parts = append(parts,
			fmt.Sprintf("|VWAP slope| %.6f <= %.6f", math.Abs(f.VWAPSlope), c.cfg.VWAPSlopeRangingThreshold),
			fmt.Sprintf("|momentum| %.4f <= %.4f", math.Abs(f.PriceMomentum), c.cfg.MomentumRangingThreshold))
	case RegimeTransition:
		parts = append(parts, "no regime rule matched")
	}
	return regime.String() + ": " + strings.Join(parts, ", ")
}

func (c *Classifier) degradedResult(bar Bar, start time.Time) UpdateResult {
	regime := RegimeTransition
	if c.hasClassified {
		regime = c.current
	}
	return UpdateResult{
		Symbol:       c.symbol,
		Regime:       regime,
		Confidence:   c.confidence,
		Features:     c.lastFeatures,
		Reasoning:    "degraded: internal fault, holding previous regime",
		Degraded:     true,
		BarTimestamp: bar.Timestamp,
		TotalMs:      msSince(c.now(), start),
	}
}

// Symbol returns the symbol this classifier tracks.
func (c *Classifier) Symbol() string {
	return c.symbol
}

// CurrentRegime returns the latest regime, Transition before any bar.
func (c *Classifier) CurrentRegime() RegimeType {
	if !c.hasClassified {
		return RegimeTransition
	}
	return c.current
}

// Confidence returns the latest classification confidence.
func (c *Classifier) Confidence() float64 {
	return c.confidence
}

// LastClassificationTime returns when the classifier last produced a result,
// and false before the first update.
func (c *Classifier) LastClassificationTime() (time.Time, bool) {
	return c.lastTime, c.hasClassified
}

// Features returns the latest feature vector, and false before the first update.
func (c *Classifier) Features() (Features, bool) {
	return c.lastFeatures, c.hasClassified
}

// ClassificationHistory returns decisions within the trailing window, oldest
// first. The result is a snapshot, capped by the history buffer size.
func (c *Classifier) ClassificationHistory(window time.Duration) []ClassificationRecord {
	cutoff := c.now().Add(-window)
	var out []ClassificationRecord
	for _, rec := range c.history.Values() {
		if !rec.Timestamp.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// RegimeStability returns 1 - changes/maxPossible over the trailing window,
// 0 with fewer than two samples in the window.
func (c *Classifier) RegimeStability(window time.Duration) float64 {
	records := c.ClassificationHistory(window)
	if len(records) < 2 {
		return 0.0
	}
	changes := 0
	for i := 1; i < len(records); i++ {
		if records[i].Regime != records[i-1].Regime {
			changes++
		}
	}
	return 1.0 - float64(changes)/float64(len(records)-1)
}

// PerformanceSummary aggregates the capped update-timing buffer.
func (c *Classifier) PerformanceSummary() PerformanceSummary {
	values := c.timings.Values()
	if len(values) == 0 {
		return PerformanceSummary{}
	}
	sum := values[0]
	max := values[0]
	min := values[0]
	for _, v := range values[1:] {
		sum += v
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return PerformanceSummary{
		Samples: len(values),
		AvgMs:   sum / float64(len(values)),
		MaxMs:   max,
		MinMs:   min,
	}
}

// EstimatedMemoryBytes approximates resident history buffer size.
func (c *Classifier) EstimatedMemoryBytes() int64 {
	// ClassificationRecord: timestamp + enum + float64.
	historyBytes := int64(c.history.Len()) * 40
	timingBytes := int64(c.timings.Len()) * 8
	return c.engine.estimatedBytes() + historyBytes + timingBytes
}

// Reset clears all state back to construction-time defaults.
func (c *Classifier) Reset() {
	c.vwap.Reset()
	c.engine.reset()
	c.history.Reset()
	c.timings.Reset()
	c.hasClassified = false
	c.current = RegimeTransition
	c.confidence = 0.0
	c.lastFeatures = Features{}
	c.lastTime = time.Time{}
	c.log.Infow("classifier reset")
}

func msSince(now, start time.Time) float64 {
	return float64(now.Sub(start)) / float64(time.Millisecond)
}

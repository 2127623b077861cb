package regime

import (
	"fmt"
	"time"
)

// Bar is a single OHLCV bar. Immutable value.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TypicalPrice returns (high + low + close) / 3.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3.0
}

// RegimeType defines market regime types. Transition is the zero value and
// the fallback classification.
type RegimeType int

const (
	RegimeTransition RegimeType = iota
	RegimeTrending
	RegimeRanging
	RegimeHighVolatility
)

// Valid checks if regime type is valid
func (r RegimeType) Valid() bool {
	switch r {
	case RegimeTransition, RegimeTrending, RegimeRanging, RegimeHighVolatility:
		return true
	}
	return false
}

// String returns string representation
func (r RegimeType) String() string {
	switch r {
	case RegimeTrending:
		return "trending"
	case RegimeRanging:
		return "ranging"
	case RegimeHighVolatility:
		return "high_volatility"
	case RegimeTransition:
		return "transition"
	}
	return fmt.Sprintf("unknown(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r RegimeType) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid regime type %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RegimeType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "trending":
		*r = RegimeTrending
	case "ranging":
		*r = RegimeRanging
	case "high_volatility":
		*r = RegimeHighVolatility
	case "transition":
		*r = RegimeTransition
	default:
		return fmt.Errorf("unknown regime type %q", text)
	}
	return nil
}

// ParseRegimeType parses a wire/storage representation of a regime type.
func ParseRegimeType(s string) (RegimeType, error) {
	var r RegimeType
	if err := r.UnmarshalText([]byte(s)); err != nil {
		return RegimeTransition, err
	}
	return r, nil
}

// Features is one classification step's feature vector. Ephemeral, never persisted
// as classifier state.
type Features struct {
	VWAPSlope       float64 `json:"vwap_slope"`
	ATRPercentile   float64 `json:"atr_percentile"`
	VolatilityRatio float64 `json:"volatility_ratio"`
	PriceMomentum   float64 `json:"price_momentum"`
	VolumeTrend     float64 `json:"volume_trend"`
}

// UpdateResult is the outcome of one classifier update. Degraded is set when an
// internal fault forced the classifier to hold its previous regime.
type UpdateResult struct {
	Symbol     string
	Regime     RegimeType
	Confidence float64
	Features   Features
	Reasoning  string
	Degraded   bool

	// Transition metadata, populated when the regime changed on this update.
	Changed            bool
	PreviousRegime     RegimeType
	PreviousConfidence float64
	DwellMinutes       float64

	BarTimestamp  time.Time
	FeatureCalcMs float64
	ClassifyMs    float64
	TotalMs       float64
}

// ClassificationRecord is one entry of the classifier's capped decision history.
type ClassificationRecord struct {
	Timestamp  time.Time
	Regime     RegimeType
	Confidence float64
}

// Snapshot is the registry's cached per-symbol view.
type Snapshot struct {
	Symbol     string     `json:"symbol"`
	Regime     RegimeType `json:"regime"`
	Confidence float64    `json:"confidence"`
	LastUpdate time.Time  `json:"last_update"`
}

// Stale reports whether the snapshot is older than maxAge at time now.
// A snapshot that was never updated is always stale.
func (s Snapshot) Stale(now time.Time, maxAge time.Duration) bool {
	if s.LastUpdate.IsZero() {
		return true
	}
	return now.Sub(s.LastUpdate) > maxAge
}

// PerformanceSummary aggregates the classifier's capped timing buffer.
type PerformanceSummary struct {
	Samples int
	AvgMs   float64
	MaxMs   float64
	MinMs   float64
}

// Recommendation maps a regime to strategy gating advice.
type Recommendation struct {
	Strategy       string  `json:"strategy"`
	PositionSizing string  `json:"position_sizing"`
	StopMultiplier float64 `json:"stop_multiplier"`
	Note           string  `json:"note"`
}

// Recommendations returns the strategy guidance for a regime.
func (r RegimeType) Recommendations() Recommendation {
	switch r {
	case RegimeTrending:
		return Recommendation{
			Strategy:       "trend_following",
			PositionSizing: "normal",
			StopMultiplier: 1.0,
			Note:           "ride momentum, trail stops",
		}
	case RegimeRanging:
		return Recommendation{
			Strategy:       "mean_reversion",
			PositionSizing: "normal",
			StopMultiplier: 0.8,
			Note:           "fade extremes, tighten targets",
		}
	case RegimeHighVolatility:
		return Recommendation{
			Strategy:       "defensive",
			PositionSizing: "reduced",
			StopMultiplier: 1.5,
			Note:           "reduce exposure, widen stops",
		}
	case RegimeTransition:
		return Recommendation{
			Strategy:       "wait",
			PositionSizing: "minimal",
			StopMultiplier: 1.0,
			Note:           "regime unclear, avoid new entries",
		}
	}
	return Recommendation{Strategy: "wait", PositionSizing: "minimal", StopMultiplier: 1.0}
}

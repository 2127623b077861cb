package regime

import (
	"fmt"

	"chronos/pkg/errors"
)

// Config holds classification thresholds and window sizes. Loaded once at
// classifier construction and never mutated afterwards.
type Config struct {
	// VWAP slope thresholds
	VWAPSlopeTrendingThreshold float64
	VWAPSlopeRangingThreshold  float64
	VWAPSlopeWindow            int

	// ATR percentile bands
	ATRHighVolatilityPercentile float64
	ATRLowVolatilityPercentile  float64

	// Volatility ratio bands
	VolatilityRatioHigh float64
	VolatilityRatioLow  float64

	// Momentum thresholds
	MomentumTrendingThreshold float64
	MomentumRangingThreshold  float64

	// Volume trend threshold
	VolumeTrendThreshold float64

	// Window sizes
	ATRPeriod        int
	VolatilityWindow int
	MomentumWindow   int
	VolumeWindow     int

	// History retention, in bars
	MaxHistoryBars int
}

// DefaultConfig returns the production threshold set.
func DefaultConfig() Config {
	return Config{
		VWAPSlopeTrendingThreshold:  0.001,
		VWAPSlopeRangingThreshold:   0.0005,
		VWAPSlopeWindow:             20,
		ATRHighVolatilityPercentile: 0.8,
		ATRLowVolatilityPercentile:  0.3,
		VolatilityRatioHigh:         1.5,
		VolatilityRatioLow:          0.7,
		MomentumTrendingThreshold:   0.02,
		MomentumRangingThreshold:    0.005,
		VolumeTrendThreshold:        0.1,
		ATRPeriod:                   14,
		VolatilityWindow:            20,
		MomentumWindow:              20,
		VolumeWindow:                10,
		// 30 days of 5-minute bars
		MaxHistoryBars: 30 * 24 * 12,
	}
}

// Validate fails fast on a malformed threshold set. A broken config would
// silently mis-classify forever, so this is the one hard failure path.
func (c Config) Validate() error {
	if c.VWAPSlopeTrendingThreshold <= 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "vwap slope trending threshold must be positive")
	}
	if c.VWAPSlopeRangingThreshold <= 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "vwap slope ranging threshold must be positive")
	}
	if c.VWAPSlopeRangingThreshold > c.VWAPSlopeTrendingThreshold {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"ranging slope threshold %v exceeds trending threshold %v",
			c.VWAPSlopeRangingThreshold, c.VWAPSlopeTrendingThreshold)
	}
	if c.VWAPSlopeWindow < 2 {
		return errors.Wrap(errors.ErrInvalidConfig, "vwap slope window must be at least 2")
	}
	if c.ATRHighVolatilityPercentile <= 0 || c.ATRHighVolatilityPercentile > 1 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"atr high volatility percentile %v out of (0,1]", c.ATRHighVolatilityPercentile)
	}
	if c.ATRLowVolatilityPercentile < 0 || c.ATRLowVolatilityPercentile > 1 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"atr low volatility percentile %v out of [0,1]", c.ATRLowVolatilityPercentile)
	}
	if c.ATRLowVolatilityPercentile > c.ATRHighVolatilityPercentile {
		return errors.Wrap(errors.ErrInvalidConfig, "atr low percentile exceeds high percentile")
	}
	if c.VolatilityRatioHigh <= 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "volatility ratio high must be positive")
	}
	if c.VolatilityRatioLow <= 0 || c.VolatilityRatioLow > c.VolatilityRatioHigh {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"volatility ratio low %v out of (0, %v]", c.VolatilityRatioLow, c.VolatilityRatioHigh)
	}
	if c.MomentumTrendingThreshold <= 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "momentum trending threshold must be positive")
	}
	if c.MomentumRangingThreshold <= 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "momentum ranging threshold must be positive")
	}
	if c.MomentumRangingThreshold > c.MomentumTrendingThreshold {
		return errors.Wrap(errors.ErrInvalidConfig, "momentum ranging threshold exceeds trending threshold")
	}
	if c.VolumeTrendThreshold <= 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "volume trend threshold must be positive")
	}
	if c.ATRPeriod < 1 {
		return errors.Wrap(errors.ErrInvalidConfig, "atr period must be at least 1")
	}
	if c.VolatilityWindow < 2 {
		return errors.Wrap(errors.ErrInvalidConfig, "volatility window must be at least 2")
	}
	if c.MomentumWindow < 2 {
		return errors.Wrap(errors.ErrInvalidConfig, "momentum window must be at least 2")
	}
	if c.VolumeWindow < 2 {
		return errors.Wrap(errors.ErrInvalidConfig, "volume window must be at least 2")
	}
	if c.MaxHistoryBars < c.VWAPSlopeWindow || c.MaxHistoryBars < c.MomentumWindow ||
		c.MaxHistoryBars < c.VolatilityWindow || c.MaxHistoryBars < c.ATRPeriod+1 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"max history %d smaller than the largest feature window", c.MaxHistoryBars)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("regime.Config{trend_slope=%v range_slope=%v atr_pct=%v vol_ratio=%v trend_mom=%v range_mom=%v}",
		c.VWAPSlopeTrendingThreshold, c.VWAPSlopeRangingThreshold,
		c.ATRHighVolatilityPercentile, c.VolatilityRatioHigh,
		c.MomentumTrendingThreshold, c.MomentumRangingThreshold)
}

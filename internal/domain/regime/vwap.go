package regime

// VWAPAccumulator maintains a running volume-weighted average price from
// typical prices. Not safe for concurrent use; callers serialize per symbol.
type VWAPAccumulator struct {
	cumVolume      float64
	cumVolumePrice float64
	vwap           float64
}

// NewVWAPAccumulator returns an empty accumulator.
func NewVWAPAccumulator() *VWAPAccumulator {
	return &VWAPAccumulator{}
}

// Update folds a bar into the accumulator and returns the current VWAP.
// Bars with negative volume leave state unchanged and return the previous
// value. Zero-volume bars contribute nothing but are accepted.
func (a *VWAPAccumulator) Update(bar Bar) float64 {
	if bar.Volume < 0 {
		return a.vwap
	}
	a.cumVolume += bar.Volume
	a.cumVolumePrice += bar.TypicalPrice() * bar.Volume
	if a.cumVolume > 0 {
		a.vwap = a.cumVolumePrice / a.cumVolume
	}
	return a.vwap
}

// Current returns the last computed VWAP, zero before any volume was seen.
func (a *VWAPAccumulator) Current() float64 {
	return a.vwap
}

// Reset clears all accumulated state.
func (a *VWAPAccumulator) Reset() {
	a.cumVolume = 0
	a.cumVolumePrice = 0
	a.vwap = 0
}

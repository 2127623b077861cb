package regime

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

const annualizationFactor = 252

// featureEngine turns a stream of bars into the classification feature vector.
// All lookback series live in capped ring buffers sized by Config.MaxHistoryBars.
type featureEngine struct {
	cfg Config

	prices  *Ring[float64]
	highs   *Ring[float64]
	lows    *Ring[float64]
	volumes *Ring[float64]
	vwaps   *Ring[float64]

	historicalATR *Ring[float64]
	historicalVol *Ring[float64]
}

func newFeatureEngine(cfg Config) *featureEngine {
	n := cfg.MaxHistoryBars
	return &featureEngine{
		cfg:           cfg,
		prices:        NewRing[float64](n),
		highs:         NewRing[float64](n),
		lows:          NewRing[float64](n),
		volumes:       NewRing[float64](n),
		vwaps:         NewRing[float64](n),
		historicalATR: NewRing[float64](n),
		historicalVol: NewRing[float64](n),
	}
}

// observe records a bar and its VWAP, updating the derived ATR and volatility
// series when enough history exists.
func (e *featureEngine) observe(bar Bar, vwap float64) {
	e.prices.Append(bar.Close)
	e.highs.Append(bar.High)
	e.lows.Append(bar.Low)
	e.volumes.Append(bar.Volume)
	e.vwaps.Append(vwap)

	if e.prices.Len() >= e.cfg.ATRPeriod+1 {
		n := e.cfg.ATRPeriod + 1
		atr := talib.Atr(e.highs.Tail(n), e.lows.Tail(n), e.prices.Tail(n), e.cfg.ATRPeriod)
		v := atr[len(atr)-1]
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			e.historicalATR.Append(v)
		}
	}

	if e.prices.Len() >= e.cfg.VolatilityWindow {
		if vol, ok := annualizedVolatility(e.prices.Tail(e.cfg.VolatilityWindow)); ok {
			e.historicalVol.Append(vol)
		}
	}
}

// compute builds the feature vector for the bar most recently observed.
func (e *featureEngine) compute(bar Bar) Features {
	return Features{
		VWAPSlope:       e.vwapSlope(),
		ATRPercentile:   e.atrPercentile(),
		VolatilityRatio: e.volatilityRatio(),
		PriceMomentum:   e.priceMomentum(bar.Close),
		VolumeTrend:     e.volumeTrend(bar.Volume),
	}
}

// vwapSlope is the OLS slope of the last VWAPSlopeWindow VWAP values against
// the bar index. Zero until a full window exists.
func (e *featureEngine) vwapSlope() float64 {
	if e.vwaps.Len() < e.cfg.VWAPSlopeWindow {
		return 0.0
	}
	return olsSlope(e.vwaps.Tail(e.cfg.VWAPSlopeWindow))
}

// atrPercentile ranks the current ATR against prior history, as the fraction
// of prior values less than or equal to it. Neutral 0.5 with fewer than 10
// historical samples or a zero current ATR.
func (e *featureEngine) atrPercentile() float64 {
	if e.historicalATR.Len() < 10 {
		return 0.5
	}
	current, _ := e.historicalATR.Last()
	if current == 0.0 {
		return 0.5
	}
	prior := e.historicalATR.Len() - 1
	below := 0
	for i := 0; i < prior; i++ {
		if e.historicalATR.At(i) <= current {
			below++
		}
	}
	return float64(below) / float64(prior)
}

// volatilityRatio compares the current annualized volatility to the mean of
// prior history. Neutral 1.0 with fewer than 10 samples or degenerate values.
func (e *featureEngine) volatilityRatio() float64 {
	if e.historicalVol.Len() < 10 {
		return 1.0
	}
	current, _ := e.historicalVol.Last()
	if current == 0.0 {
		return 1.0
	}
	prior := e.historicalVol.Len() - 1
	sum := 0.0
	for i := 0; i < prior; i++ {
		sum += e.historicalVol.At(i)
	}
	avg := sum / float64(prior)
	if avg == 0.0 {
		return 1.0
	}
	return current / avg
}

// priceMomentum is the fractional price change over the momentum window.
// Zero until the window fills or when the reference price is zero.
func (e *featureEngine) priceMomentum(currentPrice float64) float64 {
	if e.prices.Len() < e.cfg.MomentumWindow {
		return 0.0
	}
	old := e.prices.At(e.prices.Len() - e.cfg.MomentumWindow)
	if old == 0.0 {
		return 0.0
	}
	return (currentPrice - old) / old
}

// volumeTrend compares the current volume to the mean of the preceding bars
// in the volume window. Zero until the window fills or on a zero mean.
func (e *featureEngine) volumeTrend(currentVolume float64) float64 {
	if e.volumes.Len() < e.cfg.VolumeWindow {
		return 0.0
	}
	recent := e.volumes.Tail(e.cfg.VolumeWindow)
	sum := 0.0
	for _, v := range recent[:len(recent)-1] {
		sum += v
	}
	avg := sum / float64(len(recent)-1)
	if avg == 0.0 {
		return 0.0
	}
	return (currentVolume - avg) / avg
}

// barCount returns how many bars are currently retained.
func (e *featureEngine) barCount() int {
	return e.prices.Len()
}

// estimatedBytes approximates resident history size: seven float64 series.
func (e *featureEngine) estimatedBytes() int64 {
	elems := e.prices.Len() + e.highs.Len() + e.lows.Len() + e.volumes.Len() +
		e.vwaps.Len() + e.historicalATR.Len() + e.historicalVol.Len()
	return int64(elems) * 8
}

func (e *featureEngine) reset() {
	e.prices.Reset()
	e.highs.Reset()
	e.lows.Reset()
	e.volumes.Reset()
	e.vwaps.Reset()
	e.historicalATR.Reset()
	e.historicalVol.Reset()
}

// olsSlope is the least-squares slope of y over indices 0..n-1.
func olsSlope(y []float64) float64 {
	n := len(y)
	if n < 2 {
		return 0.0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0.0
	}
	return (fn*sumXY - sumX*sumY) / denom
}

// annualizedVolatility is the population stdev of log returns scaled by
// sqrt(252). Returns false when any price in the window is non-positive.
func annualizedVolatility(prices []float64) (float64, bool) {
	if len(prices) < 2 {
		return 0, false
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			return 0, false
		}
		returns = append(returns, math.Log(prices[i]/prices[i-1]))
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance) * math.Sqrt(annualizationFactor), true
}

package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func vwapBar(high, low, close, volume float64) Bar {
	return Bar{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}
}

func TestVWAPSingleBar(t *testing.T) {
	acc := NewVWAPAccumulator()
	got := acc.Update(vwapBar(102, 98, 100, 500))
	assert.InDelta(t, 100.0, got, 1e-9)
	assert.InDelta(t, 100.0, acc.Current(), 1e-9)
}

func TestVWAPWeightsByVolume(t *testing.T) {
	acc := NewVWAPAccumulator()
	acc.Update(vwapBar(100, 100, 100, 100))
	got := acc.Update(vwapBar(110, 110, 110, 300))
	// (100*100 + 110*300) / 400
	assert.InDelta(t, 107.5, got, 1e-9)
}

func TestVWAPNegativeVolumeUnchanged(t *testing.T) {
	acc := NewVWAPAccumulator()
	acc.Update(vwapBar(101, 99, 100, 1000))
	before := acc.Current()

	got := acc.Update(vwapBar(200, 180, 190, -5))
	assert.Equal(t, before, got)
	assert.Equal(t, before, acc.Current())

	// Accumulator keeps working after the rejected bar.
	got = acc.Update(vwapBar(104, 96, 100, 1000))
	assert.InDelta(t, 100.0, got, 1e-9)
}

func TestVWAPZeroVolumeAccepted(t *testing.T) {
	acc := NewVWAPAccumulator()
	acc.Update(vwapBar(101, 99, 100, 1000))
	got := acc.Update(vwapBar(300, 300, 300, 0))
	assert.InDelta(t, 100.0, got, 1e-9)
}

func TestVWAPBeforeAnyVolume(t *testing.T) {
	acc := NewVWAPAccumulator()
	assert.Equal(t, 0.0, acc.Current())
	got := acc.Update(vwapBar(300, 300, 300, 0))
	assert.Equal(t, 0.0, got)
}

func TestVWAPReset(t *testing.T) {
	acc := NewVWAPAccumulator()
	acc.Update(vwapBar(101, 99, 100, 1000))
	acc.Reset()
	assert.Equal(t, 0.0, acc.Current())
	got := acc.Update(vwapBar(51, 49, 50, 10))
	assert.InDelta(t, 50.0, got, 1e-9)
}

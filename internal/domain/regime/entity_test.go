package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegimeTypeZeroValueIsTransition(t *testing.T) {
	var r RegimeType
	assert.Equal(t, RegimeTransition, r)
	assert.True(t, r.Valid())
	assert.Equal(t, "transition", r.String())
}

func TestRegimeTypeRoundTrip(t *testing.T) {
	for _, r := range []RegimeType{RegimeTrending, RegimeRanging, RegimeTransition, RegimeHighVolatility} {
		parsed, err := ParseRegimeType(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}

	_, err := ParseRegimeType("sideways")
	assert.Error(t, err)

	assert.False(t, RegimeType(99).Valid())
	_, err = RegimeType(99).MarshalText()
	assert.Error(t, err)
}

func TestTypicalPrice(t *testing.T) {
	bar := Bar{High: 105, Low: 95, Close: 100}
	assert.InDelta(t, 100.0, bar.TypicalPrice(), 1e-9)
}

func TestSnapshotStale(t *testing.T) {
	now := time.Now()

	var never Snapshot
	assert.True(t, never.Stale(now, time.Hour))

	fresh := Snapshot{LastUpdate: now.Add(-time.Minute)}
	assert.False(t, fresh.Stale(now, time.Hour))
	assert.True(t, fresh.Stale(now, time.Second))
}

func TestRecommendationsCoverAllRegimes(t *testing.T) {
	for _, r := range []RegimeType{RegimeTrending, RegimeRanging, RegimeTransition, RegimeHighVolatility} {
		rec := r.Recommendations()
		assert.NotEmpty(t, rec.Strategy)
		assert.Greater(t, rec.StopMultiplier, 0.0)
	}
	assert.Equal(t, "trend_following", RegimeTrending.Recommendations().Strategy)
	assert.Equal(t, "defensive", RegimeHighVolatility.Recommendations().Strategy)
}

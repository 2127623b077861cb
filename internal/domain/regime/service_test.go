package regime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chronos/pkg/errors"
)

type captureSink struct {
	mu          sync.Mutex
	decisions   []UpdateResult
	transitions []UpdateResult
}

func (s *captureSink) RecordDecision(r UpdateResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, r)
}

func (s *captureSink) RecordTransition(r UpdateResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, r)
}

func newTestService(t *testing.T, sink AuditSink) *Service {
	t.Helper()
	svc, err := NewService(DefaultConfig(), sink, zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	return svc
}

func TestServiceRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MomentumTrendingThreshold = -1
	_, err := NewService(cfg, nil, zap.NewNop().Sugar(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestServiceLazyRegistration(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.GetRegime("BTCUSDT")
	assert.True(t, errors.Is(err, errors.ErrSymbolNotRegistered))

	res, err := svc.UpdateRegime("BTCUSDT", barAt(0, 100, 1, 1000))
	require.NoError(t, err)
	assert.Equal(t, RegimeTransition, res.Regime)

	snap, err := svc.GetRegime("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.False(t, snap.LastUpdate.IsZero())
}

func TestServiceExplicitRegistration(t *testing.T) {
	svc := newTestService(t, nil)
	require.NoError(t, svc.RegisterSymbol("ETHUSDT"))
	require.NoError(t, svc.RegisterSymbol("ETHUSDT"))

	snap, err := svc.GetRegime("ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, RegimeTransition, snap.Regime)
	assert.True(t, snap.LastUpdate.IsZero())
	assert.Equal(t, []string{"ETHUSDT"}, svc.Symbols())
}

func TestServiceStaleness(t *testing.T) {
	svc := newTestService(t, nil)

	// Unknown symbols are always stale.
	assert.True(t, svc.IsRegimeStale("BTCUSDT", time.Minute))

	_, err := svc.UpdateRegime("X", barAt(0, 100, 1, 1000))
	require.NoError(t, err)
	assert.False(t, svc.IsRegimeStale("X", 60*time.Second))

	// Registered but never updated is stale even with zero max age.
	require.NoError(t, svc.RegisterSymbol("Y"))
	stale := svc.StaleSymbols(0)
	assert.Contains(t, stale, "Y")
}

func TestServiceStalenessAges(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.UpdateRegime("X", barAt(0, 100, 1, 1000))
	require.NoError(t, err)

	base := time.Now()
	svc.now = func() time.Time { return base.Add(10 * time.Minute) }
	assert.True(t, svc.IsRegimeStale("X", 5*time.Minute))
	assert.False(t, svc.IsRegimeStale("X", time.Hour))
	assert.Equal(t, []string{"X"}, svc.StaleSymbols(5*time.Minute))
	assert.Empty(t, svc.StaleSymbols(time.Hour))
}

func TestServiceAuditFanOut(t *testing.T) {
	sink := &captureSink{}
	svc := newTestService(t, sink)

	for _, bar := range uptrendBars(50) {
		_, err := svc.UpdateRegime("BTCUSDT", bar)
		require.NoError(t, err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.decisions, 50)
	require.NotEmpty(t, sink.transitions)
	last := sink.transitions[len(sink.transitions)-1]
	assert.Equal(t, RegimeTrending, last.Regime)
	assert.True(t, last.Changed)
}

func TestServiceSummaryAndSnapshots(t *testing.T) {
	svc := newTestService(t, nil)
	for _, symbol := range []string{"BBB", "AAA"} {
		_, err := svc.UpdateRegime(symbol, barAt(0, 100, 1, 1000))
		require.NoError(t, err)
	}

	snaps := svc.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "AAA", snaps[0].Symbol)
	assert.Equal(t, "BBB", snaps[1].Symbol)

	summary := svc.Summary()
	assert.Len(t, summary, 2)
	assert.Contains(t, summary, "AAA")

	assert.Greater(t, svc.EstimatedMemoryBytes(), int64(0))
	assert.Len(t, svc.PerformanceSummaries(), 2)
}

func TestServiceReaders(t *testing.T) {
	svc := newTestService(t, nil)
	for _, bar := range uptrendBars(50) {
		_, err := svc.UpdateRegime("BTCUSDT", bar)
		require.NoError(t, err)
	}

	f, err := svc.GetFeatures("BTCUSDT")
	require.NoError(t, err)
	assert.NotZero(t, f.VWAPSlope)

	stability, err := svc.RegimeStability("BTCUSDT", time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stability, 0.0)
	assert.LessOrEqual(t, stability, 1.0)

	records, err := svc.ClassificationHistory("BTCUSDT", time.Hour)
	require.NoError(t, err)
	assert.Len(t, records, 50)

	_, err = svc.GetFeatures("NOPE")
	assert.True(t, errors.Is(err, errors.ErrSymbolNotRegistered))
}

func TestServiceResetSymbol(t *testing.T) {
	svc := newTestService(t, nil)
	for _, bar := range uptrendBars(50) {
		_, err := svc.UpdateRegime("BTCUSDT", bar)
		require.NoError(t, err)
	}

	require.NoError(t, svc.ResetSymbol("BTCUSDT"))
	snap, err := svc.GetRegime("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, RegimeTransition, snap.Regime)
	assert.True(t, snap.LastUpdate.IsZero())
	assert.True(t, svc.IsRegimeStale("BTCUSDT", time.Hour))

	assert.Error(t, svc.ResetSymbol("NOPE"))
}

func TestServiceResetAll(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.UpdateRegime("A", barAt(0, 100, 1, 1000))
	require.NoError(t, err)
	_, err = svc.UpdateRegime("B", barAt(0, 100, 1, 1000))
	require.NoError(t, err)

	svc.ResetAll()
	assert.Empty(t, svc.Symbols())
	assert.True(t, svc.IsRegimeStale("A", time.Hour))
}

func TestServiceConcurrentUpdates(t *testing.T) {
	svc := newTestService(t, nil)
	symbols := []string{"A", "B", "C", "D"}
	bars := uptrendBars(50)

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			for _, bar := range bars {
				_, err := svc.UpdateRegime(symbol, bar)
				assert.NoError(t, err)
			}
		}(symbol)
	}
	wg.Wait()

	for _, symbol := range symbols {
		snap, err := svc.GetRegime(symbol)
		require.NoError(t, err)
		assert.Equal(t, RegimeTrending, snap.Regime)
	}
}

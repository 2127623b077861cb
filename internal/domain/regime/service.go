package regime

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"chronos/pkg/errors"
)

// Service is the multi-symbol regime registry. One classifier per symbol,
// created lazily on first update. A single exclusive mutex guards the symbol
// map and the cached per-symbol state; classifier updates are short,
// bounded-time CPU work, so readers queue behind writers rather than racing
// a torn {regime, confidence} pair.
type Service struct {
	mu      sync.Mutex
	entries map[string]*registryEntry

	cfg     Config
	audit   AuditSink
	log     *zap.SugaredLogger
	tracker errors.Tracker
	now     func() time.Time
}

type registryEntry struct {
	classifier *Classifier
	snapshot   Snapshot
}

// NewService builds a registry. The config is validated once here; every
// classifier inherits it. A nil audit sink disables audit fan-out.
func NewService(cfg Config, audit AuditSink, log *zap.SugaredLogger, tracker errors.Tracker) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &Service{
		entries: make(map[string]*registryEntry),
		cfg:     cfg,
		audit:   audit,
		log:     log,
		tracker: tracker,
		now:     time.Now,
	}, nil
}

// RegisterSymbol creates a classifier for symbol without feeding it a bar.
// Registering an existing symbol is a no-op.
func (s *Service) RegisterSymbol(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.entryLocked(symbol)
	return err
}

// entryLocked returns the entry for symbol, creating it lazily.
// Caller must hold s.mu.
func (s *Service) entryLocked(symbol string) (*registryEntry, error) {
	if e, ok := s.entries[symbol]; ok {
		return e, nil
	}
	classifier, err := NewClassifier(symbol, s.cfg, s.log, s.tracker)
	if err != nil {
		return nil, err
	}
	e := &registryEntry{
		classifier: classifier,
		snapshot:   Snapshot{Symbol: symbol, Regime: RegimeTransition},
	}
	s.entries[symbol] = e
	s.log.Infow("symbol registered", "symbol", symbol)
	return e, nil
}

// UpdateRegime feeds one bar to the symbol's classifier, registering the
// symbol first if needed, and refreshes the cached snapshot. Bars for one
// symbol must arrive in order; the mutex serializes them.
func (s *Service) UpdateRegime(symbol string, bar Bar) (UpdateResult, error) {
	s.mu.Lock()
	e, err := s.entryLocked(symbol)
	if err != nil {
		s.mu.Unlock()
		return UpdateResult{}, err
	}
	result := e.classifier.Update(bar)
	e.snapshot = Snapshot{
		Symbol:     symbol,
		Regime:     result.Regime,
		Confidence: result.Confidence,
		LastUpdate: s.now(),
	}
	s.mu.Unlock()

	s.audit.RecordDecision(result)
	if result.Changed {
		s.audit.RecordTransition(result)
	}
	return result, nil
}

// GetRegime returns the cached snapshot for symbol.
func (s *Service) GetRegime(symbol string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[symbol]
	if !ok {
		return Snapshot{}, errors.Wrapf(errors.ErrSymbolNotRegistered, "symbol %s", symbol)
	}
	return e.snapshot, nil
}

// GetFeatures returns the symbol's latest feature vector.
func (s *Service) GetFeatures(symbol string) (Features, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[symbol]
	if !ok {
		return Features{}, errors.Wrapf(errors.ErrSymbolNotRegistered, "symbol %s", symbol)
	}
	f, ok := e.classifier.Features()
	if !ok {
		return Features{}, errors.Wrapf(errors.ErrSymbolNotRegistered, "symbol %s has no classifications yet", symbol)
	}
	return f, nil
}

// RegimeStability proxies the symbol classifier's stability over window.
func (s *Service) RegimeStability(symbol string, window time.Duration) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[symbol]
	if !ok {
		return 0, errors.Wrapf(errors.ErrSymbolNotRegistered, "symbol %s", symbol)
	}
	return e.classifier.RegimeStability(window), nil
}

// ClassificationHistory proxies the symbol classifier's capped history.
func (s *Service) ClassificationHistory(symbol string, window time.Duration) ([]ClassificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[symbol]
	if !ok {
		return nil, errors.Wrapf(errors.ErrSymbolNotRegistered, "symbol %s", symbol)
	}
	return e.classifier.ClassificationHistory(window), nil
}

// IsRegimeStale reports whether symbol's last update is older than maxAge.
// Unknown and never-updated symbols are stale.
func (s *Service) IsRegimeStale(symbol string, maxAge time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[symbol]
	if !ok {
		return true
	}
	return e.snapshot.Stale(s.now(), maxAge)
}

// StaleSymbols returns all registered symbols whose regime is stale, sorted.
func (s *Service) StaleSymbols(maxAge time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var stale []string
	for symbol, e := range s.entries {
		if e.snapshot.Stale(now, maxAge) {
			stale = append(stale, symbol)
		}
	}
	sort.Strings(stale)
	return stale
}

// Snapshots returns the cached snapshot of every registered symbol, sorted
// by symbol.
func (s *Service) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Summary maps symbol to its cached snapshot.
func (s *Service) Summary() map[string]Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Snapshot, len(s.entries))
	for symbol, e := range s.entries {
		out[symbol] = e.snapshot
	}
	return out
}

// Symbols lists registered symbols, sorted.
func (s *Service) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for symbol := range s.entries {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// EstimatedMemoryBytes sums classifier buffer estimates across symbols.
func (s *Service) EstimatedMemoryBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, e := range s.entries {
		total += e.classifier.EstimatedMemoryBytes()
	}
	return total
}

// PerformanceSummaries maps symbol to its classifier timing summary.
func (s *Service) PerformanceSummaries() map[string]PerformanceSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]PerformanceSummary, len(s.entries))
	for symbol, e := range s.entries {
		out[symbol] = e.classifier.PerformanceSummary()
	}
	return out
}

// ResetSymbol clears one classifier back to cold start. The symbol stays
// registered.
func (s *Service) ResetSymbol(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[symbol]
	if !ok {
		return errors.Wrapf(errors.ErrSymbolNotRegistered, "symbol %s", symbol)
	}
	e.classifier.Reset()
	e.snapshot = Snapshot{Symbol: symbol, Regime: RegimeTransition}
	return nil
}

// ResetAll drops every registered symbol.
func (s *Service) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*registryEntry)
	s.log.Infow("regime registry reset")
}

package regime

import (
	"context"
	"time"
)

// Decision is a persisted classification decision record.
type Decision struct {
	ID         string     `ch:"id" json:"id"`
	Symbol     string     `ch:"symbol" json:"symbol"`
	Timestamp  time.Time  `ch:"timestamp" json:"timestamp"`
	Regime     RegimeType `ch:"-" json:"regime"`
	Confidence float64    `ch:"confidence" json:"confidence"`
	Features   Features   `ch:"-" json:"features"`
	Reasoning  string     `ch:"reasoning" json:"reasoning"`
	Degraded   bool       `ch:"degraded" json:"degraded"`
	TotalMs    float64    `ch:"total_ms" json:"total_ms"`
}

// Transition is a persisted regime change record.
type Transition struct {
	ID             string     `ch:"id" json:"id"`
	Symbol         string     `ch:"symbol" json:"symbol"`
	Timestamp      time.Time  `ch:"timestamp" json:"timestamp"`
	FromRegime     RegimeType `ch:"-" json:"from_regime"`
	ToRegime       RegimeType `ch:"-" json:"to_regime"`
	FromConfidence float64    `ch:"from_confidence" json:"from_confidence"`
	ToConfidence   float64    `ch:"to_confidence" json:"to_confidence"`
	DwellMinutes   float64    `ch:"dwell_minutes" json:"dwell_minutes"`
	Features       Features   `ch:"-" json:"features"`
}

// Repository persists classification decisions and transitions for analytics.
type Repository interface {
	StoreDecision(ctx context.Context, decision *Decision) error
	StoreTransition(ctx context.Context, transition *Transition) error
	GetLatestDecision(ctx context.Context, symbol string) (*Decision, error)
	GetDecisionHistory(ctx context.Context, symbol string, since time.Time) ([]Decision, error)
	GetTransitionHistory(ctx context.Context, symbol string, since time.Time) ([]Transition, error)
}

// SnapshotCache shares the latest per-symbol regime with other processes.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snapshot Snapshot) error
	GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error)
	DeleteSnapshot(ctx context.Context, symbol string) error
}

// AuditSink receives every classification outcome. Implementations must not
// block the caller; a slow sink drops records rather than stalling updates.
type AuditSink interface {
	RecordDecision(result UpdateResult)
	RecordTransition(result UpdateResult)
}

// NopAuditSink discards everything.
type NopAuditSink struct{}

func (NopAuditSink) RecordDecision(UpdateResult)   {}
func (NopAuditSink) RecordTransition(UpdateResult) {}

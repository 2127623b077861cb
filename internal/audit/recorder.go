package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chronos/internal/domain/regime"
	"chronos/internal/metrics"
	"chronos/pkg/logger"
)

const (
	defaultQueueSize = 1024

	// In-memory retention for exports and inspection.
	decisionRetention   = 1000
	transitionRetention = 1000

	sinkTimeout = 5 * time.Second
)

type recordKind int

const (
	kindDecision recordKind = iota
	kindTransition
)

type record struct {
	kind   recordKind
	result regime.UpdateResult
}

// Notifier receives regime change alerts.
type Notifier interface {
	NotifyRegimeChange(ctx context.Context, result regime.UpdateResult) error
}

// Publisher emits classification events to the event bus.
type Publisher interface {
	PublishClassification(ctx context.Context, result regime.UpdateResult) error
	PublishRegimeChange(ctx context.Context, result regime.UpdateResult) error
}

// Recorder implements regime.AuditSink. Classification results enter a bounded
// queue and a single worker fans them out to storage, events, and alerting.
// When the queue is full records are dropped and counted; a slow collaborator
// must never block classification.
type Recorder struct {
	queue chan record

	mu          sync.Mutex
	decisions   *regime.Ring[regime.Decision]
	transitions *regime.Ring[regime.Transition]
	dropped     uint64

	repo      regime.Repository
	publisher Publisher
	notifier  Notifier

	log    *logger.Logger
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Option configures optional recorder collaborators.
type Option func(*Recorder)

// WithRepository persists records to the analytics store.
func WithRepository(repo regime.Repository) Option {
	return func(r *Recorder) { r.repo = repo }
}

// WithPublisher emits records to the event bus.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// WithNotifier alerts on regime changes.
func WithNotifier(n Notifier) Option {
	return func(r *Recorder) { r.notifier = n }
}

// WithQueueSize overrides the bounded queue capacity.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan record, n)
		}
	}
}

// NewRecorder builds a recorder. Call Start before feeding it and Stop on
// shutdown.
func NewRecorder(log *logger.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		queue:       make(chan record, defaultQueueSize),
		decisions:   regime.NewRing[regime.Decision](decisionRetention),
		transitions: regime.NewRing[regime.Transition](transitionRetention),
		log:         log.With("component", "audit_recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the fan-out worker.
func (r *Recorder) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop drains nothing further and waits for the worker to exit.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// RecordDecision implements regime.AuditSink.
func (r *Recorder) RecordDecision(result regime.UpdateResult) {
	r.enqueue(record{kind: kindDecision, result: result})
}

// RecordTransition implements regime.AuditSink.
func (r *Recorder) RecordTransition(result regime.UpdateResult) {
	r.enqueue(record{kind: kindTransition, result: result})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		r.mu.Lock()
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		metrics.AuditRecords.WithLabelValues(kindLabel(rec.kind), "dropped").Inc()
		if dropped%100 == 1 {
			r.log.Warnf("audit queue full, dropped %d records so far", dropped)
		}
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Flush whatever is already queued.
			for {
				select {
				case rec := <-r.queue:
					r.process(rec)
				default:
					return
				}
			}
		case rec := <-r.queue:
			r.process(rec)
		}
	}
}

func (r *Recorder) process(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	switch rec.kind {
	case kindDecision:
		r.processDecision(ctx, rec.result)
	case kindTransition:
		r.processTransition(ctx, rec.result)
	}
}

func (r *Recorder) processDecision(ctx context.Context, result regime.UpdateResult) {
	decision := regime.Decision{
		ID:         uuid.NewString(),
		Symbol:     result.Symbol,
		Timestamp:  result.BarTimestamp,
		Regime:     result.Regime,
		Confidence: result.Confidence,
		Features:   result.Features,
		Reasoning:  result.Reasoning,
		Degraded:   result.Degraded,
		TotalMs:    result.TotalMs,
	}

	r.mu.Lock()
	r.decisions.Append(decision)
	r.mu.Unlock()

	status := "ok"
	if r.repo != nil {
		if err := r.repo.StoreDecision(ctx, &decision); err != nil {
			status = "error"
			r.log.Errorw("Failed to store decision", "symbol", result.Symbol, "error", err)
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishClassification(ctx, result); err != nil {
			status = "error"
		}
	}
	metrics.AuditRecords.WithLabelValues("decision", status).Inc()
	metrics.RecordClassification(result.Symbol, result.Regime.String(), result.TotalMs, result.Confidence, result.Degraded)
}

func (r *Recorder) processTransition(ctx context.Context, result regime.UpdateResult) {
	transition := regime.Transition{
		ID:             uuid.NewString(),
		Symbol:         result.Symbol,
		Timestamp:      result.BarTimestamp,
		FromRegime:     result.PreviousRegime,
		ToRegime:       result.Regime,
		FromConfidence: result.PreviousConfidence,
		ToConfidence:   result.Confidence,
		DwellMinutes:   result.DwellMinutes,
		Features:       result.Features,
	}

	r.mu.Lock()
	r.transitions.Append(transition)
	r.mu.Unlock()

	status := "ok"
	if r.repo != nil {
		if err := r.repo.StoreTransition(ctx, &transition); err != nil {
			status = "error"
			r.log.Errorw("Failed to store transition", "symbol", result.Symbol, "error", err)
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishRegimeChange(ctx, result); err != nil {
			status = "error"
		}
	}
	if r.notifier != nil {
		if err := r.notifier.NotifyRegimeChange(ctx, result); err != nil {
			r.log.Errorw("Failed to notify regime change", "symbol", result.Symbol, "error", err)
		}
	}
	metrics.AuditRecords.WithLabelValues("transition", status).Inc()
	metrics.RecordTransition(result.Symbol, result.PreviousRegime.String(), result.Regime.String())
}

// Decisions returns the retained decision records, oldest first.
func (r *Recorder) Decisions() []regime.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions.Values()
}

// Transitions returns the retained transition records, oldest first.
func (r *Recorder) Transitions() []regime.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitions.Values()
}

// Dropped returns how many records were lost to backpressure.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func kindLabel(k recordKind) string {
	if k == kindTransition {
		return "transition"
	}
	return "decision"
}

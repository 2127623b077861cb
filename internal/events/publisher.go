package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chronos/internal/adapters/kafka"
	"chronos/internal/domain/regime"
	"chronos/internal/metrics"
	"chronos/pkg/errors"
	"chronos/pkg/logger"
)

// Event type constants
const (
	TypeClassification = "regime.classification"
	TypeRegimeChanged  = "regime.changed"
	TypeSymbolsStale   = "regime.symbols_stale"
)

// BaseEvent carries common event envelope fields
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a new base event with defaults
func NewBaseEvent(eventType, source string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Version:   "1.0",
	}
}

// ClassificationEvent is emitted for every classifier decision
type ClassificationEvent struct {
	BaseEvent
	Symbol     string          `json:"symbol"`
	Regime     string          `json:"regime"`
	Confidence float64         `json:"confidence"`
	Features   regime.Features `json:"features"`
	Reasoning  string          `json:"reasoning"`
	Degraded   bool            `json:"degraded"`
	BarTime    time.Time       `json:"bar_time"`
}

// RegimeChangedEvent is emitted when a symbol's regime flips
type RegimeChangedEvent struct {
	BaseEvent
	Symbol         string  `json:"symbol"`
	FromRegime     string  `json:"from_regime"`
	ToRegime       string  `json:"to_regime"`
	FromConfidence float64 `json:"from_confidence"`
	ToConfidence   float64 `json:"to_confidence"`
	DwellMinutes   float64 `json:"dwell_minutes"`
}

// SymbolsStaleEvent is emitted by the staleness sweep
type SymbolsStaleEvent struct {
	BaseEvent
	Symbols []string `json:"symbols"`
	MaxAge  string   `json:"max_age"`
}

// Publisher publishes regime events to Kafka
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer *kafka.Producer, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		log:      log,
	}
}

// PublishClassification publishes one classification decision
func (p *Publisher) PublishClassification(ctx context.Context, result regime.UpdateResult) error {
	event := ClassificationEvent{
		BaseEvent:  NewBaseEvent(TypeClassification, "chronos"),
		Symbol:     result.Symbol,
		Regime:     result.Regime.String(),
		Confidence: result.Confidence,
		Features:   result.Features,
		Reasoning:  result.Reasoning,
		Degraded:   result.Degraded,
		BarTime:    result.BarTimestamp,
	}
	return p.publish(ctx, kafka.TopicRegimeClassifications, result.Symbol, event)
}

// PublishRegimeChange publishes a regime transition
func (p *Publisher) PublishRegimeChange(ctx context.Context, result regime.UpdateResult) error {
	event := RegimeChangedEvent{
		BaseEvent:      NewBaseEvent(TypeRegimeChanged, "chronos"),
		Symbol:         result.Symbol,
		FromRegime:     result.PreviousRegime.String(),
		ToRegime:       result.Regime.String(),
		FromConfidence: result.PreviousConfidence,
		ToConfidence:   result.Confidence,
		DwellMinutes:   result.DwellMinutes,
	}
	return p.publish(ctx, kafka.TopicRegimeTransitions, result.Symbol, event)
}

// PublishSymbolsStale publishes the staleness sweep outcome
func (p *Publisher) PublishSymbolsStale(ctx context.Context, symbols []string, maxAge time.Duration) error {
	event := SymbolsStaleEvent{
		BaseEvent: NewBaseEvent(TypeSymbolsStale, "chronos"),
		Symbols:   symbols,
		MaxAge:    maxAge.String(),
	}
	return p.publish(ctx, kafka.TopicRegimeStaleness, "", event)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, event interface{}) error {
	err := p.producer.Publish(ctx, topic, key, event)
	metrics.RecordKafkaMessage(topic, err)
	if err != nil {
		p.log.Errorw("Failed to publish event", "topic", topic, "error", err)
		return errors.Wrap(err, "send to kafka")
	}
	p.log.Debugw("Event published", "topic", topic, "key", key)
	return nil
}

package kafka

// Topic definitions for Kafka event streaming
const (
	TopicRegimeClassifications = "regime.classifications"
	TopicRegimeTransitions     = "regime.transitions"
	TopicRegimeStaleness       = "regime.staleness"
)
